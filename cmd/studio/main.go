package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vyvo/apkforge/backend/pkg/assistant"
	"github.com/vyvo/apkforge/backend/pkg/builder"
	"github.com/vyvo/apkforge/backend/pkg/config"
	"github.com/vyvo/apkforge/backend/pkg/logging"
	"github.com/vyvo/apkforge/backend/pkg/projects"
	"github.com/vyvo/apkforge/backend/pkg/publish"
	"github.com/vyvo/apkforge/backend/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadServer(os.Getenv("STUDIO_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "apkforge-studio", cfg.TracingEnabled)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	store, closeStore, err := openBuildStore(cfg)
	if err != nil {
		logger.Fatal("failed to open build store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("build store close error", zap.Error(err))
		}
	}()

	repo, err := projects.NewStore(cfg.ProjectsPath)
	if err != nil {
		logger.Fatal("failed to open project store", zap.Error(err))
	}

	driverOpts := []builder.Option{
		builder.WithInterval(cfg.BuildStepInterval),
		builder.WithLogger(logger),
	}
	if cfg.SFTPAddr != "" {
		pub, err := publish.NewSFTPPublisher(publish.SFTPConfig{
			Addr:     cfg.SFTPAddr,
			User:     cfg.SFTPUser,
			Password: cfg.SFTPPassword,
			KeyPath:  cfg.SFTPKeyPath,
			Dir:      cfg.SFTPDir,
		}, logger)
		if err != nil {
			logger.Fatal("failed to init sftp publisher", zap.Error(err))
		}
		driverOpts = append(driverOpts, builder.WithPublisher(pub))
	}
	driver := builder.NewDriver(store, driverOpts...)
	defer driver.Shutdown()

	ai := assistant.New(assistant.DefaultRegistry(), repo,
		assistant.WithLogger(logger),
		assistant.WithTimeout(cfg.AITimeout),
	)

	srv := newServer(repo, driver, ai, logger, cfg.AccessKey)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("studio shutdown error", zap.Error(err))
		}
	}()

	logger.Info("studio listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("auth", cfg.AccessKey != ""),
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("studio listen failed", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("studio stopped")
}

// openBuildStore selects the build record backend.
func openBuildStore(cfg config.ServerConfig) (builder.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		s, err := builder.NewRedisStore(cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		s, err := builder.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return builder.NewMemStore(), func() error { return nil }, nil
	}
}
