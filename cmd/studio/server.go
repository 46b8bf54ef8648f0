package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/vyvo/apkforge/backend/pkg/assistant"
	"github.com/vyvo/apkforge/backend/pkg/auth"
	"github.com/vyvo/apkforge/backend/pkg/builder"
	"github.com/vyvo/apkforge/backend/pkg/metrics"
	"github.com/vyvo/apkforge/backend/pkg/projects"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	projects  projects.Repository
	driver    *builder.Driver
	assistant *assistant.Assistant
	logger    *zap.Logger
	accessKey string
}

func newServer(repo projects.Repository, driver *builder.Driver, ai *assistant.Assistant, logger *zap.Logger, accessKey string) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{
		projects:  repo,
		driver:    driver,
		assistant: ai,
		logger:    logger.With(zap.String("component", "http")),
		accessKey: accessKey,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(s.accessKey))

		r.Get("/health", s.handleHealth)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Put("/", s.handleUpdateProject)
				r.Delete("/", s.handleDeleteProject)

				r.Get("/files", s.handleListFiles)
				r.Post("/files", s.handleCreateFile)
				r.Post("/files/upload", s.handleUploadFiles)

				r.Post("/build", s.handleStartBuild)
				r.Get("/build", s.handleGetBuild)
				r.Get("/build/stream", s.handleStreamBuild)
			})
		})

		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/", s.handleGetFile)
			r.Put("/", s.handleUpdateFile)
			r.Delete("/", s.handleDeleteFile)
		})

		r.Post("/ai", s.handleAsk)
		r.Post("/ai/edit", s.handleEdit)
	})

	return otelhttp.NewHandler(r, "studio")
}

// requestLogger logs one line per request and counts it.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				metrics.ObserveHTTPRequest(r.Method, status)
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.driver.Store().(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("build store unhealthy", zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "build store unavailable")
			return
		}
	}
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, map[string]string{"error": message}, status)
}

const maxJSONBody = 16 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(out)
}
