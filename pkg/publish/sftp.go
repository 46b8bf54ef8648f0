package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	yaml "gopkg.in/yaml.v3"

	"github.com/vyvo/apkforge/backend/pkg/builder"
)

var ErrNoAuth = errors.New("no ssh authentication method configured")

// SFTPConfig points at the artifact host build logs are exported to.
type SFTPConfig struct {
	Addr     string
	User     string
	Password string
	KeyPath  string
	Dir      string
	Timeout  time.Duration
}

// SFTPPublisher uploads the log and a manifest of every successful build.
type SFTPPublisher struct {
	cfg    SFTPConfig
	auth   []ssh.AuthMethod
	logger *zap.Logger
}

type manifest struct {
	ProjectID  string    `yaml:"project_id"`
	Generation uint64    `yaml:"generation"`
	Status     string    `yaml:"status"`
	Progress   int       `yaml:"progress"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	LogFile    string    `yaml:"log_file"`
}

func NewSFTPPublisher(cfg SFTPConfig, logger *zap.Logger) (*SFTPPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("sftp address required")
	}
	if !strings.Contains(cfg.Addr, ":") {
		cfg.Addr += ":22"
	}
	if cfg.Dir == "" {
		cfg.Dir = "builds"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	return &SFTPPublisher{cfg: cfg, auth: auth, logger: logger.With(zap.String("component", "sftp-publisher"))}, nil
}

func authMethods(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 2)
	if keyPath := strings.TrimSpace(cfg.KeyPath); keyPath != "" {
		data, err := os.ReadFile(expandHome(keyPath))
		if err != nil {
			return nil, fmt.Errorf("read ssh private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password := strings.TrimSpace(cfg.Password); password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, ErrNoAuth
	}
	return methods, nil
}

// LogPath is the remote location of a run's log.
func LogPath(dir, projectID string, generation uint64) string {
	return path.Join(dir, projectID, fmt.Sprintf("build-%d.log", generation))
}

// ManifestPath is the remote location of a run's manifest.
func ManifestPath(dir, projectID string, generation uint64) string {
	return path.Join(dir, projectID, fmt.Sprintf("build-%d.yaml", generation))
}

// Publish implements builder.Publisher.
func (p *SFTPPublisher) Publish(ctx context.Context, rec builder.Record) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("open sftp session: %w", err)
	}
	defer sftpClient.Close()

	if err := Upload(sftpClient, p.cfg.Dir, rec); err != nil {
		return err
	}
	p.logger.Info("build log exported",
		zap.String("project_id", rec.ProjectID),
		zap.Uint64("generation", rec.Generation),
		zap.String("path", LogPath(p.cfg.Dir, rec.ProjectID, rec.Generation)),
	)
	return nil
}

func (p *SFTPPublisher) dial(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            p.cfg.User,
		Auth:            p.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.cfg.Timeout,
	}

	dialer := net.Dialer{Timeout: p.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial failed: %w", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, p.cfg.Addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake failed: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Upload writes the log and manifest of rec below dir.
func Upload(client *sftp.Client, dir string, rec builder.Record) error {
	logPath := LogPath(dir, rec.ProjectID, rec.Generation)
	if err := pushFile(client, logPath, []byte(rec.Log)); err != nil {
		return fmt.Errorf("upload log: %w", err)
	}

	data, err := yaml.Marshal(manifest{
		ProjectID:  rec.ProjectID,
		Generation: rec.Generation,
		Status:     string(rec.Status),
		Progress:   rec.Progress,
		StartedAt:  rec.CreatedAt,
		FinishedAt: rec.UpdatedAt,
		LogFile:    path.Base(logPath),
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := pushFile(client, ManifestPath(dir, rec.ProjectID, rec.Generation), data); err != nil {
		return fmt.Errorf("upload manifest: %w", err)
	}
	return nil
}

func pushFile(client *sftp.Client, remotePath string, data []byte) error {
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}

	file, err := client.Create(remotePath)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return err
	}
	return nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
