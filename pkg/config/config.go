package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ServerConfig captures runtime settings for the studio server.
type ServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	StoreBackend      string        `mapstructure:"store_backend"`
	RedisURL          string        `mapstructure:"redis_url"`
	RedisTTL          time.Duration `mapstructure:"redis_ttl"`
	DatabaseURL       string        `mapstructure:"database_url"`
	ProjectsPath      string        `mapstructure:"projects_path"`
	BuildStepInterval time.Duration `mapstructure:"build_step_interval"`
	AccessKey         string        `mapstructure:"access_key"`
	LogLevel          string        `mapstructure:"log_level"`
	LogPath           string        `mapstructure:"log_path"`
	TracingEnabled    bool          `mapstructure:"tracing_enabled"`
	AITimeout         time.Duration `mapstructure:"ai_timeout"`
	SFTPAddr          string        `mapstructure:"sftp_addr"`
	SFTPUser          string        `mapstructure:"sftp_user"`
	SFTPPassword      string        `mapstructure:"sftp_password"`
	SFTPKeyPath       string        `mapstructure:"sftp_key_path"`
	SFTPDir           string        `mapstructure:"sftp_dir"`
}

// ClientConfig captures settings for the studioctl CLI.
type ClientConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	AccessKey    string        `mapstructure:"access_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func newViper(name, prefix, file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(name)
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, explicit bool, out any) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || explicit {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// LoadServer loads server configuration from defaults, an optional file and
// STUDIO_* environment variables.
func LoadServer(file string) (ServerConfig, error) {
	v := newViper("studio", "STUDIO", file)

	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("store_backend", BackendMemory)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("redis_ttl", 24*time.Hour)
	v.SetDefault("database_url", "")
	v.SetDefault("projects_path", "")
	v.SetDefault("build_step_interval", time.Second)
	v.SetDefault("access_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", "")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("ai_timeout", 60*time.Second)
	v.SetDefault("sftp_addr", "")
	v.SetDefault("sftp_user", "")
	v.SetDefault("sftp_password", "")
	v.SetDefault("sftp_key_path", "")
	v.SetDefault("sftp_dir", "builds")

	var cfg ServerConfig
	if err := read(v, file != "", &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *ServerConfig) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url required for store_backend=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url required for store_backend=postgres")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if c.BuildStepInterval <= 0 {
		return fmt.Errorf("build_step_interval must be positive")
	}
	if c.SFTPAddr != "" && c.SFTPUser == "" {
		return fmt.Errorf("sftp_user required when sftp_addr is set")
	}
	return nil
}

// LoadClient loads CLI configuration from defaults, an optional file and
// STUDIOCTL_* environment variables.
func LoadClient(file string) (ClientConfig, error) {
	v := newViper("studioctl", "STUDIOCTL", file)

	v.SetDefault("server_url", "http://localhost:3000")
	v.SetDefault("access_key", "")
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("timeout", 15*time.Second)

	var cfg ClientConfig
	if err := read(v, file != "", &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.PollInterval <= 0 {
		return ClientConfig{}, fmt.Errorf("poll_interval must be positive")
	}
	return cfg, nil
}
