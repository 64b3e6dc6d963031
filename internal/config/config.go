package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port               int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutDownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

// WorkerConfig selects the front-end profile and where the worker sits.
// Origin is the address pages load the app from; same-origin requests are
// forwarded to UpstreamURL.
type WorkerConfig struct {
	Frontend     string        `mapstructure:"frontend" validate:"required,oneof=agent customer staff"`
	Origin       string        `mapstructure:"origin" validate:"required,url"`
	UpstreamURL  string        `mapstructure:"upstream_url" validate:"required,url"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	ManifestPath string        `mapstructure:"manifest_path"`
}

type DataConfig struct {
	QueueDSN          string        `mapstructure:"queue_dsn"`
	CacheSnapshotPath string        `mapstructure:"cache_snapshot_path"`
	Dir               string        `mapstructure:"dir"`
	PersistInterval   time.Duration `mapstructure:"persist_interval"`
}

type SyncConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ConnectivityPoll time.Duration `mapstructure:"connectivity_poll"`
	HealthPath       string        `mapstructure:"health_path"`
}

type MiscConfig struct {
	LogLevel string `mapstructure:"log_level"`
	GinMode  string `mapstructure:"gin_mode" validate:"omitempty,oneof=debug release test"`
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Worker WorkerConfig `mapstructure:"worker"`
	Data   DataConfig   `mapstructure:"data"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Misc   MiscConfig   `mapstructure:"misc"`
}

// LoadConfig reads config.yaml from confPath (optional), .env (optional) and
// TY7_* environment variables, in increasing precedence.
func LoadConfig(confPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.WithComponent("config").Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if confPath != "" {
		v.AddConfigPath(confPath)
	}
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables like TY7_WORKER_FRONTEND override worker.frontend
	v.SetEnvPrefix("TY7")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Info("no config file found, using defaults and env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("worker.frontend", "customer")
	v.SetDefault("worker.origin", "http://localhost:8081")
	v.SetDefault("worker.upstream_url", "http://localhost:8000")
	v.SetDefault("worker.fetch_timeout", 0)
	v.SetDefault("worker.manifest_path", "")

	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.queue_dsn", "")
	v.SetDefault("data.cache_snapshot_path", "")
	v.SetDefault("data.persist_interval", 5*time.Second)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.connectivity_poll", 15*time.Second)
	v.SetDefault("sync.health_path", "/health")

	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.gin_mode", "release")
}

// applyDerived fills per-front-end file locations left empty by the user.
func (c *Config) applyDerived() {
	dir := c.Data.Dir
	if dir == "" {
		dir = "."
	}
	if c.Data.QueueDSN == "" {
		c.Data.QueueDSN = "sqlite://" + filepath.ToSlash(filepath.Join(dir, fmt.Sprintf("ty7-%s-db.sqlite", c.Worker.Frontend)))
	}
	if c.Data.CacheSnapshotPath == "" {
		c.Data.CacheSnapshotPath = filepath.Join(dir, fmt.Sprintf("ty7-%s-cache.json", c.Worker.Frontend))
	}
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ShutDownTimeout <= 0 {
		return errors.New("invalid config: server timeouts must be positive")
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("invalid config: server.request_timeout must not be negative")
	}
	if c.Worker.FetchTimeout < 0 {
		return errors.New("invalid config: worker.fetch_timeout must not be negative")
	}
	if err := requireAbsoluteURLs(c.Worker.Origin, c.Worker.UpstreamURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Data.QueueDSN) == "" {
		return errors.New("invalid config: data.queue_dsn is required")
	}
	if strings.TrimSpace(c.Data.CacheSnapshotPath) == "" {
		return errors.New("invalid config: data.cache_snapshot_path is required")
	}
	if c.Data.PersistInterval <= 0 {
		return errors.New("invalid config: data.persist_interval must be positive")
	}
	if c.Sync.Enabled && c.Sync.ConnectivityPoll <= 0 {
		return errors.New("invalid config: sync.connectivity_poll must be positive when sync is enabled")
	}
	if c.Sync.Enabled && !strings.HasPrefix(c.Sync.HealthPath, "/") {
		return errors.New("invalid config: sync.health_path must start with /")
	}
	return nil
}

func requireAbsoluteURLs(origin, upstream string) error {
	o, err := url.Parse(origin)
	if err != nil || o.Host == "" {
		return fmt.Errorf("invalid config: worker.origin %q is not an absolute URL", origin)
	}
	u, err := url.Parse(upstream)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid config: worker.upstream_url %q is not an absolute URL", upstream)
	}
	return nil
}
