package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	sqliteScheme = "sqlite://"
)

type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	DatabaseDSN     string        `yaml:"database_dsn"`
	RunMigrations   bool          `yaml:"run_migrations"`
	AMQPURL         string        `yaml:"amqp_url"`
	PublishEvents   bool          `yaml:"publish_events"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		DatabaseDSN:     "sqlite://inventory.db",
		RunMigrations:   true,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = env("HTTP_ADDR", c.HTTPAddr)
	c.DatabaseDSN = env("DATABASE_DSN", c.DatabaseDSN)
	c.RunMigrations = envBool("RUN_MIGRATIONS", c.RunMigrations)
	c.AMQPURL = env("AMQP_URL", c.AMQPURL)
	c.PublishEvents = envBool("PUBLISH_EVENTS", c.PublishEvents)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	c.LogFormat = env("LOG_FORMAT", c.LogFormat)
	c.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.Driver() == "" {
		errs = append(errs, fmt.Errorf("database_dsn: unsupported scheme in %q", c.DatabaseDSN))
	}
	if c.PublishEvents && c.AMQPURL == "" {
		errs = append(errs, errors.New("publish_events requires amqp_url"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format: %q is not text or json", c.LogFormat))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Driver reports which storage backend the DSN selects, or "" if none.
func (c Config) Driver() string {
	dsn := strings.ToLower(c.DatabaseDSN)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(dsn, sqliteScheme):
		return DriverSQLite
	}
	return ""
}

// SQLitePath is the file path part of a sqlite:// DSN.
func (c Config) SQLitePath() string {
	return c.DatabaseDSN[len(sqliteScheme):]
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
