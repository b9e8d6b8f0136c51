// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RunnerConfig governs the worker pool and per-source fetch behavior.
type RunnerConfig struct {
	Workers              int    `mapstructure:"workers"`
	MaxRetries           int    `mapstructure:"max_retries"`
	BackoffInitialMs     int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs         int    `mapstructure:"backoff_max_ms"`
	SourceTimeoutSeconds int    `mapstructure:"source_timeout_seconds"`
	ResultCap            int    `mapstructure:"result_cap"`
	UserAgent            string `mapstructure:"user_agent"`
}

// ComplianceConfig declares per-source usage policy.
type ComplianceConfig struct {
	DeniedSources   []string `mapstructure:"denied_sources"`
	WindowStartHour int      `mapstructure:"window_start_hour"`
	WindowEndHour   int      `mapstructure:"window_end_hour"`
	DailyFetchCap   int      `mapstructure:"daily_fetch_cap"`
}

// HeadlessConfig configures the browser-driven connectors.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxTabs       int  `mapstructure:"max_tabs"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	RespectRobots bool `mapstructure:"respect_robots"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// the service on in-memory stores.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig sets the destination for raw connector payloads.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSONAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("runner.workers", 3)
	v.SetDefault("runner.max_retries", 2)
	v.SetDefault("runner.backoff_initial_ms", 250)
	v.SetDefault("runner.backoff_max_ms", 5000)
	v.SetDefault("runner.source_timeout_seconds", 60)
	v.SetDefault("runner.result_cap", 50)
	v.SetDefault("runner.user_agent", "jobsonar/1.0 (+https://github.com/jobsonar/jobsonar)")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_tabs", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.respect_robots", true)
	v.SetDefault("archive.prefix", "payloads")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers must be > 0")
	}
	if c.Runner.MaxRetries < 0 {
		return fmt.Errorf("runner.max_retries must be >= 0")
	}
	if c.Runner.SourceTimeoutSeconds <= 0 {
		return fmt.Errorf("runner.source_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxTabs <= 0 {
		return fmt.Errorf("headless.max_tabs must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if start, end := c.Compliance.WindowStartHour, c.Compliance.WindowEndHour; start < 0 || start > 23 || end < 0 || end > 23 {
		return fmt.Errorf("compliance window hours must be between 0 and 23")
	}
	return nil
}

// SourceTimeout converts the per-source fetch budget into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Runner.SourceTimeoutSeconds) * time.Second
}

// BackoffInitial returns the base retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Runner.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Runner.BackoffMaxMs) * time.Millisecond
}
