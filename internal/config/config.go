// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every tunable, loaded once at process start into an
// immutable value and passed explicitly to the components that need it.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Render  RenderConfig  `mapstructure:"render"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Queue   QueueConfig   `mapstructure:"queue"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig governs the static HTTP fetch path.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
}

// RenderConfig governs the headless-render fallback.
type RenderConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
}

// JobsConfig governs queue consumption and retry behavior.
type JobsConfig struct {
	MaxRetries        int `mapstructure:"max_retries"`
	BackoffBaseMs     int `mapstructure:"backoff_base_ms"`
	BackoffMaxSeconds int `mapstructure:"backoff_max_seconds"`
	Prefetch          int `mapstructure:"prefetch"`
}

// PolicyConfig holds the domain allowlist.
type PolicyConfig struct {
	EnforceAllowlist bool     `mapstructure:"enforce_allowlist"`
	Allowlist        []string `mapstructure:"allowlist"`
}

// QueueConfig identifies broker resources.
type QueueConfig struct {
	Provider     string `mapstructure:"provider"` // pubsub | memory
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
	DLQTopic     string `mapstructure:"dlq_topic"`
}

// DBConfig controls persistence.
type DBConfig struct {
	Provider string `mapstructure:"provider"` // postgres | memory
	DSN      string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment (PRICEWATCH_ prefix).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
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
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.user_agent", "pricewatch-bot/1.0 (+https://github.com/rivaleye/pricewatch)")
	v.SetDefault("fetch.accept_language", "tr-TR,tr;q=0.9,en;q=0.6")
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.domain_qps", 0.5)
	v.SetDefault("render.min_confidence", 0.5)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.backoff_base_ms", 1000)
	v.SetDefault("jobs.backoff_max_seconds", 30)
	v.SetDefault("jobs.prefetch", 8)
	v.SetDefault("policy.enforce_allowlist", false)
	v.SetDefault("policy.allowlist", []string{})
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.topic", "scrape-jobs")
	v.SetDefault("queue.subscription", "scrape-jobs-worker")
	v.SetDefault("queue.dlq_topic", "scrape-jobs-dlq")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("jobs.max_retries must be >= 0")
	}
	if c.Jobs.Prefetch <= 0 {
		return fmt.Errorf("jobs.prefetch must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	if c.Policy.EnforceAllowlist && len(c.Policy.Allowlist) == 0 {
		return fmt.Errorf("policy.allowlist must be set when enforcement is on")
	}
	switch c.Queue.Provider {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" {
			return fmt.Errorf("queue.project_id must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	return nil
}

// FetchTimeout returns the static fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// NavTimeout returns the headless navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSeconds) * time.Second
}

// BackoffBase returns the job retry backoff base as a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Jobs.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the job retry backoff cap as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Jobs.BackoffMaxSeconds) * time.Second
}
