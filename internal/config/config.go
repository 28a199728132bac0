// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	NewsAPI  NewsAPIConfig  `mapstructure:"newsapi"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// NewsAPIConfig configures the article-search provider client.
type NewsAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateRPS        float64       `mapstructure:"rate_rps"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// PipelineConfig governs the transformation stages.
type PipelineConfig struct {
	// Categories is a conjunction of topic category URIs; matched
	// articles must belong to every one of them.
	Categories   []string      `mapstructure:"categories"`
	Lang         string        `mapstructure:"lang"`
	MaxItems     int           `mapstructure:"max_items"`
	Lookback     time.Duration `mapstructure:"lookback"`
	TriggerQueue int           `mapstructure:"trigger_queue"`
}

// ScheduleConfig holds the cron expressions driving the pipeline.
type ScheduleConfig struct {
	FetchCron string `mapstructure:"fetch_cron"`
	// ProcessCron is a catch-up trigger for the dedup+filter pair; the
	// primary trigger is completion of the fetch that feeds them.
	ProcessCron  string        `mapstructure:"process_cron"`
	SensorEvery  time.Duration `mapstructure:"sensor_every"`
	SensorWindow time.Duration `mapstructure:"sensor_window"`
}

// DatabaseConfig controls access to the relational store.
type DatabaseConfig struct {
	Provider        string        `mapstructure:"provider"` // postgres | memory
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig sets blob storage for raw provider payload archival.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // gcs | memory | noop
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for stage-completion notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"` // pubsub | noop
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// AlertingConfig selects the failure alert sink.
type AlertingConfig struct {
	Provider   string        `mapstructure:"provider"` // log | webhook | noop
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSWIRE")
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

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.NewsAPI.BaseURL == "" {
		return fmt.Errorf("newsapi.base_url must be set")
	}
	if c.NewsAPI.RequestTimeout <= 0 {
		return fmt.Errorf("newsapi.request_timeout must be > 0")
	}
	if len(c.Pipeline.Categories) == 0 {
		return fmt.Errorf("pipeline.categories must include at least one category URI")
	}
	if c.Pipeline.Lang == "" {
		return fmt.Errorf("pipeline.lang must be set")
	}
	if c.Pipeline.MaxItems <= 0 {
		return fmt.Errorf("pipeline.max_items must be > 0")
	}
	if c.Pipeline.Lookback <= 0 {
		return fmt.Errorf("pipeline.lookback must be > 0")
	}
	if c.Schedule.FetchCron == "" || c.Schedule.ProcessCron == "" {
		return fmt.Errorf("schedule.fetch_cron and schedule.process_cron must be set")
	}
	if c.Schedule.SensorEvery <= 0 || c.Schedule.SensorWindow <= 0 {
		return fmt.Errorf("schedule.sensor_every and schedule.sensor_window must be > 0")
	}
	switch c.Database.Provider {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database provider: %s", c.Database.Provider)
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs provider")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.PubSub.Provider {
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required for the pubsub provider")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown pubsub provider: %s", c.PubSub.Provider)
	}
	switch c.Alerting.Provider {
	case "webhook":
		if c.Alerting.WebhookURL == "" {
			return fmt.Errorf("alerting.webhook_url is required for the webhook provider")
		}
	case "log", "noop":
	default:
		return fmt.Errorf("unknown alerting provider: %s", c.Alerting.Provider)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)

	v.SetDefault("newsapi.base_url", "https://eventregistry.org/api/v1/article/getArticles")
	v.SetDefault("newsapi.request_timeout", "30s")
	v.SetDefault("newsapi.rate_rps", 1.0)
	v.SetDefault("newsapi.rate_burst", 2)

	v.SetDefault("pipeline.categories", []string{
		"dmoz/Computers/Artificial_Intelligence",
		"dmoz/Business/Marketing_and_Advertising",
	})
	v.SetDefault("pipeline.lang", "eng")
	v.SetDefault("pipeline.max_items", 100)
	v.SetDefault("pipeline.lookback", "168h")
	v.SetDefault("pipeline.trigger_queue", 16)

	// Fetch every six hours; the processing cron is only a catch-up for
	// the completion-triggered dedup+filter pair.
	v.SetDefault("schedule.fetch_cron", "0 */6 * * *")
	v.SetDefault("schedule.process_cron", "15 */6 * * *")
	v.SetDefault("schedule.sensor_every", "1h")
	v.SetDefault("schedule.sensor_window", "1h")

	v.SetDefault("database.provider", "memory")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "30m")

	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "raw")

	v.SetDefault("pubsub.provider", "noop")

	v.SetDefault("alerting.provider", "log")
	v.SetDefault("alerting.timeout", "10s")

	v.SetDefault("logging.development", false)
}
