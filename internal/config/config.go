// Package config loads and validates migration configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all migration knobs loaded via Viper.
type Config struct {
	Monday   MondayConfig   `mapstructure:"monday"`
	Google   GoogleConfig   `mapstructure:"google"`
	Slack    SlackConfig    `mapstructure:"slack"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Export   ExportConfig   `mapstructure:"export"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// MondayConfig describes the source board API.
type MondayConfig struct {
	APIURL            string  `mapstructure:"api_url"`
	APIKey            string  `mapstructure:"api_key"`
	BoardID           string  `mapstructure:"board_id"`
	PageSize          int     `mapstructure:"page_size"`
	DocColumnID       string  `mapstructure:"doc_column_id"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// GoogleConfig covers the destination bucket and the ledger spreadsheet.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
}

// SlackConfig holds the notification bot credentials.
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// PipelineConfig governs batching, concurrency, and resume state.
type PipelineConfig struct {
	BatchSize           int    `mapstructure:"batch_size"`
	PoolWidth           int    `mapstructure:"pool_width"`
	SizeThresholdBytes  int64  `mapstructure:"size_threshold_bytes"`
	ExpiryDelaySeconds  int    `mapstructure:"expiry_delay_seconds"`
	StateFile           string `mapstructure:"state_file"`
	DownloadTimeoutSecs int    `mapstructure:"download_timeout_seconds"`
}

// ExportConfig configures the browser-driven document exporter.
type ExportConfig struct {
	AuthFile             string `mapstructure:"auth_file"`
	DownloadDir          string `mapstructure:"download_dir"`
	BoardURL             string `mapstructure:"board_url"`
	NavTimeoutSeconds    int    `mapstructure:"nav_timeout_seconds"`
	ExportTimeoutSeconds int    `mapstructure:"export_timeout_seconds"`
	MaxParallel          int    `mapstructure:"max_parallel"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIGRATOR")
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
	// Keys without defaults are invisible to Unmarshal when set only via
	// environment variables, so every key gets at least an empty default.
	v.SetDefault("monday.api_key", "")
	v.SetDefault("monday.board_id", "")
	v.SetDefault("monday.doc_column_id", "")
	v.SetDefault("google.credentials_file", "")
	v.SetDefault("google.bucket", "")
	v.SetDefault("google.spreadsheet_id", "")
	v.SetDefault("slack.token", "")
	v.SetDefault("slack.channel", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("export.board_url", "")

	v.SetDefault("monday.api_url", "https://api.monday.com/v2")
	v.SetDefault("monday.page_size", 25)
	v.SetDefault("monday.requests_per_second", 2.0)
	v.SetDefault("monday.timeout_seconds", 30)
	v.SetDefault("google.prefix", "migrated")
	v.SetDefault("google.sheet_name", "Sheet1")
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.pool_width", 5)
	v.SetDefault("pipeline.size_threshold_bytes", 1<<20)
	v.SetDefault("pipeline.expiry_delay_seconds", 5)
	v.SetDefault("pipeline.state_file", "migration_state.txt")
	v.SetDefault("pipeline.download_timeout_seconds", 60)
	v.SetDefault("export.auth_file", "auth.json")
	v.SetDefault("export.download_dir", "downloads")
	v.SetDefault("export.nav_timeout_seconds", 60)
	v.SetDefault("export.export_timeout_seconds", 120)
	v.SetDefault("export.max_parallel", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Monday.APIKey == "" {
		return fmt.Errorf("monday.api_key must be set")
	}
	if c.Monday.BoardID == "" {
		return fmt.Errorf("monday.board_id must be set")
	}
	if c.Monday.PageSize <= 0 {
		return fmt.Errorf("monday.page_size must be > 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Pipeline.PoolWidth <= 0 {
		return fmt.Errorf("pipeline.pool_width must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// RequestTimeout converts the API timeout config into a duration.
func (c MondayConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExpiryDelay converts the cursor expiry wait into a duration.
func (c PipelineConfig) ExpiryDelay() time.Duration {
	return time.Duration(c.ExpiryDelaySeconds) * time.Second
}

// DownloadTimeout converts the asset download bound into a duration.
func (c PipelineConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSecs) * time.Second
}

// NavTimeout converts the browser navigation bound into a duration.
func (c ExportConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// ExportTimeout converts the whole-export bound into a duration.
func (c ExportConfig) ExportTimeout() time.Duration {
	return time.Duration(c.ExportTimeoutSeconds) * time.Second
}
