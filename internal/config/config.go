package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Sources SourcesConfig `mapstructure:"sources"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Storage StorageConfig `mapstructure:"storage"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourcesConfig holds the upstream feed endpoints and polling behavior
type SourcesConfig struct {
	KandilliURL  string        `mapstructure:"kandilli_url"`
	USGSURL      string        `mapstructure:"usgs_url"`
	EMSCURL      string        `mapstructure:"emsc_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// DedupConfig holds the sliding-window duplicate suppression parameters
type DedupConfig struct {
	Window         time.Duration `mapstructure:"window"`
	TimeTolerance  time.Duration `mapstructure:"time_tolerance"`
	DistanceRadius float64       `mapstructure:"distance_radius_km"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// NotifyConfig holds alert delivery configuration
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Topic    string `mapstructure:"topic"`
}

// ServerConfig holds the read API configuration
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	PageSize int    `mapstructure:"page_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("QUAKEWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// The dedup and polling defaults match the constants the pipeline was
// designed around: 10s polls, 5m window, ±2m tolerance, 50km radius.
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("sources.kandilli_url", "https://api.orhanaydogdu.com.tr/deprem/kandilli/live")
	v.SetDefault("sources.usgs_url", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_day.geojson")
	v.SetDefault("sources.emsc_url", "https://www.seismicportal.eu/fdsnws/event/1/query?limit=50&format=json")
	v.SetDefault("sources.poll_interval", "10s")
	v.SetDefault("sources.fetch_timeout", "10s")

	// Dedup defaults
	v.SetDefault("dedup.window", "5m")
	v.SetDefault("dedup.time_tolerance", "2m")
	v.SetDefault("dedup.distance_radius_km", 50.0)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/quakewatch.db")

	// Notify defaults
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.topic", "all_users")

	// Server defaults
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.page_size", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "plain")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Sources.KandilliURL == "" {
		return fmt.Errorf("sources.kandilli_url is required")
	}
	if c.Sources.USGSURL == "" {
		return fmt.Errorf("sources.usgs_url is required")
	}
	if c.Sources.EMSCURL == "" {
		return fmt.Errorf("sources.emsc_url is required")
	}
	if c.Sources.PollInterval < time.Second {
		return fmt.Errorf("sources.poll_interval must be at least 1 second")
	}
	if c.Sources.FetchTimeout < time.Second {
		return fmt.Errorf("sources.fetch_timeout must be at least 1 second")
	}

	if c.Dedup.Window <= 0 {
		return fmt.Errorf("dedup.window must be positive")
	}
	if c.Dedup.TimeTolerance <= 0 {
		return fmt.Errorf("dedup.time_tolerance must be positive")
	}
	if c.Dedup.TimeTolerance > c.Dedup.Window {
		return fmt.Errorf("dedup.time_tolerance must not exceed dedup.window")
	}
	if c.Dedup.DistanceRadius <= 0 {
		return fmt.Errorf("dedup.distance_radius_km must be positive")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Notify.Enabled {
		if c.Notify.BotToken == "" {
			return fmt.Errorf("notify.bot_token is required when notify is enabled")
		}
		if c.Notify.ChatID == "" {
			return fmt.Errorf("notify.chat_id is required when notify is enabled")
		}
	}
	if c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic is required")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.PageSize < 1 || c.Server.PageSize > 1000 {
		return fmt.Errorf("server.page_size must be between 1 and 1000")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"plain": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: plain, text")
	}

	return nil
}
