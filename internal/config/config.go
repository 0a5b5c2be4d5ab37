package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"stock-data-ingest/internal/logging"
	"stock-data-ingest/internal/model"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Groww     GrowwConfig     `mapstructure:"groww"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the periodic market-data fetch.
type SchedulerConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	Interval      time.Duration       `mapstructure:"interval"`
	InitialDelay  time.Duration       `mapstructure:"initial_delay"`
	Throttle      time.Duration       `mapstructure:"throttle"`
	FetchInterval string              `mapstructure:"fetch_interval"`
	Live          LiveSchedulerConfig `mapstructure:"live"`
}

// LiveSchedulerConfig governs the short-interval snapshot loop pinned to the
// live-data provider. It no-ops when no matching data source is active.
type LiveSchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	ProviderType string        `mapstructure:"provider_type"`
}

// SyncConfig drives the instrument reference-data sync.
type SyncConfig struct {
	FeedURL          string        `mapstructure:"feed_url"`
	Cron             string        `mapstructure:"cron"`
	OnStartup        bool          `mapstructure:"on_startup"`
	AllowedExchanges []string      `mapstructure:"allowed_exchanges"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// GrowwConfig holds credential material for the token-based provider.
type GrowwConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	TokenURL  string `mapstructure:"token_url"`
}

// NotifyConfig names the broadcast channels for saved price records.
type NotifyConfig struct {
	Channel string `mapstructure:"channel"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockingest")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "stockingest")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.initial_delay", "5s")
	v.SetDefault("scheduler.throttle", "100ms")
	v.SetDefault("scheduler.fetch_interval", "1d")
	v.SetDefault("scheduler.live.enabled", true)
	v.SetDefault("scheduler.live.interval", "30s")
	v.SetDefault("scheduler.live.provider_type", "groww")

	v.SetDefault("sync.feed_url", "https://growwapi-assets.groww.in/instruments/instrument.csv")
	v.SetDefault("sync.cron", "0 30 21 * * SUN")
	v.SetDefault("sync.on_startup", false)
	v.SetDefault("sync.allowed_exchanges", []string{"NSE", "BSE"})
	v.SetDefault("sync.request_timeout", "60s")

	v.SetDefault("groww.token_url", "https://api.groww.in/v1/token/api/access")

	v.SetDefault("notify.channel", "stock_price_updates")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Throttle < 0 {
		return fmt.Errorf("scheduler.throttle cannot be negative")
	}
	if _, err := model.ParseInterval(c.Scheduler.FetchInterval); err != nil {
		return fmt.Errorf("scheduler.fetch_interval: %w", err)
	}
	if c.Scheduler.Live.Enabled {
		if c.Scheduler.Live.Interval <= 0 {
			return fmt.Errorf("scheduler.live.interval must be greater than zero")
		}
		if c.Scheduler.Live.ProviderType == "" {
			return fmt.Errorf("scheduler.live.provider_type must not be empty")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notify.Channel == "" {
		return fmt.Errorf("notify.channel must not be empty")
	}
	return nil
}

// FetchInterval returns the validated candle resolution for scheduled fetches.
func (c *Config) FetchInterval() model.Interval {
	iv, err := model.ParseInterval(c.Scheduler.FetchInterval)
	if err != nil {
		return model.Interval1d
	}
	return iv
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
