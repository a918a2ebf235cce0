package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stock-predictor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Model     ModelConfig     `mapstructure:"model"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatasetConfig locates the historical price files and describes their columns.
type DatasetConfig struct {
	Dir                string   `mapstructure:"dir"`
	Format             string   `mapstructure:"format"`
	MaxFiles           int      `mapstructure:"max_files"`
	SymbolColumn       string   `mapstructure:"symbol_column"`
	DateColumn         string   `mapstructure:"date_column"`
	CloseColumn        string   `mapstructure:"close_column"`
	SymbolFromFilename bool     `mapstructure:"symbol_from_filename"`
	DateLayouts        []string `mapstructure:"date_layouts"`
}

// ModelConfig governs training and the serving artifact.
type ModelConfig struct {
	Path        string  `mapstructure:"path"`
	Kind        string  `mapstructure:"kind"`
	Window      int     `mapstructure:"window"`
	TestRatio   float64 `mapstructure:"test_ratio"`
	Seed        uint64  `mapstructure:"seed"`
	Trees       int     `mapstructure:"trees"`
	MaxDepth    int     `mapstructure:"max_depth"`
	MinLeaf     int     `mapstructure:"min_leaf"`
	MaxFeatures int     `mapstructure:"max_features"`
	Workers     int     `mapstructure:"workers"`
	RidgeLambda float64 `mapstructure:"ridge_lambda"`
}

// FallbackConfig shapes the placeholder price used when no prediction is possible.
type FallbackConfig struct {
	Base   float64 `mapstructure:"base"`
	Spread float64 `mapstructure:"spread"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	Metrics         bool          `mapstructure:"metrics"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables persistence.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RetentionConfig controls pruning of the prediction journal.
type RetentionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	Keep         time.Duration `mapstructure:"keep"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig routes training reports.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig configures training-run notifications over the Telegram Bot API.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	Dir           string `mapstructure:"dir"`
}

// Load builds configuration from file, environment, and defaults. A .env
// file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STOCKPREDICTOR")
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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockpredictor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("dataset.dir", "Datasets/SCRIP")
	v.SetDefault("dataset.format", "csv")
	v.SetDefault("dataset.max_files", 0)
	v.SetDefault("dataset.symbol_column", "Symbol")
	v.SetDefault("dataset.date_column", "Date")
	v.SetDefault("dataset.close_column", "Close")
	v.SetDefault("dataset.symbol_from_filename", true)

	v.SetDefault("model.path", "models/model.msgpack")
	v.SetDefault("model.kind", "forest")
	v.SetDefault("model.window", 30)
	v.SetDefault("model.test_ratio", 0.2)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.max_depth", 0)
	v.SetDefault("model.min_leaf", 1)
	v.SetDefault("model.max_features", 0)
	v.SetDefault("model.workers", 0)
	v.SetDefault("model.ridge_lambda", 1.0)

	v.SetDefault("fallback.base", 100.0)
	v.SetDefault("fallback.spread", 10.0)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.metrics", true)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.keep", "720h")
	v.SetDefault("retention.startup_delay", "0s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.dir", "exports")
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
	if strings.TrimSpace(c.Dataset.Dir) == "" {
		return fmt.Errorf("dataset.dir must be set")
	}
	switch strings.ToLower(c.Dataset.Format) {
	case "csv", "parquet":
	default:
		return fmt.Errorf("dataset.format must be csv or parquet, got %q", c.Dataset.Format)
	}
	if c.Dataset.MaxFiles < 0 {
		return fmt.Errorf("dataset.max_files cannot be negative")
	}
	if c.Model.Window <= 0 {
		return fmt.Errorf("model.window must be greater than zero")
	}
	if c.Model.TestRatio <= 0 || c.Model.TestRatio >= 1 {
		return fmt.Errorf("model.test_ratio must be between 0 and 1")
	}
	switch c.Model.Kind {
	case "forest", "linear":
	default:
		return fmt.Errorf("model.kind must be forest or linear, got %q", c.Model.Kind)
	}
	if c.Model.Trees <= 0 {
		return fmt.Errorf("model.trees must be greater than zero")
	}
	if c.Model.RidgeLambda < 0 {
		return fmt.Errorf("model.ridge_lambda cannot be negative")
	}
	if strings.TrimSpace(c.Model.Path) == "" {
		return fmt.Errorf("model.path must be set")
	}
	if c.Fallback.Spread < 0 {
		return fmt.Errorf("fallback.spread cannot be negative")
	}
	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be greater than zero")
		}
		if c.Retention.Keep <= 0 {
			return fmt.Errorf("retention.keep must be greater than zero")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
