package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Relay    RelayConfig    `mapstructure:"relay"`
	UI       UIConfig       `mapstructure:"ui"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// BackendConfig points at the coin monitor API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// StorageConfig selects where the selection and credentials are persisted.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`    // "badger" or "postgres"
	Path     string `mapstructure:"path"`      // badger directory
	RecordDB bool   `mapstructure:"record_db"` // archive every applied tick to postgres
	CreateDB bool   `mapstructure:"create_db"` // create the postgres database on startup
}

type RelayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// UIConfig toggles the terminal dashboard. With it off the process runs
// headless and only the relay and recorder consume ticks.
type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
	Quiet       bool   `mapstructure:"quiet"`       // drop the stdout core (the TUI owns the terminal)
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}
	v.AddConfigPath(".")

	cfg, err := load(v)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// load applies defaults and env overrides to v and decodes the result.
// A missing config file is not an error, everything has a default.
func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Support environment variables with dot notation (e.g., BACKEND_BASE_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("poller.interval", 20*time.Second)
	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.path", "./data/coinwatch")
	v.SetDefault("storage.record_db", false)
	v.SetDefault("storage.create_db", false)
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.addr", ":8090")
	v.SetDefault("ui.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.output_file", "logs/coinwatch.log")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.dbname", "coinwatch")
}
