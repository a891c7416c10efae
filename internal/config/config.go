package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded from .env and
// CLICKVIEW_-prefixed environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	CORSOrigin        string `mapstructure:"corsorigin"`
	RequestsPerMinute int    `mapstructure:"requestsperminute"`
	RateBurst         int    `mapstructure:"rateburst"`
}

// ClickHouseConfig holds store connection settings
type ClickHouseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	MaxOpenConns   int           `mapstructure:"maxopenconns"`
	MaxIdleConns   int           `mapstructure:"maxidleconns"`
	DialTimeout    time.Duration `mapstructure:"dialtimeout"`
	QueryTimeout   time.Duration `mapstructure:"querytimeout"`
	MigrationsPath string        `mapstructure:"migrationspath"`
}

// StorageConfig holds MinIO settings. Empty Endpoint disables export uploads.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
	UseSSL    bool   `mapstructure:"usessl"`
	Bucket    string `mapstructure:"bucket"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix is the environment variable prefix, e.g. CLICKVIEW_SERVER_PORT.
const EnvPrefix = "CLICKVIEW_"

// Load loads configuration from an optional .env file and the process
// environment. Environment keys map to nested config keys:
// CLICKVIEW_CLICKHOUSE_HOST -> clickhouse.host.
func Load() (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		// CLICKVIEW_CLICKHOUSE_HOST -> clickhouse.host
		propKey := strings.TrimPrefix(key, EnvPrefix)
		propKey = strings.ToLower(strings.Replace(propKey, "_", ".", 1))
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			CORSOrigin:        "*",
			RequestsPerMinute: 300,
			RateBurst:         60,
		},
		ClickHouse: ClickHouseConfig{
			Host:         "localhost",
			Port:         9000,
			User:         "default",
			Database:     "default",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			DialTimeout:  5 * time.Second,
			QueryTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Bucket: "clickview-exports",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}
