package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type StorageConfig struct {
	Backend string       `mapstructure:"backend"` // local or s3
	Local   LocalStorage `mapstructure:"local"`
	S3      S3Storage    `mapstructure:"s3"`
}

type LocalStorage struct {
	Dir string `mapstructure:"dir"`
}

type S3Storage struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"` // optional, for S3-compatible stores
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SchedulerConfig struct {
	Workers          int `mapstructure:"workers"`
	CleanupAfterDays int `mapstructure:"cleanup_after_days"`
}

type PipelineConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

type NotifyConfig struct {
	WebhookURL     string  `mapstructure:"webhook_url"`
	SlackWebhook   string  `mapstructure:"slack_webhook"`
	OnlyOnErrors   bool    `mapstructure:"only_on_errors"`
	MinSuccessRate float64 `mapstructure:"min_success_rate"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from the optional YAML file, the environment
// and a .env file, applying defaults for anything unset.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "loaderd")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "./data/loaderd.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.dir", "./data/uploads")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("scheduler.workers", 5)
	v.SetDefault("scheduler.cleanup_after_days", 7)
	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("notify.only_on_errors", false)
	v.SetDefault("notify.min_success_rate", 0)
	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("storage.s3.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")
	v.BindEnv("notify.slack_webhook", "NOTIFY_SLACK_WEBHOOK")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
