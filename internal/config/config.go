package config

import (
	"errors"
	"fmt"
	"os"

	"postovik/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Google     GoogleConfig     `yaml:"google"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Watch      WatchConfig      `yaml:"watch"`
	API        APIConfig        `yaml:"api"`
	Exports    ExportConfig     `yaml:"exports"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	// SenderAddress задает почтовый ящик, от имени которого уходят
	// письма (domain-wide delegation subject).
	SenderAddress string `yaml:"sender_address"`
}

type SchedulerConfig struct {
	TickSeconds           int `yaml:"tick_seconds"`
	GraceMinutes          int `yaml:"grace_minutes"`
	HandlerTimeoutMinutes int `yaml:"handler_timeout_minutes"`
	HistoryKeep           int `yaml:"history_keep"`
	DueBatchLimit         int `yaml:"due_batch_limit"`
}

type WatchConfig struct {
	MappingsFile           string `yaml:"mappings_file"`
	DefaultIntervalMinutes int    `yaml:"default_interval_minutes"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Google.CredentialsFile == "" {
		return errors.New("google credentials file is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
			return errors.New("telegram bot token is required when telegram alerts are enabled")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("telegram chat id is required when telegram alerts are enabled")
		}
	}

	if c.Scheduler.TickSeconds < 1 {
		return fmt.Errorf("scheduler tick must be at least 1 second, got %d", c.Scheduler.TickSeconds)
	}

	if c.Watch.DefaultIntervalMinutes < 1 {
		return fmt.Errorf("watch default interval must be at least 1 minute, got %d", c.Watch.DefaultIntervalMinutes)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Scheduler defaults
	if c.Scheduler.TickSeconds == 0 {
		c.Scheduler.TickSeconds = 1
	}
	if c.Scheduler.GraceMinutes == 0 {
		c.Scheduler.GraceMinutes = models.DefaultMisfireGraceMinutes
	}
	if c.Scheduler.HandlerTimeoutMinutes == 0 {
		c.Scheduler.HandlerTimeoutMinutes = models.DefaultHandlerTimeoutMinutes
	}
	if c.Scheduler.HistoryKeep == 0 {
		c.Scheduler.HistoryKeep = models.DefaultHistoryKeep
	}
	if c.Scheduler.DueBatchLimit == 0 {
		c.Scheduler.DueBatchLimit = 100
	}

	// Watch defaults
	if c.Watch.MappingsFile == "" {
		c.Watch.MappingsFile = "configs/mappings.yaml"
	}
	if c.Watch.DefaultIntervalMinutes == 0 {
		c.Watch.DefaultIntervalMinutes = models.DefaultWatchIntervalMinutes
	}

	if c.Backup.Enabled && c.Backup.IntervalHours == 0 {
		c.Backup.IntervalHours = 24
	}
}
