package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

// Config is the resolved application configuration
type Config struct {
	App struct {
		Env  string `yaml:"env"`
		Port int    `yaml:"port"`
	} `yaml:"app"`

	CORS struct {
		AllowOrigins string `yaml:"allow_origins"`
	} `yaml:"cors"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	JWT struct {
		// HMAC secret shared with the identity provider; tokens are
		// minted there and only verified here.
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`

	Moderation ModerationConfig `yaml:"moderation"`

	Elasticsearch struct {
		Enabled   bool     `yaml:"enabled"`
		Addresses []string `yaml:"addresses"`
		Username  string   `yaml:"username"`
		Password  string   `yaml:"password"`
	} `yaml:"elasticsearch"`

	Queue struct {
		Enabled     bool `yaml:"enabled"`
		Concurrency int  `yaml:"concurrency"`
	} `yaml:"queue"`
}

// ModerationConfig configures the external content scorer
type ModerationConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	SummaryModel   string        `yaml:"summary_model"`
	BlockThreshold float64       `yaml:"block_threshold"`
	FlagThreshold  float64       `yaml:"flag_threshold"`
	FailOpen       *bool         `yaml:"fail_open"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Load reads the YAML config file and applies environment overrides
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of files
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("MODERATION_API_KEY"); v != "" {
		cfg.Moderation.APIKey = v
	}
	if v := os.Getenv("MODERATION_BASE_URL"); v != "" {
		cfg.Moderation.BaseURL = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Port == 0 {
		cfg.App.Port = 8082
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Moderation.BlockThreshold == 0 {
		cfg.Moderation.BlockThreshold = 0.8
	}
	if cfg.Moderation.FlagThreshold == 0 {
		cfg.Moderation.FlagThreshold = 0.5
	}
	if cfg.Moderation.Timeout == 0 {
		cfg.Moderation.Timeout = 10 * time.Second
	}
	if cfg.Moderation.FailOpen == nil {
		failOpen := true
		cfg.Moderation.FailOpen = &failOpen
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 10
	}
}

// IsDevelopment reports whether the app runs in a development environment
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.App.Env)
	return env == "" || env == "development" || env == "dev" || env == "local"
}

// DSN builds the MySQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name)
}

// LogResolved logs the effective configuration without secrets
func LogResolved(cfg *Config) {
	pkglogger.Info("config: env=%s port=%d db=%s:%d/%s redis=%s:%d es=%v queue=%v moderation=%s fail_open=%v",
		cfg.App.Env, cfg.App.Port,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Name,
		cfg.Redis.Host, cfg.Redis.Port,
		cfg.Elasticsearch.Enabled, cfg.Queue.Enabled,
		cfg.Moderation.BaseURL, *cfg.Moderation.FailOpen)
}
