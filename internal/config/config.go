// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vendor-billing-engine/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port          int  `yaml:"port"`
	SecureCookies bool `yaml:"secure_cookies"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	SecretKey string        `yaml:"secret_key"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type BillingConfig struct {
	Currency      string        `yaml:"currency"`
	SweepSecret   string        `yaml:"sweep_secret"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type AdminConfig struct {
	APIKey     string        `yaml:"api_key"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// CatalogConfig is the injected plan catalog: versioned so prices can change
// without recompiling the engine.
type CatalogConfig struct {
	Version string              `yaml:"version"`
	Plans   []model.BillingPlan `yaml:"plans"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Billing  BillingConfig  `yaml:"billing"`
	Admin    AdminConfig    `yaml:"admin"`
	Catalog  CatalogConfig  `yaml:"catalog"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = "PHP"
	}
	if cfg.Billing.SweepInterval <= 0 {
		cfg.Billing.SweepInterval = 24 * time.Hour
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Gateway.SecretKey == "" && !dev {
		return nil, errors.New("gateway.secret_key is required")
	}
	if cfg.Billing.SweepSecret == "" {
		return nil, errors.New("billing.sweep_secret is required")
	}
	if len(cfg.Catalog.Plans) == 0 {
		return nil, errors.New("catalog.plans must not be empty")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// BuildCatalog constructs the immutable plan catalog from config.
func (c *Config) BuildCatalog() (*model.PlanCatalog, error) {
	return model.NewPlanCatalog(c.Catalog.Version, c.Catalog.Plans)
}
