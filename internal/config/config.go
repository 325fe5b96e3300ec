// Package config reads service settings from the environment, with an
// optional YAML file (APS_CONFIG) applied first so env vars always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"apsplan/internal/catalog"
	"apsplan/internal/model"
	"apsplan/internal/opt"
)

// Config is the resolved service configuration.
type Config struct {
	Port          string  `yaml:"port"`
	DatabaseURL   string  `yaml:"database_url"`
	RedisURL      string  `yaml:"redis_url"`
	CatalogPath   string  `yaml:"catalog"`
	Migrate       bool    `yaml:"migrate"`
	RateRPS       float64 `yaml:"rate_rps"`
	RateBurst     int     `yaml:"rate_burst"`
	WebhookMax    int     `yaml:"webhook_max_attempts"`
	CacheTTLSec   int     `yaml:"cache_ttl_sec"`
	DefaultTenant string  `yaml:"default_tenant"`

	// Scheduler overlays opt.DefaultConfig for every tenant.
	Scheduler model.SchedulerConfig `yaml:"scheduler"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Config {
	return Config{
		Port:          "8080",
		Migrate:       true,
		RateRPS:       20,
		RateBurst:     40,
		WebhookMax:    10,
		CacheTTLSec:   600,
		DefaultTenant: "t_demo",
	}
}

// Load builds the configuration from APS_CONFIG (if set) and the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	c := Defaults()
	if path := strings.TrimSpace(getenv("APS_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("APS_CATALOG", &c.CatalogPath)
	str("APS_DEFAULT_TENANT", &c.DefaultTenant)
	num("RATE_BURST", &c.RateBurst)
	num("WEBHOOK_MAX_ATTEMPTS", &c.WebhookMax)
	num("CACHE_TTL_SEC", &c.CacheTTLSec)
	if v := strings.TrimSpace(getenv("RATE_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_RPS: %w", err))
		} else {
			c.RateRPS = f
		}
	}
	if v := strings.TrimSpace(getenv("DB_MIGRATE")); v != "" {
		c.Migrate = v != "false" && v != "0"
	}
	if v := strings.TrimSpace(getenv("APS_TIME_BUDGET_MS")); v != "" {
		var n int
		num("APS_TIME_BUDGET_MS", &n)
		if n > 0 {
			c.Scheduler.TimeBudgetMs = &n
		}
	}
	if v := strings.TrimSpace(getenv("APS_WORKERS")); v != "" {
		var n int
		num("APS_WORKERS", &n)
		if n > 0 {
			c.Scheduler.Workers = &n
		}
	}
	if v := strings.TrimSpace(getenv("APS_UNKNOWN_LINES")); v != "" {
		c.Scheduler.UnknownLines = &v
	}
	if err := c.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return c, nil
}

func (c Config) validate() error {
	if p := c.Scheduler.UnknownLines; p != nil && *p != string(opt.SkipUnknownLines) && *p != string(opt.RejectUnknownLines) {
		return fmt.Errorf("unknown_lines must be skip or reject, got %q", *p)
	}
	if w := c.Scheduler.Workers; w != nil && *w < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", *w)
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

// SchedulerBase is the service-wide opt.Config for catalog c.
func (c Config) SchedulerBase(cat *catalog.Catalog) opt.Config {
	return c.Scheduler.Apply(opt.DefaultConfig(cat))
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

func (c Config) Addr() string { return ":" + strings.TrimPrefix(c.Port, ":") }

// Public is the subset safe to expose on the debug endpoint.
func (c Config) Public() map[string]any {
	return map[string]any{
		"port":               c.Port,
		"database":           c.DatabaseURL != "",
		"redis":              c.RedisURL != "",
		"catalog":            c.CatalogPath,
		"migrate":            c.Migrate,
		"rateRps":            c.RateRPS,
		"rateBurst":          c.RateBurst,
		"webhookMaxAttempts": c.WebhookMax,
		"cacheTtlSec":        c.CacheTTLSec,
		"scheduler":          c.Scheduler,
	}
}
