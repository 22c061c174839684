package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes structured overrides, e.g. FLEETROUTE_OPTIMIZER__TIMEBUDGETMS=500.
const EnvPrefix = "FLEETROUTE_"

type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Store     StoreConfig     `json:"store"`
	Redis     RedisConfig     `json:"redis"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Webhooks  WebhooksConfig  `json:"webhooks"`
	Logging   LoggingConfig   `json:"logging"`
	Auth      AuthConfig      `json:"auth"`
}

// Load reads an optional YAML or JSON file, applies FLEETROUTE_ overrides and
// then the plain deployment variables (PORT, DATABASE_URL, ...). An empty path
// skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with no file and no environment.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Webhooks.SetDefaults()
	c.Logging.SetDefaults()
	c.Redis.SetDefaults()
	c.Auth.SetDefaults()
}

func (c Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := c.Webhooks.Validate(); err != nil {
		return fmt.Errorf("webhooks: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// applyEnv honours the unprefixed variables used by container deployments.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v := strings.TrimSpace(getenv("DATABASE_URL")); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := getenv("DB_MIGRATE"); v == "false" {
		c.Store.SkipMigrate = true
	}
	if v := strings.TrimSpace(getenv("REDIS_URL")); v != "" {
		c.Redis.URL = v
	}
	if v := strings.TrimSpace(getenv("ALLOW_ORIGINS")); v != "" {
		c.HTTP.AllowOrigins = strings.Split(v, ",")
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.HTTP.RateRPS = f
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		c.HTTP.RateBurst = n
	}
	if v := getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
		}
		c.Webhooks.MaxAttempts = n
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(getenv("AUTH_MODE")); v != "" {
		c.Auth.Mode = strings.ToLower(v)
	}
	if v := getenv("AUTH_HMAC_SECRET"); v != "" {
		c.Auth.HMACSecret = v
	}
	if v := strings.TrimSpace(getenv("AUTH_JWKS_URL")); v != "" {
		c.Auth.JWKSURL = v
	}
	return nil
}
