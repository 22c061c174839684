package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// HTTPConfig controls the listener and the request middleware.
type HTTPConfig struct {
	Addr         string   `json:"addr"`
	AllowOrigins []string `json:"allowOrigins"`
	// RateRPS of zero disables rate limiting.
	RateRPS   float64 `json:"rateRps"`
	RateBurst int     `json:"rateBurst"`
	// ShutdownTimeoutMs bounds graceful shutdown.
	ShutdownTimeoutMs int `json:"shutdownTimeoutMs"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
	if c.RateRPS > 0 && c.RateBurst == 0 {
		c.RateBurst = int(c.RateRPS) + 1
	}
	if c.ShutdownTimeoutMs == 0 {
		c.ShutdownTimeoutMs = 10000
	}
}

func (c HTTPConfig) Validate() error {
	if c.RateRPS < 0 {
		return errors.New("rateRps must be >= 0")
	}
	if c.RateBurst < 0 {
		return errors.New("rateBurst must be >= 0")
	}
	return nil
}

// ShutdownTimeout is ShutdownTimeoutMs as a duration.
func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// StoreConfig selects the persistence backend; an empty DatabaseURL means in-memory.
type StoreConfig struct {
	DatabaseURL string `json:"databaseUrl"`
	SkipMigrate bool   `json:"skipMigrate"`
}

// RedisConfig enables the shared result cache and event fan-out when URL is set.
type RedisConfig struct {
	URL        string `json:"url"`
	CacheTTLMs int    `json:"cacheTtlMs"`
}

func (c *RedisConfig) SetDefaults() {
	if c.CacheTTLMs == 0 {
		c.CacheTTLMs = int((15 * time.Minute).Milliseconds())
	}
}

// CacheTTL is CacheTTLMs as a duration.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

// OptimizerConfig holds the service-wide search budget defaults. Tenants may
// override them through the optimizer config endpoint.
type OptimizerConfig struct {
	TimeBudgetMs int `json:"timeBudgetMs"`
	MaxMoves     int `json:"maxMoves"`
	// MaxNodes rejects oversized instances before solving; zero means no limit.
	MaxNodes int `json:"maxNodes"`
	// CacheSize bounds the in-process result cache.
	CacheSize int `json:"cacheSize"`
}

func (c *OptimizerConfig) SetDefaults() {
	if c.TimeBudgetMs == 0 {
		c.TimeBudgetMs = 300
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
}

func (c OptimizerConfig) Validate() error {
	if c.TimeBudgetMs < 0 {
		return errors.New("timeBudgetMs must be >= 0")
	}
	if c.MaxMoves < 0 {
		return errors.New("maxMoves must be >= 0")
	}
	if c.MaxNodes < 0 {
		return errors.New("maxNodes must be >= 0")
	}
	return nil
}

// TimeBudget is TimeBudgetMs as a duration.
func (c OptimizerConfig) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetMs) * time.Millisecond
}

type WebhooksConfig struct {
	MaxAttempts    int `json:"maxAttempts"`
	PollIntervalMs int `json:"pollIntervalMs"`
	TimeoutMs      int `json:"timeoutMs"`
}

func (c *WebhooksConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 10
	}
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = 1000
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 5000
	}
}

func (c WebhooksConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be >= 1, got %d", c.MaxAttempts)
	}
	return nil
}

type LoggingConfig struct {
	Level string `json:"level"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}

// AuthConfig selects how callers are identified. Mode "none" trusts the
// X-Tenant-Id and X-Role headers; "dev" accepts tenant:role bearer tokens;
// "hmac" and "jwks" verify HS256 and RS256 JWTs.
type AuthConfig struct {
	Mode        string `json:"mode"`
	HMACSecret  string `json:"hmacSecret"`
	JWKSURL     string `json:"jwksUrl"`
	TenantClaim string `json:"tenantClaim"`
	RoleClaim   string `json:"roleClaim"`
}

func (c *AuthConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "none"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant"
	}
	if c.RoleClaim == "" {
		c.RoleClaim = "role"
	}
}

func (c AuthConfig) Validate() error {
	switch c.Mode {
	case "none", "dev":
	case "hmac":
		if c.HMACSecret == "" {
			return errors.New("hmacSecret is required in hmac mode")
		}
	case "jwks":
		if c.JWKSURL == "" {
			return errors.New("jwksUrl is required in jwks mode")
		}
	default:
		return fmt.Errorf("unknown mode %s", c.Mode)
	}
	return nil
}
