// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Backends
	RedisURL    string // Redis connection URL (optional, uses in-memory if not set)
	DatabaseURL string // PostgreSQL for the audit archive (optional)

	// Request signing
	EnableRequestSigning bool
	SigningSecret        string
	MaxTimestampSkew     time.Duration

	// Rate limiting
	RateLimitWindow time.Duration
	RateLimitMax    int64
	PenaltyTiers    []time.Duration // Lockout per repeat violation, clamped to the last tier
	PenaltyReset    time.Duration   // Quiet period after which the violation count resets

	// Risk scoring
	BlockThreshold     int
	BlacklistThreshold int
	LargeAmountCeiling float64
	DustFloor          float64
	HighFrequencyCount int64
	ManyReceiversCount int64
	PatternReceiverCap int64

	// Store resilience
	StoreTimeout     time.Duration
	BreakerThreshold int
	BreakerOpenFor   time.Duration

	// Security
	OperatorSecret string // Operator API secret

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultTimestampSkewMs = 300_000 // 5 minutes
	DefaultWindowMs        = 60_000
	DefaultRateLimitMax    = 60
	DefaultPenaltyMinutes  = "1,5,15,60"
	DefaultPenaltyResetHrs = 24
	DefaultBlockThreshold  = 80
	DefaultBlacklistScore  = 100
	DefaultLargeAmount     = 1e9
	DefaultDustFloor       = 0.000001
	DefaultHighFrequency   = 10
	DefaultManyReceivers   = 20
	DefaultReceiverCap     = 1000
	DefaultStoreTimeoutMs  = 2000
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	tiers, err := parsePenaltyTiers(getEnv("PENALTY_MINUTES", DefaultPenaltyMinutes))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		RedisURL:             os.Getenv("REDIS_URL"),    // Optional, uses in-memory if not set
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, archive disabled if not set
		EnableRequestSigning: os.Getenv("ENABLE_REQUEST_SIGNING") == "true",
		SigningSecret:        os.Getenv("SIGNING_SECRET"),
		MaxTimestampSkew:     time.Duration(getEnvInt64("MAX_TIMESTAMP_SKEW_MS", DefaultTimestampSkewMs)) * time.Millisecond,
		RateLimitWindow:      time.Duration(getEnvInt64("RATE_LIMIT_WINDOW_MS", DefaultWindowMs)) * time.Millisecond,
		RateLimitMax:         getEnvInt64("RATE_LIMIT_MAX", DefaultRateLimitMax),
		PenaltyTiers:         tiers,
		PenaltyReset:         time.Duration(getEnvInt64("PENALTY_RESET_HOURS", DefaultPenaltyResetHrs)) * time.Hour,
		BlockThreshold:       int(getEnvInt64("RISK_BLOCK_THRESHOLD", DefaultBlockThreshold)),
		BlacklistThreshold:   int(getEnvInt64("RISK_BLACKLIST_THRESHOLD", DefaultBlacklistScore)),
		LargeAmountCeiling:   getEnvFloat64("RISK_LARGE_AMOUNT", DefaultLargeAmount),
		DustFloor:            getEnvFloat64("RISK_DUST_FLOOR", DefaultDustFloor),
		HighFrequencyCount:   getEnvInt64("RISK_HIGH_FREQUENCY", DefaultHighFrequency),
		ManyReceiversCount:   getEnvInt64("RISK_MANY_RECEIVERS", DefaultManyReceivers),
		PatternReceiverCap:   getEnvInt64("PATTERN_RECEIVER_CAP", DefaultReceiverCap),
		StoreTimeout:         time.Duration(getEnvInt64("STORE_TIMEOUT_MS", DefaultStoreTimeoutMs)) * time.Millisecond,
		BreakerThreshold:     int(getEnvInt64("BREAKER_THRESHOLD", 5)),
		BreakerOpenFor:       time.Duration(getEnvInt64("BREAKER_OPEN_SECONDS", 30)) * time.Second,
		OperatorSecret:       os.Getenv("OPERATOR_SECRET"),
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.EnableRequestSigning && c.SigningSecret == "" {
		return fmt.Errorf("SIGNING_SECRET is required when ENABLE_REQUEST_SIGNING=true")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive")
	}
	if c.BlockThreshold > c.BlacklistThreshold {
		return fmt.Errorf("RISK_BLOCK_THRESHOLD must not exceed RISK_BLACKLIST_THRESHOLD")
	}
	if len(c.PenaltyTiers) == 0 {
		return fmt.Errorf("PENALTY_MINUTES must name at least one tier")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parsePenaltyTiers parses a comma-separated minutes list like "1,5,15,60".
func parsePenaltyTiers(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	tiers := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m, err := strconv.ParseInt(p, 10, 64)
		if err != nil || m <= 0 {
			return nil, fmt.Errorf("PENALTY_MINUTES: invalid tier %q", p)
		}
		tiers = append(tiers, time.Duration(m)*time.Minute)
	}
	return tiers, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
