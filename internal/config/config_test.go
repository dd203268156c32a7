package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "ENABLE_REQUEST_SIGNING", "")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, 5*time.Minute, cfg.MaxTimestampSkew)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, int64(DefaultRateLimitMax), cfg.RateLimitMax)
	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour}, cfg.PenaltyTiers)
	assert.Equal(t, DefaultBlockThreshold, cfg.BlockThreshold)
	assert.Equal(t, DefaultBlacklistScore, cfg.BlacklistThreshold)
	assert.False(t, cfg.EnableRequestSigning)
}

func TestLoad_SigningRequiresSecret(t *testing.T) {
	setEnv(t, "ENABLE_REQUEST_SIGNING", "true")
	setEnv(t, "SIGNING_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIGNING_SECRET is required")
}

func TestLoad_SigningFlagIsExact(t *testing.T) {
	// Anything other than the literal string "true" leaves signing off.
	for _, v := range []string{"TRUE", "True", "1", "yes"} {
		setEnv(t, "ENABLE_REQUEST_SIGNING", v)
		setEnv(t, "SIGNING_SECRET", "")

		cfg, err := Load()
		require.NoError(t, err, "value %q", v)
		assert.False(t, cfg.EnableRequestSigning, "value %q", v)
	}
}

func TestLoad_CustomPenaltyTiers(t *testing.T) {
	setEnv(t, "ENABLE_REQUEST_SIGNING", "")
	setEnv(t, "PENALTY_MINUTES", "2, 10,30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Minute, 10 * time.Minute, 30 * time.Minute}, cfg.PenaltyTiers)
}

func TestLoad_InvalidPenaltyTiers(t *testing.T) {
	setEnv(t, "ENABLE_REQUEST_SIGNING", "")
	setEnv(t, "PENALTY_MINUTES", "1,abc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tier")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimitMax = 0 },
			wantErr: "RATE_LIMIT_MAX",
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.RateLimitWindow = 0 },
			wantErr: "RATE_LIMIT_WINDOW_MS",
		},
		{
			name:    "inverted thresholds",
			mutate:  func(c *Config) { c.BlockThreshold = 120 },
			wantErr: "RISK_BLOCK_THRESHOLD",
		},
		{
			name:    "no penalty tiers",
			mutate:  func(c *Config) { c.PenaltyTiers = nil },
			wantErr: "PENALTY_MINUTES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				RateLimitMax:       60,
				RateLimitWindow:    time.Minute,
				BlockThreshold:     80,
				BlacklistThreshold: 100,
				PenaltyTiers:       []time.Duration{time.Minute},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
