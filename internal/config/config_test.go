package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "REDIS_URL", "DEADDROP_ADMIN_SECRET", "SEND_RATE_LIMIT",
		"SEARCH_NUDGE_THRESHOLD", "REGISTER_RATE_LIMIT", "SEARCH_RATE_LIMIT", "RATE_LIMIT_WHITELIST"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Empty(t, cfg.AdminSecret)
	assert.Equal(t, 12, cfg.SendRateLimit)
	assert.Equal(t, 10, cfg.SearchNudgeThreshold)
	assert.Equal(t, 10, cfg.RegisterRateLimit)
	assert.Equal(t, 30, cfg.SearchRateLimit)
	assert.Nil(t, cfg.RateLimitWhitelist)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "staging")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("SEND_RATE_LIMIT", "3")
	t.Setenv("SEARCH_RATE_LIMIT", "0")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.0/8, ,127.0.0.1 ")

	cfg := Load()
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, 3, cfg.SendRateLimit)
	assert.Equal(t, 0, cfg.SearchRateLimit)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
}

func TestLoadPanics(t *testing.T) {
	t.Run("production without redis", func(t *testing.T) {
		t.Setenv("ENV", "production")
		t.Setenv("REDIS_URL", "")
		assert.Panics(t, func() { Load() })
	})
	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("SEND_RATE_LIMIT", "lots")
		assert.Panics(t, func() { Load() })
	})
	t.Run("zero send limit", func(t *testing.T) {
		t.Setenv("SEND_RATE_LIMIT", "0")
		assert.Panics(t, func() { Load() })
	})
}
