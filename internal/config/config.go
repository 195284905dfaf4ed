package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	RedisURL    string
	AdminSecret string

	// Messaging
	SendRateLimit int // messages per sender per minute

	// Discovery
	SearchNudgeThreshold int // active agents below which search adds a note

	// Per-IP route limits; 0 disables the limit
	RegisterRateLimit  int      // registrations per IP per hour
	SearchRateLimit    int      // searches per IP per minute
	RateLimitWhitelist []string // IPs or CIDRs exempt from per-IP limits
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AdminSecret:          os.Getenv("DEADDROP_ADMIN_SECRET"),
		SendRateLimit:        getInt("SEND_RATE_LIMIT", 12),
		SearchNudgeThreshold: getInt("SEARCH_NUDGE_THRESHOLD", 10),
		RegisterRateLimit:    getInt("REGISTER_RATE_LIMIT", 10),
		SearchRateLimit:      getInt("SEARCH_RATE_LIMIT", 30),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require an explicit redis URL
	if cfg.Env == "production" && os.Getenv("REDIS_URL") == "" {
		panic("REDIS_URL is required in production")
	}
	if cfg.SendRateLimit <= 0 {
		panic("SEND_RATE_LIMIT must be positive")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		panic(key + " must be a non-negative integer")
	}
	return n
}
