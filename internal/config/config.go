// Package config loads runtime configuration from environment variables,
// with .env support for local development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; unset values fall back to development defaults.
type Config struct {
	Port          string        // HTTP port to listen on
	DatabaseURL   string        // PostgreSQL DSN; empty selects the in-memory store
	RedisURL      string        // Redis URL; empty disables the cache layer
	CacheTTL      time.Duration // auction snapshot cache TTL
	SweepInterval time.Duration // expiry sweep period
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() Config {
	godotenv.Load()

	return Config{
		Port:          getenv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		CacheTTL:      getduration("CACHE_TTL", 30*time.Second),
		SweepInterval: getduration("SWEEP_INTERVAL", 5*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
