// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the peer reads from the environment.
// Defaults match the protocol constants: 5s heartbeats, 30s ghost
// timeout (6 missed beats), 600ms guest resync retry.
type Config struct {
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	RelayURL    string

	HeartbeatInterval time.Duration
	GhostTimeout      time.Duration
	SettleDelay       time.Duration
	ResyncRetry       time.Duration

	AIDelayMin time.Duration
	AIDelayMax time.Duration
	AIDepth    int
}

// Load reads the environment into a Config, applying defaults.
func Load() Config {
	return Config{
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/parlor"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RelayURL:    getEnv("RELAY_URL", ""),

		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 5*time.Second),
		GhostTimeout:      getEnvDuration("GHOST_TIMEOUT", 30*time.Second),
		SettleDelay:       getEnvDuration("SETTLE_DELAY", 400*time.Millisecond),
		ResyncRetry:       getEnvDuration("RESYNC_RETRY", 600*time.Millisecond),

		AIDelayMin: getEnvDuration("AI_DELAY_MIN", 300*time.Millisecond),
		AIDelayMax: getEnvDuration("AI_DELAY_MAX", 1500*time.Millisecond),
		AIDepth:    getEnvInt("AI_DEPTH", 6),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable as a time.Duration, else a default value.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
