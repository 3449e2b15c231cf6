package cli

import (
	"os"
	"time"
)

type Config struct {
	BaseURL      string        // Required: base URL of the verification service
	Transport    string        // Optional: realtime transport (stream, poller, manual) (default: stream)
	PollInterval time.Duration // Optional: polling interval when Transport is poller (default: 5s)
	StateFile    string        // Optional: path to the SQLite state cache (default: ./sentinel.db)
	StateMaxAge  time.Duration // Optional: prune cached transactions older than this (default: 24h)
	LogLevel     string        // Log level (debug, info, warn, error) (default: info)
	LogFormat    string        // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		BaseURL:      os.Getenv("SENTINEL_BASE_URL"),
		Transport:    getEnvOrDefault("SENTINEL_TRANSPORT", "stream"),
		PollInterval: getEnvDurationOrDefault("SENTINEL_POLL_INTERVAL", 5*time.Second),
		StateFile:    getEnvOrDefault("SENTINEL_STATE_FILE", "sentinel.db"),
		StateMaxAge:  getEnvDurationOrDefault("SENTINEL_STATE_MAX_AGE", 24*time.Hour),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:    getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
