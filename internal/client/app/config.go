package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL     string // Required: Resumade API origin (default: http://localhost:8000)
	APIVersion     string // Optional: API version prefix (default: v1)
	DatabaseFile   string // Optional: path to the SQLite session store (default: ./resumade.db)
	MachineKeyFile string // Optional: path to the machine key file sealing the refresh token

	SkewMargin           time.Duration // Optional: refresh lead time before expiry (default: 30s)
	RefreshCheckInterval time.Duration // Optional: refresh-due poll interval (default: 15s)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // Local UI server port (default: 7465)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		APIBaseURL:     getEnvOrDefault("RESUMADE_API_URL", "http://localhost:8000"),
		APIVersion:     getEnvOrDefault("RESUMADE_API_VERSION", "v1"),
		DatabaseFile:   getEnvOrDefault("RESUMADE_DB_FILE", "resumade.db"),
		MachineKeyFile: os.Getenv("RESUMADE_MACHINE_KEY_FILE"), // Optional

		SkewMargin:           getEnvDurationOrDefault("RESUMADE_REFRESH_SKEW", 30*time.Second),
		RefreshCheckInterval: getEnvDurationOrDefault("RESUMADE_REFRESH_INTERVAL", 15*time.Second),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 7465),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
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

	// Bare integers are taken as seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
