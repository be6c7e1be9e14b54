// Package config reads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// MonolithConfig holds all configuration for monolith mode
type MonolithConfig struct {
	Log       LogConfig
	ColorGame ColorGameConfig
	Gateway   GatewayConfig
}

// LoadMonolithConfig loads all configurations for monolith mode
func LoadMonolithConfig() *MonolithConfig {
	return &MonolithConfig{
		Log:       loadLogConfig(),
		ColorGame: *LoadColorGameConfig(),
		Gateway:   *LoadGatewayConfig(),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
