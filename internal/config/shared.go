package config

import (
	"fmt"
	"time"
)

// --- Shared Configs ---

type ServerConfig struct {
	Port        string // HTTP API port
	MetricsPort string // /metrics and /healthz
	Name        string
}

type LogConfig struct {
	Level   string // debug, info, warn, error
	Format  string // json, console
	File    string // empty logs to stdout only
	Console bool   // also log to stdout when File is set
}

type DatabaseConfig struct {
	Type     string // none, sqlite, postgres
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Path     string // sqlite file
}

// DSN returns the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Taipei",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	Secret   string
	Duration time.Duration
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:   getEnv("LOG_LEVEL", "info"),
		Format:  getEnv("LOG_FORMAT", "console"),
		File:    getEnv("LOG_FILE", ""),
		Console: getEnvBool("LOG_CONSOLE", true),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Type:     getEnv("ARCHIVE_TYPE", "none"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "casino_user"),
		Password: getEnv("DB_PASSWORD", "casino_pass"),
		Name:     getEnv("DB_NAME", "casino_db"),
		Path:     getEnv("DB_PATH", "color_wager.db"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("REDIS_ENABLED", false),
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func loadJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:   getEnv("JWT_SECRET", "change-me"),
		Duration: getEnvDuration("JWT_DURATION", 24*time.Hour),
	}
}
