package config

import "time"

// ColorGameConfig holds the round engine settings
type ColorGameConfig struct {
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Settings GameSettings
}

type GameSettings struct {
	LockThreshold   int   // seconds before the end that reject wagers
	MinBet          int64 // smallest accepted stake
	ColorPayout     int64 // hundredths, 196 pays 1.96x
	NumberPayout    int64 // hundredths, 880 pays 8.8x
	HistorySize     int
	SnowflakeNode   int64
	LedgerRetention time.Duration // how long settled wagers stay in memory
	TickInterval    time.Duration
}

// LoadColorGameConfig loads configuration for the round engine
func LoadColorGameConfig() *ColorGameConfig {
	return &ColorGameConfig{
		Server: ServerConfig{
			Port:        getEnv("GAME_SERVER_PORT", "8080"),
			MetricsPort: getEnv("METRICS_PORT", "9090"),
			Name:        "color-game",
		},
		Redis:    loadRedisConfig(),
		Database: loadDatabaseConfig(),
		Settings: GameSettings{
			LockThreshold:   getEnvInt("GAME_LOCK_THRESHOLD", 5),
			MinBet:          int64(getEnvInt("GAME_MIN_BET", 10)),
			ColorPayout:     int64(getEnvInt("GAME_COLOR_PAYOUT", 196)),
			NumberPayout:    int64(getEnvInt("GAME_NUMBER_PAYOUT", 880)),
			HistorySize:     getEnvInt("GAME_HISTORY_SIZE", 50),
			SnowflakeNode:   int64(getEnvInt("SNOWFLAKE_NODE", 1)),
			LedgerRetention: getEnvDuration("GAME_LEDGER_RETENTION", 24*time.Hour),
			TickInterval:    getEnvDuration("GAME_TICK_INTERVAL", time.Second),
		},
	}
}
