package config

// GatewayConfig holds the player and operator facing settings
type GatewayConfig struct {
	JWT               JWTConfig
	SeedPlayers       int   // create accounts 1..N at startup
	SeedPlayerBalance int64 // starting balance of seeded accounts
}

// LoadGatewayConfig loads configuration for the gateway
func LoadGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		JWT:               loadJWTConfig(),
		SeedPlayers:       getEnvInt("SEED_PLAYERS", 0),
		SeedPlayerBalance: int64(getEnvInt("SEED_PLAYER_BALANCE", 1000)),
	}
}
