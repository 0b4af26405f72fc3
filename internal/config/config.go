package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/stellar/go/network"
)

// Config carries runtime configuration values.
type Config struct {
	Environment       string
	HTTPPort          string
	DatabaseURL       string
	RedisURL          string
	HorizonURL        string
	NetworkPassphrase string
	HomeDomain        string
	ServerSecretSeed  string // S... seed of the challenge-signing account
	SessionSecret     string // HMAC key for session tokens
	RelayAPIURL       string
	NoncePruneEvery   time.Duration
}

// Load reads configuration from the environment with sane defaults. The
// signing seed and session secret have no defaults and must be provided.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("HORIZON_URL", "https://horizon-testnet.stellar.org")
	v.SetDefault("NETWORK_PASSPHRASE", network.TestNetworkPassphrase)
	v.SetDefault("HOME_DOMAIN", "quest.lumenlearn.io")
	v.SetDefault("NONCE_PRUNE_EVERY", time.Hour)
	v.AutomaticEnv()

	cfg := Config{
		Environment:       v.GetString("APP_ENV"),
		HTTPPort:          v.GetString("HTTP_PORT"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		RedisURL:          v.GetString("REDIS_URL"),
		HorizonURL:        v.GetString("HORIZON_URL"),
		NetworkPassphrase: v.GetString("NETWORK_PASSPHRASE"),
		HomeDomain:        v.GetString("HOME_DOMAIN"),
		ServerSecretSeed:  v.GetString("SERVER_SECRET_SEED"),
		SessionSecret:     v.GetString("SESSION_SECRET"),
		RelayAPIURL:       v.GetString("RELAY_API_URL"),
		NoncePruneEvery:   v.GetDuration("NONCE_PRUNE_EVERY"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ServerSecretSeed == "" {
		return Config{}, fmt.Errorf("SERVER_SECRET_SEED is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

// Production reports whether the service runs in a production environment,
// which switches session cookies to Secure.
func (c Config) Production() bool {
	return c.Environment == "production"
}
