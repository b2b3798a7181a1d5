package main

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 9000)

	RedisURL string // Optional: enables the Redis marker store and Redis Streams events

	RPCURL          string // Optional: Ethereum node URL; empty runs the in-process registry
	ContractAddress string // Registry contract address, required with RPC_URL
	ChainID         int64  // Chain id for the transactor (default: 31337)
	PrivateKey      string // Optional: hex account key; a dev key is generated when empty

	AuditCacheFile string // Path to the SQLite audit cache (default: ./authgate.db)

	TOTPSecret     string        // Optional: switches OTP issuance to TOTP with this secret
	ConfirmTimeout time.Duration // Receipt wait bound (default: 90s)
	MarkerTTL      time.Duration // Logged-in marker lifetime (default: 24h)

	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 9000),

		RedisURL: os.Getenv("REDIS_URL"),

		RPCURL:          os.Getenv("RPC_URL"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		ChainID:         int64(getEnvIntOrDefault("CHAIN_ID", 31337)),
		PrivateKey:      os.Getenv("PRIVATE_KEY"),

		AuditCacheFile: getEnvOrDefault("AUDIT_CACHE_FILE", "authgate.db"),

		TOTPSecret:     os.Getenv("OTP_TOTP_SECRET"),
		ConfirmTimeout: getEnvDurationOrDefault("CONFIRM_TIMEOUT", 90*time.Second),
		MarkerTTL:      getEnvDurationOrDefault("MARKER_TTL", 24*time.Hour),

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

	return defaultValue
}
