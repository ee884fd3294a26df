// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment. Values are
// loaded once at startup; a .env file is picked up via godotenv autoload in
// the main package.
type Config struct {
	// Port the HTTP/WebSocket server listens on.
	Port string

	// PublicURL, if set, is used when building shareable invite links and
	// the client bootstrap config instead of the request origin.
	PublicURL string

	// DatabaseURL is the postgres connection string. Empty means the server
	// runs without durable persistence (memory-only invites, no outcome
	// recording).
	DatabaseURL string

	// RedisAddr is the address of the redis instance match records are
	// streamed to. Empty disables the stream.
	RedisAddr string
	RedisDB   int

	// AuthJWTKey is the HMAC key used to verify externally issued identity
	// tokens. Empty means every hello is treated as unverified.
	AuthJWTKey string

	HeartbeatInterval   time.Duration
	OnlineStatsInterval time.Duration
	QueueJoinThrottle   time.Duration
	InviteTTL           time.Duration

	// MaxMessagesPerSecond is the per-connection inbound frame cap; exceeding
	// it closes the connection.
	MaxMessagesPerSecond int
}

// Load reads the environment and applies defaults matching production.
func Load() Config {
	return Config{
		Port:                 getEnv("PORT", "8080"),
		PublicURL:            os.Getenv("PUBLIC_URL"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		AuthJWTKey:           os.Getenv("AUTH_JWT_KEY"),
		HeartbeatInterval:    getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		OnlineStatsInterval:  getEnvDuration("ONLINE_STATS_INTERVAL", 7*time.Second),
		QueueJoinThrottle:    getEnvDuration("QUEUE_JOIN_THROTTLE", 3*time.Second),
		InviteTTL:            getEnvDuration("INVITE_TTL", 30*time.Minute),
		MaxMessagesPerSecond: getEnvInt("MAX_MESSAGES_PER_SECOND", 30),
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
