package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process-level configuration. Values come from the
// environment (optionally seeded from a .env file) so main stays lean.
type Server struct {
	Addr          string
	AdminAddress  string
	JWTSigningKey string
	SessionTTL    time.Duration

	// DatabaseURL selects the postgres card store when set; empty keeps the
	// in-memory store.
	DatabaseURL string
	// RedisURL selects the redis event feed sink when set.
	RedisURL string

	// ProtocolAddress is the identity under which the recommendation protocol
	// invokes the registry's delegated send. It must be allowlisted.
	ProtocolAddress string
	// RewardREC is the fixed reward issuance per accepted recommendation, in
	// whole REC (18 decimals applied internally).
	RewardREC uint64

	// RateLimit is the per-IP request budget per minute.
	RateLimit int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	addr := os.Getenv("CARDLEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	admin := os.Getenv("CARDLEDGER_ADMIN_ADDRESS")
	if admin == "" {
		admin = "0xadmin"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	protocol := os.Getenv("CARDLEDGER_PROTOCOL_ADDRESS")
	if protocol == "" {
		protocol = "0xcard-recommendation"
	}

	return Server{
		Addr:            addr,
		AdminAddress:    admin,
		JWTSigningKey:   jwtSigningKey,
		SessionTTL:      durationEnv("CARDLEDGER_SESSION_TTL", 24*time.Hour),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ProtocolAddress: protocol,
		RewardREC:       uintEnv("CARDLEDGER_REWARD_REC", 10),
		RateLimit:       intEnv("CARDLEDGER_RATE_LIMIT", 120),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

func uintEnv(key string, fallback uint64) uint64 {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
