package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "0xadmin", cfg.AdminAddress)
	require.NotEmpty(t, cfg.JWTSigningKey)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Empty(t, cfg.DatabaseURL)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, "0xcard-recommendation", cfg.ProtocolAddress)
	require.Equal(t, uint64(10), cfg.RewardREC)
	require.Equal(t, 120, cfg.RateLimit)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CARDLEDGER_ADDR", ":9999")
	t.Setenv("CARDLEDGER_ADMIN_ADDRESS", "0xdeployer")
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("CARDLEDGER_SESSION_TTL", "2h")
	t.Setenv("DATABASE_URL", "postgres://localhost/cardledger")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CARDLEDGER_PROTOCOL_ADDRESS", "0xrec")
	t.Setenv("CARDLEDGER_REWARD_REC", "25")
	t.Setenv("CARDLEDGER_RATE_LIMIT", "30")

	cfg := FromEnv()

	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, "0xdeployer", cfg.AdminAddress)
	require.Equal(t, "secret", cfg.JWTSigningKey)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, "postgres://localhost/cardledger", cfg.DatabaseURL)
	require.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	require.Equal(t, "0xrec", cfg.ProtocolAddress)
	require.Equal(t, uint64(25), cfg.RewardREC)
	require.Equal(t, 30, cfg.RateLimit)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CARDLEDGER_SESSION_TTL", "soon")
	t.Setenv("CARDLEDGER_REWARD_REC", "-3")
	t.Setenv("CARDLEDGER_RATE_LIMIT", "lots")

	cfg := FromEnv()

	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Equal(t, uint64(10), cfg.RewardREC)
	require.Equal(t, 120, cfg.RateLimit)
}
