package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadMissingFileFallsBackToDefaults verifies an absent file is fine.
func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "muster_events", cfg.Redis.Queue)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenExpire)
	assert.Equal(t, 32, cfg.Session.NotifyBuffer)
}

// TestLoadFileOverridesDefaults verifies file values win over defaults while
// unset fields keep them.
func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muster.yaml")
	body := []byte(`
listenAddr: ":9000"
redis:
  addr: "redis.internal:6379"
  queue: "events_test"
auth:
  tokenExpire: 1h
session:
  msgBurst: 5
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg := Load(path)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "events_test", cfg.Redis.Queue)
	assert.Equal(t, time.Hour, cfg.Auth.TokenExpire)
	assert.Equal(t, 5, cfg.Session.MsgBurst)
	// Untouched by the file, so defaults survive.
	assert.Equal(t, 32, cfg.Session.NotifyBuffer)
	assert.InDelta(t, 10, cfg.Session.MsgRate, 0.001)
}

// TestEnvWinsOverFile verifies the precedence chain ends at the environment.
func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muster.yaml")
	body := []byte(`
listenAddr: ":9000"
redis:
  addr: "redis.internal:6379"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("PORT", "7777")
	t.Setenv("REDIS_ADDR", "other:6380")
	t.Setenv("TOKEN_EXPIRE_TIME", "30m")
	t.Setenv("WS_MSG_BURST", "3")

	cfg := Load(path)

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "other:6380", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenExpire)
	assert.Equal(t, 3, cfg.Session.MsgBurst)
}

// TestBadDurationIgnored verifies an unparseable override keeps the prior
// value rather than zeroing it.
func TestBadDurationIgnored(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "soon")

	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenExpire)
}

// TestDSNPrefersURL verifies DATABASE_URL short-circuits DSN assembly.
func TestDSNPrefersURL(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://u:p@h:5432/d"
	assert.Equal(t, "postgres://u:p@h:5432/d", cfg.DSN())
}

// TestDSNAssemblesFromParts verifies the discrete variable fallback.
func TestDSNAssemblesFromParts(t *testing.T) {
	t.Setenv("POSTGRES_USER", "muster")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "5432")
	t.Setenv("PG_DATABASE", "muster")

	cfg := Default()
	assert.Equal(t, "postgres://muster:secret@db:5432/muster", cfg.DSN())
}
