package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "migrations/0001_init.sql", cfg.MigrationPath)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 20, cfg.Concurrency)
	assert.Empty(t, cfg.DriverTokens)
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	t.Setenv("TWENDE_BENCH_BASE_URL", "http://api.twende.local/")
	t.Setenv("TWENDE_BENCH_DRIVER_TOKENS", "tok-a, ,tok-b")
	t.Setenv("TWENDE_BENCH_APPLY_MIGRATION", "true")
	t.Setenv("TWENDE_DB_DSN", "postgres://db/twende")
	t.Setenv("TWENDE_REDIS_ADDR", "redis:6379")

	cfg, err := loadConfig([]string{"--concurrency=4", "--duration=2s"})
	require.NoError(t, err)
	assert.Equal(t, "http://api.twende.local", cfg.BaseURL)
	assert.Equal(t, []string{"tok-a", "tok-b"}, cfg.DriverTokens)
	assert.True(t, cfg.ApplyMigration)
	assert.Equal(t, "postgres://db/twende", cfg.DSN)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Duration)

	t.Setenv("TWENDE_BENCH_DSN", "postgres://bench/twende")
	cfg, err = loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://bench/twende", cfg.DSN)
}

func TestLoadConfigRejectsNonPositive(t *testing.T) {
	_, err := loadConfig([]string{"--concurrency=0"})
	assert.Error(t, err)
	_, err = loadConfig([]string{"--bogus"})
	assert.Error(t, err)
}

func TestTally(t *testing.T) {
	var tl tally
	for _, s := range []string{statusPass, statusPass, statusSkip} {
		tl.add(Result{Status: s})
	}
	assert.Equal(t, "PASS=2 FAIL=0 SKIP=1", tl.String())
	assert.False(t, tl.failed(false))
	assert.True(t, tl.failed(true))

	tl.add(Result{Status: statusFail})
	assert.True(t, tl.failed(false))
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, Result{Name: "API: health", Status: statusPass, Latency: 1234567 * time.Nanosecond, Note: "status=200"})
	assert.Equal(t, "PASS  API: health (1ms) - status=200\n", buf.String())
}
