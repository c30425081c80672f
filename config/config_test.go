package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"PORT", "DATABASE_URL", "GATEWAY_TOKEN", "ALLOWED_ORIGINS", "UNIQUENESS_POLICY",
	"BATCH_WORKERS", "SETTLEMENT_INTERVAL", "SYNC_SERVICE_URL", "SYNC_SERVICE_TOKEN",
	"SYNC_INTERVAL", "CLOUDFLARE_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_ACCESS_KEY_SECRET",
	"R2_BUCKET_NAME", "CDN_BASE_URL", "DRAW_TYPE_CATALOG", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/loyalty")
	t.Setenv("GATEWAY_TOKEN", "secret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "per_definition", cfg.UniquenessPolicy)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, time.Minute, cfg.SettlementInterval)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.False(t, cfg.R2.Enabled())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/loyalty")
	t.Setenv("GATEWAY_TOKEN", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("BATCH_WORKERS", "16")
	t.Setenv("SETTLEMENT_INTERVAL", "30s")
	t.Setenv("SYNC_SERVICE_URL", "http://sync.internal/")
	t.Setenv("SYNC_SERVICE_TOKEN", "sync-token")
	t.Setenv("R2_BUCKET_NAME", "reports")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_ACCESS_KEY_SECRET", "shh")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 16, cfg.BatchWorkers)
	assert.Equal(t, 30*time.Second, cfg.SettlementInterval)
	assert.Equal(t, "http://sync.internal", cfg.SyncServiceURL)
	assert.True(t, cfg.R2.Enabled())
}

func TestFromEnvReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_WORKERS", "zero")
	t.Setenv("SYNC_INTERVAL", "-1m")
	t.Setenv("SYNC_SERVICE_URL", "http://sync.internal")
	t.Setenv("R2_BUCKET_NAME", "reports")

	_, err := FromEnv()
	require.ErrorIs(t, err, ErrMissingVariable)
	for _, want := range []string{"DATABASE_URL", "GATEWAY_TOKEN", "BATCH_WORKERS", "SYNC_INTERVAL", "SYNC_SERVICE_TOKEN", "R2_ACCESS_KEY_ID"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := &Config{LogLevel: "debug", LogFormat: "JSON"}
	require.NoError(t, cfg.ConfigureLogging())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg.LogLevel = "chatty"
	assert.Error(t, cfg.ConfigureLogging())
}
