package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "https://app.example.com"

database:
  url: "postgres://localhost/outreach_test?sslmode=disable"
  max_open_conns: 10

redis:
  enabled: true
  addr: "redis-test:6379"

scheduler:
  tick_interval_seconds: 15
  stale_sender_seconds: 90
  warmup_horizon_days: 21

logging:
  level: "debug"
  redact_pii: true
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)

	// Test database config
	assert.Equal(t, "postgres://localhost/outreach_test?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)

	// Test redis config
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis-test:6379", cfg.Redis.Addr)

	// Test scheduler config
	assert.Equal(t, 15, cfg.Scheduler.TickIntervalSeconds)
	assert.Equal(t, 90, cfg.Scheduler.StaleSenderSeconds)
	assert.Equal(t, 21, cfg.Scheduler.WarmupHorizonDays)

	// Test logging config
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.RedactPII)
}

func TestLoadDefaults(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://localhost/outreach?sslmode=disable"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30, cfg.Scheduler.TickIntervalSeconds)
	assert.Equal(t, 60, cfg.Scheduler.StaleSenderSeconds)
	assert.Equal(t, 120, cfg.Scheduler.StaleTaskSeconds)
	assert.Equal(t, 300, cfg.Scheduler.StaleLeaseAutoSeconds)
	assert.Equal(t, 600, cfg.Scheduler.StaleLeaseManualSecs)
	assert.Equal(t, 14, cfg.Scheduler.WarmupHorizonDays)
	assert.Equal(t, "outreach:scheduler:leader", cfg.Scheduler.LockKey)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file-host/outreach"
redis:
  addr: "file-redis:6379"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	os.Setenv("DATABASE_URL", "postgres://env-host/outreach")
	os.Setenv("REDIS_ADDR", "env-redis:6379")
	os.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("ALLOWED_ORIGINS")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env-host/outreach", cfg.Database.URL)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestTickInterval(t *testing.T) {
	cfg := SchedulerConfig{TickIntervalSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.TickInterval())
}

func TestLifetime(t *testing.T) {
	cfg := DatabaseConfig{ConnMaxLifetime: 20}
	assert.Equal(t, 20*time.Minute, cfg.Lifetime())
}
