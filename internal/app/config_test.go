package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "veritrail", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 5m", cfg.Maintenance.SweepSchedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
server:
  port: 9443
  log_level: debug
database:
  driver: postgres
  postgres:
    enabled: true
    host: db.internal
    port: 5432
    database: veritrail
    username: svc
    password: secret
auth:
  jwt:
    secret: file-secret
    access_token_ttl: 45m
maintenance:
  sweep_schedule: "@hourly"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9443, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	require.Equal(t, "file-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 45*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, "@hourly", cfg.Maintenance.SweepSchedule)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("VERITRAIL_SERVER_PORT", "8443")
	t.Setenv("VERITRAIL_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("VERITRAIL_MAINTENANCE_ENABLED", "false")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8443, cfg.Server.Port)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
	require.False(t, cfg.Maintenance.Enabled)
}

func TestConfigureLogging(t *testing.T) {
	require.NoError(t, ConfigureLogging(""))
	require.NoError(t, ConfigureLogging("debug"))
	// Unknown levels fall back to info rather than failing start-up.
	require.NoError(t, ConfigureLogging("shouting"))
}
