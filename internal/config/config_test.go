package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
server:
  http_port: 9090
  shutdown_timeout: 10s

database:
  host: db.local
  port: 5433
  database: fieldbus
  user: gateway
  password: secret
  max_connections: 20

ethercat:
  master_index: 1
  cycle_period: 2ms
  max_incomplete_cycles: 3
  mode: simulated
  sim_slaves:
    - position: 0
      vendor_id: 2
      product_code: 66080850

slave_profiles:
  search_paths:
    - /etc/openfieldbuscore/profiles
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxConnections)

	assert.Equal(t, uint(1), cfg.EtherCAT.MasterIndex)
	assert.Equal(t, 2*time.Millisecond, cfg.EtherCAT.CyclePeriod)
	assert.Equal(t, 3, cfg.EtherCAT.MaxIncompleteCycles)
	require.Len(t, cfg.EtherCAT.SimSlaves, 1)
	assert.Equal(t, uint32(66080850), cfg.EtherCAT.SimSlaves[0].ProductCode)

	assert.Equal(t, []string{"/etc/openfieldbuscore/profiles"}, cfg.Profiles.SearchPaths)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  http_port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, cfg.EtherCAT.CyclePeriod)
	assert.Equal(t, 5, cfg.EtherCAT.MaxIncompleteCycles)
	assert.Equal(t, "simulated", cfg.EtherCAT.Mode)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 5, cfg.Auth.MaxFailedLoginAttempts)
	assert.Equal(t, uint32(64*1024), cfg.Auth.Argon2MemoryKiB)
	assert.Equal(t, uint32(3), cfg.Auth.Argon2Iterations)
	assert.Equal(t, uint8(0), cfg.Auth.Argon2Parallelism)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "ofc",
		User:     "gateway",
		Password: "pw",
	}
	assert.Equal(t, "postgres://gateway:pw@localhost:5432/ofc?sslmode=disable", db.DSN())
}

func TestJWTSecretFallback(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OFC_TEST_JWT_SECRET_UNSET"}
	assert.Equal(t, "dev-secret-change-in-production-min-32-chars", a.GetJWTSecret())
	assert.False(t, a.IsProductionReady())

	t.Setenv("OFC_TEST_JWT_SECRET_UNSET", "a-real-secret-that-is-at-least-32-chars-long")
	assert.True(t, a.IsProductionReady())
}
