package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbvault/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dbvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "/tmp/dbvault", cfg.TempRoot())
	assert.Equal(t, 2*time.Hour, cfg.BackupTimeout())
	assert.Equal(t, 2*time.Hour, cfg.RestoreTimeout())
	assert.Equal(t, time.Hour, cfg.VerifyTimeout())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 2, cfg.BackupAttempts())
	assert.Equal(t, "normal", cfg.LogLevel())
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
temp_root: /var/lib/dbvault/work
master_key: super-secret
timeouts:
  backup: 4h
  connect: 10s
retry:
  backup_attempts: 3
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/dbvault/work", cfg.TempRoot())
	assert.Equal(t, "super-secret", cfg.MasterKey())
	assert.Equal(t, 4*time.Hour, cfg.BackupTimeout())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 3, cfg.BackupAttempts())
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, "json", cfg.LogFormat())
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "temp_root: [not: valid: yaml")

	_, err := Load(path)

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))
}

func TestLoad_InvalidAttempts(t *testing.T) {
	path := writeConfig(t, "retry:\n  backup_attempts: 0\n")

	_, err := Load(path)

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))
}

func TestConfig_Reload(t *testing.T) {
	path := writeConfig(t, "temp_root: /first\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/first", cfg.TempRoot())

	require.NoError(t, os.WriteFile(path, []byte("temp_root: /second\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, "/second", cfg.TempRoot())
}

func TestConfig_ImplementsSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var _ Settings = cfg
}
