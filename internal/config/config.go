// Package config loads the engine configuration from a YAML file with
// environment overrides. The resulting Config is injected explicitly into
// every component; nothing reads it through global state.
package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"

	"dbvault/internal/errors"
)

// Settings is the read-only view handed to components
type Settings interface {
	TempRoot() string
	MasterKey() string
	LockDir() string
	BackupTimeout() time.Duration
	RestoreTimeout() time.Duration
	VerifyTimeout() time.Duration
	ConnectTimeout() time.Duration
	BackupAttempts() int
	RetryDelay() time.Duration
	LogLevel() string
	LogFormat() string
}

// Config holds the engine configuration. Values are reloadable through
// Reload; readers always see a consistent snapshot.
type Config struct {
	mu   sync.RWMutex
	path string
	v    values
}

type values struct {
	tempRoot       string
	masterKey      string
	lockDir        string
	backupTimeout  time.Duration
	restoreTimeout time.Duration
	verifyTimeout  time.Duration
	connectTimeout time.Duration
	backupAttempts int
	retryDelay     time.Duration
	logLevel       string
	logFormat      string
}

// Load reads the configuration file at path. A missing file yields the
// defaults; a malformed file is a configuration error.
func Load(path string) (*Config, error) {
	c := &Config{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the configuration file, replacing the current snapshot
func (c *Config) Reload() error {
	v := viper.New()

	v.SetDefault("temp_root", "/tmp/dbvault")
	v.SetDefault("lock_dir", "/tmp/dbvault/locks")
	v.SetDefault("timeouts.backup", "2h")
	v.SetDefault("timeouts.restore", "2h")
	v.SetDefault("timeouts.verify", "1h")
	v.SetDefault("timeouts.connect", "30s")
	v.SetDefault("retry.backup_attempts", 2)
	v.SetDefault("retry.delay", "30s")
	v.SetDefault("log.level", "normal")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("DBVAULT")
	v.AutomaticEnv()

	if c.path != "" {
		v.SetConfigFile(c.path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return errors.NewConfigurationError("failed to read configuration file", err).
					WithContext("path", c.path)
			}
		}
	}

	loaded := values{
		tempRoot:       v.GetString("temp_root"),
		masterKey:      v.GetString("master_key"),
		lockDir:        v.GetString("lock_dir"),
		backupTimeout:  v.GetDuration("timeouts.backup"),
		restoreTimeout: v.GetDuration("timeouts.restore"),
		verifyTimeout:  v.GetDuration("timeouts.verify"),
		connectTimeout: v.GetDuration("timeouts.connect"),
		backupAttempts: v.GetInt("retry.backup_attempts"),
		retryDelay:     v.GetDuration("retry.delay"),
		logLevel:       v.GetString("log.level"),
		logFormat:      v.GetString("log.format"),
	}

	if loaded.backupAttempts < 1 {
		return errors.NewConfigurationError("retry.backup_attempts must be at least 1", nil)
	}

	c.mu.Lock()
	c.v = loaded
	c.mu.Unlock()
	return nil
}

func (c *Config) snapshot() values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

func (c *Config) TempRoot() string              { return c.snapshot().tempRoot }
func (c *Config) MasterKey() string             { return c.snapshot().masterKey }
func (c *Config) LockDir() string               { return c.snapshot().lockDir }
func (c *Config) BackupTimeout() time.Duration  { return c.snapshot().backupTimeout }
func (c *Config) RestoreTimeout() time.Duration { return c.snapshot().restoreTimeout }
func (c *Config) VerifyTimeout() time.Duration  { return c.snapshot().verifyTimeout }
func (c *Config) ConnectTimeout() time.Duration { return c.snapshot().connectTimeout }
func (c *Config) BackupAttempts() int           { return c.snapshot().backupAttempts }
func (c *Config) RetryDelay() time.Duration     { return c.snapshot().retryDelay }
func (c *Config) LogLevel() string              { return c.snapshot().logLevel }
func (c *Config) LogFormat() string             { return c.snapshot().logFormat }
