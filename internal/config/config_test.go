package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: production
database:
  host: db
  port: 3306
  user: wavechat
  name: wavechat
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 8082, cfg.App.Port)
	assert.Equal(t, 0.8, cfg.Moderation.BlockThreshold)
	assert.Equal(t, 0.5, cfg.Moderation.FlagThreshold)
	assert.Equal(t, 10*time.Second, cfg.Moderation.Timeout)
	require.NotNil(t, cfg.Moderation.FailOpen)
	assert.True(t, *cfg.Moderation.FailOpen, "fail open is the default")
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadKeepsExplicitFailClosed(t *testing.T) {
	path := writeConfig(t, `
moderation:
  base_url: http://scorer.local/v1
  fail_open: false
  block_threshold: 0.9
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	require.NotNil(t, cfg.Moderation.FailOpen)
	assert.False(t, *cfg.Moderation.FailOpen)
	assert.Equal(t, 0.9, cfg.Moderation.BlockThreshold)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: file-secret
database:
  password: file-password
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("DB_PASSWORD", "env-password")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "env-password", cfg.Database.Password)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 3306
	cfg.Database.User = "wavechat"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "wavechat"

	assert.Equal(t,
		"wavechat:pw@tcp(localhost:3306)/wavechat?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DSN())
}
