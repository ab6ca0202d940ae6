package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: memory
jwt:
  secret: file-secret
outbox:
  poll_interval: 2s
notification:
  recipients: ["billing@example.org"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, int64(2<<20), cfg.Storage.MaxUploadSize)
	assert.Equal(t, []string{"billing@example.org"}, cfg.Notification.Recipients)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: file-secret\n")
	t.Setenv("CMC_SERVER_PORT", "7070")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("DATABASE_PASSWORD", "hunter2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "hunter2", cfg.Database.Password)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: x\ndatabase:\n  driver: mongo\n")

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestValidateRequiresSecret(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\n")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "jwt secret is required")
}
