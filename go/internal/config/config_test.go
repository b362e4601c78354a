package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3001", cfg.Server.SocketURL)
	assert.Equal(t, 25*time.Second, cfg.Sync.HeartbeatInterval.Std())
	assert.Equal(t, 60*time.Second, cfg.Sync.ConnectionTimeout.Std())
	assert.Equal(t, 10, cfg.Sync.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Sync.BackoffMin.Std())
	assert.Equal(t, 30*time.Second, cfg.Sync.BackoffMax.Std())
	assert.Equal(t, "hohma.sync", cfg.Notify.SubjectPrefix)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NoError(t, err)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  socket_url: https://game.example.com
  api_base_url: https://game.example.com/api
sync:
  heartbeat_interval: 10s
  reconnect_attempts: 3
user:
  id: u1
  username: ann
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://game.example.com", cfg.Server.SocketURL)
	assert.Equal(t, "https://game.example.com/api", cfg.Server.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.Sync.HeartbeatInterval.Std())
	assert.Equal(t, 3, cfg.Sync.ReconnectAttempts)
	assert.Equal(t, "u1", cfg.User.ID)
	// unset fields still get defaults
	assert.Equal(t, 60*time.Second, cfg.Sync.ConnectionTimeout.Std())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  socket_url: https://file.example.com
`), 0o600))

	t.Setenv("HOHMA_SOCKET_URL", "https://env.example.com")
	t.Setenv("HOHMA_RECONNECT_ATTEMPTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.SocketURL)
	assert.Equal(t, 7, cfg.Sync.ReconnectAttempts)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not: [valid"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
