package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/agentcall/pkg/transport"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 200*time.Second, cfg.Session.ConnectTimeout)
	require.Equal(t, transport.DriverGoChannel, cfg.Bus.Driver)
	require.True(t, cfg.LocalParticipant().IsLocal)
}

func TestLoad_YAMLThenEnvironment(t *testing.T) {
	path := writeFile(t, "config.yaml", `
session:
  connect_timeout: 30s
  display_name: Ada
  capabilities:
    supports_video_input: true
bus:
  driver: redis
  addr: redis:6379
store:
  driver: sqlite
  path: /tmp/agentcall.db
`)
	envFile := writeFile(t, "test.env", "AGENTCALL_SESSION_AGENT_NAME=Concierge\n")
	t.Setenv("AGENTCALL_HTTP_ADDR", "0.0.0.0:9999")
	t.Setenv("AGENTCALL_SESSION_CAPABILITIES_SUPPORTS_CHAT_INPUT", "false")
	t.Cleanup(func() { _ = os.Unsetenv("AGENTCALL_SESSION_AGENT_NAME") })

	cfg, err := Load(LoadOptions{Path: path, EnvFile: envFile})
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, cfg.Session.ConnectTimeout)
	require.Equal(t, "Ada", cfg.Session.DisplayName)
	require.Equal(t, "local", cfg.Session.Identity)
	require.Equal(t, "Concierge", cfg.Session.AgentName)
	require.True(t, cfg.Session.Capabilities.SupportsVideoInput)
	require.False(t, cfg.Session.Capabilities.SupportsChatInput)
	require.True(t, cfg.Session.Capabilities.PreConnectBufferEnabled)
	require.Equal(t, "redis", cfg.Bus.Driver)
	require.Equal(t, "redis:6379", cfg.Bus.Addr)
	require.Equal(t, StoreSQLite, cfg.Store.Driver)
	require.Equal(t, "0.0.0.0:9999", cfg.HTTP.Addr)
	require.Len(t, cfg.SessionOptions(), 5)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	bad := writeFile(t, "bad.yaml", "store:\n  driver: postgres\n")
	_, err = Load(LoadOptions{Path: bad})
	require.Error(t, err)

	noPath := writeFile(t, "nopath.yaml", "store:\n  driver: sqlite\n")
	_, err = Load(LoadOptions{Path: noPath})
	require.Error(t, err)

	badLevel := writeFile(t, "level.yaml", "log:\n  level: loud\n")
	_, err = Load(LoadOptions{Path: badLevel})
	require.Error(t, err)
}

func TestLoad_ExpandsHomeInStorePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	path := writeFile(t, "config.yaml", "store:\n  driver: sqlite\n  path: ~/attempts.db\n")
	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "attempts.db"), cfg.Store.Path)
	require.Equal(t, filepath.Join(home, ".agentcall", "config.yaml"), DefaultPath())
}
