package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamht/forwarder/internal/logger"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvStoreURL, EnvForward, EnvTable,
		"FORWARDER_FIREBASE_DB_URL", "FORWARDER_URL_FORWARD", "FORWARDER_TABLE",
		"FORWARDER_RESTART_DELAY", "FORWARDER_LOG_LEVEL", "FORWARDER_STATUS_LISTEN"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoad_FromEnvWithDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStoreURL, "https://demo.firebaseio.com")
	t.Setenv(EnvForward, "http://localhost:8080")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://demo.firebaseio.com", c.StoreURL)
	assert.Equal(t, "http://localhost:8080", c.Forward)
	assert.Equal(t, "cloudflare", c.Table)
	assert.Equal(t, 5*time.Second, c.RestartDelay)
	assert.Equal(t, 10*time.Second, c.PublishTimeout)
	assert.Equal(t, "cloudflared", c.TunnelCommand)
	assert.Equal(t, logger.FormatJSON, c.Log.Format)
	assert.Equal(t, "forwarder", c.Log.Service)

	spec := c.TunnelSpec()
	assert.Equal(t, "cloudflared", spec.Command)
	assert.Equal(t, []string{"tunnel", "--url", "http://localhost:8080"}, spec.Args)
}

func TestLoad_TableOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStoreURL, "https://demo.firebaseio.com")
	t.Setenv(EnvForward, "http://localhost:8080")
	t.Setenv(EnvTable, "tunnels")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tunnels", c.Table)
}

func TestLoad_MissingRequired(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	var me *MissingError
	require.True(t, errors.As(err, &me), "got %v", err)
	assert.Equal(t, []string{EnvStoreURL, EnvForward}, me.Vars)

	t.Setenv(EnvStoreURL, "https://demo.firebaseio.com")
	_, err = Load("")
	require.True(t, errors.As(err, &me))
	assert.Equal(t, []string{EnvForward}, me.Vars)
}

func TestLoad_TOMLFileAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "forwarder.toml")
	data := `
firebase_db_url = "https://file.firebaseio.com"
url_forward = "http://localhost:3000"
table = "edge"
restart_delay = "2s"
publish_timeout = "3s"
status_listen = ":9090"
url_pattern = 'https://[a-z0-9-]+\.trycloudflare\.com'

[log]
level = "debug"
format = "text"

[log.file]
path = "/var/log/forwarder/forwarder.log"
max_backups = 5

[stderr_log]
path = "/var/log/forwarder/cloudflared.err.log"
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))
	t.Setenv(EnvForward, "http://localhost:4000")
	t.Setenv("FORWARDER_LOG_LEVEL", "warn")

	c, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "https://file.firebaseio.com", c.StoreURL)
	assert.Equal(t, "http://localhost:4000", c.Forward, "env wins over file")
	assert.Equal(t, "edge", c.Table)
	assert.Equal(t, 2*time.Second, c.RestartDelay)
	assert.Equal(t, 3*time.Second, c.PublishTimeout)
	assert.Equal(t, ":9090", c.StatusListen)
	assert.Equal(t, `https://[a-z0-9-]+\.trycloudflare\.com`, c.URLPattern)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, logger.FormatText, c.Log.Format)
	assert.Equal(t, "/var/log/forwarder/forwarder.log", c.Log.File.Path)
	assert.Equal(t, 5, c.Log.File.MaxBackups)
	assert.Equal(t, logger.DefaultMaxSizeMB, c.Log.File.MaxSizeMB)
	assert.Equal(t, "/var/log/forwarder/cloudflared.err.log", c.StderrLog.Path)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORWARDER_FIREBASE_DB_URL", "sqlite:///tmp/urls.db")
	t.Setenv(EnvForward, "http://localhost:8080")
	t.Setenv("FORWARDER_RESTART_DELAY", "750ms")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/urls.db", c.StoreURL)
	assert.Equal(t, 750*time.Millisecond, c.RestartDelay)
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_Negative(t *testing.T) {
	c := &Config{StoreURL: "x", Forward: "y", RestartDelay: -time.Second}
	assert.Error(t, c.Validate())
}

func TestTunnelSpec_ExpandsForwardAndCarriesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "3000")
	c := &Config{
		Forward:       "http://localhost:${APP_PORT}",
		TunnelCommand: "/usr/local/bin/cloudflared",
		TunnelEnv:     []string{"TUNNEL_LOGLEVEL=debug"},
		RestartDelay:  2 * time.Second,
	}
	s := c.TunnelSpec()
	assert.Equal(t, "/usr/local/bin/cloudflared", s.Command)
	assert.Equal(t, []string{"tunnel", "--url", "http://localhost:3000"}, s.Args)
	assert.Equal(t, []string{"TUNNEL_LOGLEVEL=debug"}, s.Env)
	assert.Equal(t, 2*time.Second, s.RestartDelay)
}
