package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3001", cfg.ServerAddr())
	assert.Equal(t, "0.0.0.0:5173", cfg.UIAddr())
	assert.Equal(t, "http://127.0.0.1:3001", cfg.ServerURL)
	assert.Equal(t, 10, cfg.ClientTimeout)
	assert.Equal(t, 0, cfg.ClientRetries)
	assert.Empty(t, cfg.AuthSecret)
	assert.Equal(t, ".sharedshape", cfg.StateDir)
	assert.Equal(t, "webui/web/vendor", cfg.VendorDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHAPE_SERVER_PORT", "4000")
	t.Setenv("SHAPE_AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.ServerPort)
	assert.Equal(t, "s3cret", cfg.AuthSecret)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHAPE_CLIENT_RETRIES=3\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SHAPE_CLIENT_RETRIES") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ClientRetries)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://example.test:9000\nui_port: 8080\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.test:9000", cfg.ServerURL)
	assert.Equal(t, 8080, cfg.UIPort)
	assert.Equal(t, 3001, cfg.ServerPort)
}

func TestLoadRejectsBadClientSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_timeout_seconds: 0\n"), 0o644))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "client_timeout_seconds")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
