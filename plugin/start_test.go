package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/config"
	"github.com/danmuck/tilepad-sdk/internal/testutil/hosttest"
	"github.com/danmuck/tilepad-sdk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvConfigPath, "")
	path := filepath.Join(t.TempDir(), "plugin.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
plugin_id = "com.example.file"
connect_url = "ws://127.0.0.1:59371/plugins/ws"
access_token = "from-file"
call_timeout = "3s"
`), 0o600))

	cfg, err := loadConfig([]string{"--config", path, "--plugin-id", "com.example.flag", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "com.example.flag", cfg.PluginID)
	assert.Equal(t, "ws://127.0.0.1:59371/plugins/ws", cfg.ConnectURL)
	assert.Equal(t, "from-file", cfg.AccessToken.Value())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Session.CallTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "plugin.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
plugin_id = "com.example.env"
connect_url = "ws://127.0.0.1:59371/plugins/ws"
`), 0o600))
	t.Setenv(config.EnvConfigPath, path)

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "com.example.env", cfg.PluginID)
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvConfigPath, "")

	_, err := loadConfig([]string{"--connect-url", "ws://127.0.0.1:1/plugins/ws"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = loadConfig([]string{"--plugin-id", "com.example.x"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = loadConfig([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestStartWithArgsRunsUntilCancelled(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvConfigPath, "")
	host := hosttest.New(t, nil, hosttest.WithMethod(MethodGetProperties, propertiesMethod))
	p := newRecordingPlugin()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- StartWithArgs(ctx, p, []string{"--plugin-id", testPluginID, "--connect-url", host.URL()})
	}()

	conn := host.NextRegistration(t, 2*time.Second)
	assert.Equal(t, testPluginID, conn.PluginID())
	assert.Equal(t, "registered", p.next(t))
	assert.Equal(t, "properties:3", p.next(t))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StartWithArgs did not return after cancel")
	}
}

func TestStartWithArgsReportsBadConfig(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvConfigPath, "")
	err := StartWithArgs(context.Background(), BasePlugin{}, []string{"--plugin-id", "x"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
