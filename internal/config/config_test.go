package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/usbserial"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usbserial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	line, err := cfg.LineConfig()
	require.NoError(t, err)
	assert.Equal(t, usbserial.DefaultLineConfig(), line)

	mgr, err := cfg.ManagerConfig()
	require.NoError(t, err)
	assert.Equal(t, usbserial.DefaultManagerConfig(), mgr)

	assert.Equal(t, "sysfs", cfg.Transport)
	assert.Equal(t, 4096, cfg.Records.Capacity)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
transport: bugst
line:
  baud: 115200
  parity: even
  stop_bits: 2
session:
  mode: multi
  read_mode: direct
  configure_policy: abort
  await_permission: true
  permission_timeout: 5s
  open_timeout: 2s
records:
  capacity: 10
nats:
  url: nats://localhost:4222
log:
  level: debug
  output: discard
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	line, err := cfg.LineConfig()
	require.NoError(t, err)
	assert.Equal(t, 115200, line.BaudRate)
	assert.Equal(t, 8, line.DataBits)
	assert.Equal(t, 2, line.StopBits)
	assert.Equal(t, usbserial.ParityEven, line.Parity)

	mgr, err := cfg.ManagerConfig()
	require.NoError(t, err)
	assert.Equal(t, usbserial.MultiSession, mgr.Mode)
	assert.Equal(t, usbserial.ReadModeDirect, mgr.ReadMode)
	assert.Equal(t, usbserial.ConfigureAbort, mgr.ConfigurePolicy)
	assert.True(t, mgr.AwaitPermission)
	assert.Equal(t, 5*time.Second, mgr.PermissionTimeout)
	assert.Equal(t, 2*time.Second, mgr.OpenTimeout)

	assert.Equal(t, "bugst", cfg.Transport)
	assert.Equal(t, 10, cfg.Records.Capacity)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "usbserial.records", cfg.NATS.Subject)
	assert.Equal(t, "discard", cfg.Log.Output)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("USBSERIAL_LINE_BAUD", "9600")
	t.Setenv("USBSERIAL_SESSION_MODE", "multi")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.Line.Baud)
	assert.Equal(t, "multi", cfg.Session.Mode)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"baud", "line:\n  baud: 12345\n"},
		{"parity", "line:\n  parity: sideways\n"},
		{"mode", "session:\n  mode: both\n"},
		{"transport", "transport: bluetooth\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
