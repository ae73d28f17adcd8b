package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   zerolog.Level
	}{
		{"default", Config{Output: "discard"}, zerolog.InfoLevel},
		{"debug flag wins", Config{Output: "discard", Debug: true, Level: "error"}, zerolog.DebugLevel},
		{"explicit level", Config{Output: "discard", Level: "warn"}, zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Init(tt.config))
			assert.Equal(t, tt.want, GetLogger().GetLevel())
		})
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(Config{Output: "discard", Level: "loud"}))
}

func TestInitFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usbserial.log")
	require.NoError(t, Init(Config{Output: path}))
	t.Cleanup(func() {
		_ = Close()
		_ = Init(Config{Output: "discard"})
	})

	l := WithComponent("session")
	l.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"session"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestNewTestLogger(t *testing.T) {
	l := NewTestLogger()
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}
