package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "badgetool.log")
	log, err := Init(Config{Level: "debug", Format: "json", OutputPath: out})
	require.Nil(t, err)
	require.Same(t, log, L())

	log.Debug("tree rebuilt", zap.Int("entries", 3))
	require.Nil(t, Sync())

	data, err := os.ReadFile(out)
	require.Nil(t, err)
	require.Contains(t, string(data), `"msg":"tree rebuilt"`)
	require.Contains(t, string(data), `"entries":3`)
}

func TestSetLevelFilters(t *testing.T) {
	out := filepath.Join(t.TempDir(), "badgetool.log")
	log, err := Init(Config{Level: "info", Format: "console", OutputPath: out})
	require.Nil(t, err)

	log.Debug("hidden")
	SetLevel("debug")
	log.Debug("shown")
	SetLevel("bogus")
	require.Nil(t, Sync())

	data, err := os.ReadFile(out)
	require.Nil(t, err)
	require.NotContains(t, string(data), "hidden")
	require.Contains(t, string(data), "shown")
}

func TestInitOff(t *testing.T) {
	log, err := Init(Config{OutputPath: "off"})
	require.Nil(t, err)
	require.False(t, log.Core().Enabled(zap.ErrorLevel))
}
