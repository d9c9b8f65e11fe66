package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestLoadConversions(t *testing.T) {
	table, err := loadConversions("")
	require.NoError(t, err)
	assert.Equal(t, 100, table.Len())

	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
default = 1

[[section]]
name = "Meat"
conversions = { P10002 = 36 }
`), 0o600))

	table, err = loadConversions(path)
	require.NoError(t, err)
	assert.Equal(t, "36", table.Lookup("P10002").String())

	_, err = loadConversions(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
