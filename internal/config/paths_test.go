package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(t.TempDir(), "elsewhere")

	cfg := Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.LogsDir = abs

	p, err := cfg.ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "data"), p.DataDir)
	assert.Equal(t, filepath.Join(base, "data", "exports"), p.ExportDir)
	assert.Equal(t, abs, p.LogsDir, "absolute paths are kept")
	assert.Equal(t, filepath.Join(p.ExportDir, "out.csv"), p.ExportPath("out.csv"))
	assert.Equal(t, filepath.Join(p.DataDir, "e.csv"), p.DataFile("e.csv"))
	assert.Equal(t, abs, p.DataFile(abs))
}

func TestResolvePaths_ExecutableDir(t *testing.T) {
	p, err := Default().ResolvePaths()
	require.NoError(t, err)
	assert.NotEmpty(t, p.BaseDir)
	assert.True(t, filepath.IsAbs(p.DataDir))
}

func TestEnsureDirectoriesAndDataFile(t *testing.T) {
	cfg := Default()
	cfg.Paths.BaseDir = t.TempDir()
	p, err := cfg.ResolvePaths()
	require.NoError(t, err)

	require.NoError(t, p.EnsureDirectories())
	for _, dir := range []string{p.DataDir, p.ExportDir, p.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	assert.Equal(t, filepath.Join(p.DataDir, "events.csv"), p.DataFile("events.csv"))
	assert.Equal(t, "/abs/events.csv", p.DataFile("/abs/events.csv"))
	assert.NoFileExists(t, p.DataFile("absent.csv"))
}
