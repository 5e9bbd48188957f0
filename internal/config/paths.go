package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths are the directories the service reads events from, writes exports
// to and keeps logs in, all absolute once resolved
type Paths struct {
	BaseDir   string
	DataDir   string
	ExportDir string
	LogsDir   string
}

// ResolvePaths anchors the relative configured directories at BaseDir, or
// at the executable's directory when BaseDir is empty
func (c *Config) ResolvePaths() (*Paths, error) {
	base := c.Paths.BaseDir
	if base == "" {
		dir, err := executableDir()
		if err != nil {
			return nil, err
		}
		base = dir
	}
	return &Paths{
		BaseDir:   base,
		DataDir:   under(base, c.Paths.DataDir),
		ExportDir: under(base, c.Paths.ExportDir),
		LogsDir:   under(base, c.Paths.LogsDir),
	}, nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		exe, err = filepath.EvalSymlinks(exe)
	}
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Dir(exe), nil
}

// under joins a relative path onto dir; empty and absolute paths are kept
func under(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// EnsureDirectories creates the data, export and logs directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.ExportDir, p.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// DataFile resolves an events file name against DataDir
func (p *Paths) DataFile(name string) string {
	return under(p.DataDir, name)
}

// ExportPath is where an export named filename is written
func (p *Paths) ExportPath(filename string) string {
	return filepath.Join(p.ExportDir, filename)
}

// LogPathResolution logs the resolved directories once at startup
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	logger.Info("resolved estimates directories",
		slog.String("base", p.BaseDir),
		slog.String("data", p.DataDir),
		slog.String("exports", p.ExportDir),
		slog.String("logs", p.LogsDir),
	)
}
