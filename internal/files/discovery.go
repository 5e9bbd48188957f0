package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/sharongu/zipline/internal/errors"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery resolves events sources relative to a base directory
type Discovery struct {
	basePath   string
	extensions []string
}

// NewDiscovery creates a discovery rooted at basePath that accepts files
// with the given extensions (".csv", ".xlsx", ...)
func NewDiscovery(basePath string, extensions ...string) *Discovery {
	exts := make([]string, len(extensions))
	for i, ext := range extensions {
		exts[i] = strings.ToLower(ext)
	}
	return &Discovery{basePath: basePath, extensions: exts}
}

// Resolve expands sources in order. A source is a file, a directory (every
// accepted file in it, by name) or a glob pattern (accepted matches, by
// name). Duplicates keep their first position. A missing file, an empty
// directory or a pattern with no match is an error.
func (d *Discovery) Resolve(sources []string) ([]FileInfo, error) {
	var out []FileInfo
	seen := make(map[string]struct{})
	add := func(found []FileInfo) {
		for _, f := range found {
			if _, dup := seen[f.Path]; dup {
				continue
			}
			seen[f.Path] = struct{}{}
			out = append(out, f)
		}
	}

	for _, src := range sources {
		found, err := d.resolveOne(src)
		if err != nil {
			return nil, err
		}
		add(found)
	}
	return out, nil
}

func (d *Discovery) resolveOne(src string) ([]FileInfo, error) {
	fullPath := d.fullPath(src)

	if isPattern(src) {
		found, err := d.FindFilesByPattern(filepath.Dir(fullPath), filepath.Base(fullPath))
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, apperrors.NewStorageError(fmt.Sprintf("no events files match %s", fullPath), os.ErrNotExist)
		}
		return found, nil
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("events source %s", fullPath), err)
	}
	if !info.IsDir() {
		return []FileInfo{fileInfo(fullPath, info)}, nil
	}

	found, err := d.FindFiles(fullPath)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperrors.NewStorageError(fmt.Sprintf("no events files in %s", fullPath), os.ErrNotExist)
	}
	return found, nil
}

// FindFiles lists the accepted files of dir sorted by name, skipping
// subdirectories and Office lock files (~$...)
func (d *Discovery) FindFiles(dir string) ([]FileInfo, error) {
	fullPath := d.fullPath(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read directory %s", fullPath), err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !d.accepts(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo(filepath.Join(fullPath, entry.Name()), info))
	}

	sortByName(files)
	return files, nil
}

// FindFilesByPattern lists the accepted files of dir matching a glob
// pattern, sorted by name
func (d *Discovery) FindFilesByPattern(dir string, pattern string) ([]FileInfo, error) {
	searchPattern := filepath.Join(d.fullPath(dir), pattern)

	matches, err := filepath.Glob(searchPattern)
	if err != nil {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("invalid pattern %s: %v", pattern, err))
	}

	var files []FileInfo
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() || !d.accepts(match) {
			continue
		}
		files = append(files, fileInfo(match, info))
	}

	sortByName(files)
	return files, nil
}

// Paths returns the paths of files, in order
func Paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func (d *Discovery) fullPath(path string) string {
	if filepath.IsAbs(path) || d.basePath == "" {
		return path
	}
	return filepath.Join(d.basePath, path)
}

func (d *Discovery) accepts(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		return false
	}
	if len(d.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, accepted := range d.extensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

func isPattern(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

func fileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:    path,
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

func sortByName(files []FileInfo) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
}
