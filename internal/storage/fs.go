package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/othala/internal/fingerprint"
	"github.com/starford/othala/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root     string   // absolute path to vault directory
	excluded []string // folder prefixes (relative, slash-separated) skipped entirely
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist. Folders listed in excluded (and
// everything beneath them) are invisible to List.
func NewFS(root string, excluded []string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	cleaned := make([]string, 0, len(excluded))
	for _, e := range excluded {
		e = strings.Trim(filepath.ToSlash(filepath.Clean(e)), "/")
		if e != "" && e != "." {
			cleaned = append(cleaned, e)
		}
	}
	return &FS{root: abs, excluded: cleaned}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string { return f.root }

// Excluded reports whether rel (slash-separated, relative) falls under
// an excluded folder.
func (f *FS) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, e := range f.excluded {
		if rel == e || strings.HasPrefix(rel, e+"/") {
			return true
		}
	}
	return false
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// List walks dir (relative to root) and returns fingerprinted metadata
// for every .md file. An unreadable file is reported as a PathError and
// the walk continues; only a failure of the walk itself aborts.
func (f *FS) List(dir string) ([]models.FileMeta, []PathError, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, nil, err
	}
	var out []models.FileMeta
	var perr []PathError
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			rel, _ := filepath.Rel(f.root, p)
			perr = append(perr, PathError{Path: filepath.ToSlash(rel), Err: walkErr})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if f.Excluded(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") || f.Excluded(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			perr = append(perr, PathError{Path: rel, Err: infoErr})
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			perr = append(perr, PathError{Path: rel, Err: readErr})
			return nil
		}
		out = append(out, models.FileMeta{
			Path:        rel,
			Fingerprint: fingerprint.Sum(data),
			UpdatedAt:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, perr, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".othala-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
