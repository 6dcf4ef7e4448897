// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/othala/internal/models"

// Provider is the interface for vault file operations. Paths are always
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to
	// vault root), skipping excluded folders. A per-file read failure
	// is reported alongside the successfully listed files.
	List(dir string) ([]models.FileMeta, []PathError, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path: tmp file, fsync, rename.
	Write(path string, content []byte) error
}

// PathError records a single unreadable path during a listing; the
// listing itself continues past it.
type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string { return "storage: " + e.Path + ": " + e.Err.Error() }
