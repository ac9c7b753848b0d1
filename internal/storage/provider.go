// Package storage defines the corpus file-system abstraction.
package storage

import "time"

// FileInfo is the lightweight listing entry for one note file.
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for corpus file operations.
type Provider interface {
	// List returns metadata for every .md file directly in dir (relative to corpus root), sorted by path.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path (relative to corpus root).
	Read(path string) ([]byte, error)
	// Exists reports whether path (relative to corpus root) is present.
	Exists(path string) (bool, error)
	// Write atomically writes content to path (relative to corpus root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to corpus root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to corpus root) without replacing newPath.
	Move(oldPath, newPath string) error
}
