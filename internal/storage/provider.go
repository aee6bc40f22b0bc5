// Package storage defines the record directory abstraction.
package storage

import "github.com/starford/lettamem/internal/models"

// RecordExt is the file extension of stored records.
const RecordExt = ".json"

// Provider is the interface for record file operations.
type Provider interface {
	// List returns metadata for every .json file under dir (relative to the root).
	List(dir string) ([]models.RecordFile, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the root).
	Write(path string, content []byte) error
	// Root returns the absolute root directory.
	Root() string
}
