// Package storage reads and writes prompt files under a single directory.
package storage

import "time"

// File describes one Markdown file under the root.
type File struct {
	Name      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for prompt directory access.
type Provider interface {
	// List returns metadata for every .md file directly under the root.
	List() ([]File, error)
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Write atomically writes content to the named file.
	Write(name string, content []byte) error
}
