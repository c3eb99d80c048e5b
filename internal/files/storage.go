package files

import "io"

// FileStorage defines the interface for the staging directory
type FileStorage interface {
	// Stat returns metadata of a staged file, or ErrNotFound
	Stat(name string) (*StagedFile, error)

	// Open returns the metadata and a reader for a staged file, or ErrNotFound
	Open(name string) (*StagedFile, io.ReadCloser, error)

	// List returns the names of all entries in the staging directory
	List() ([]string, error)

	// Delete removes a staged file. A file that is already gone is not an error.
	Delete(name string) error
}
