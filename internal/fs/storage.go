package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pavel-fokin/media-stash/internal/files"
)

// File extensions the extractor uses for unfinished downloads
var partialExtensions = []string{".part", ".ytdl", ".temp"}

// Storage implements files.FileStorage on a single flat directory
type Storage struct {
	dataDir string
}

// NewStorage creates the data directory if needed and returns a storage rooted at it
func NewStorage(dataDir string) (*Storage, error) {
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Storage{
		dataDir: absDir,
	}, nil
}

// Dir returns the absolute path of the managed directory
func (s *Storage) Dir() string {
	return s.dataDir
}

// Path joins name onto the managed directory without any validation
func (s *Storage) Path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// Stat retrieves the metadata of a staged file
func (s *Storage) Stat(name string) (*files.StagedFile, error) {
	filePath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", files.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", files.ErrNotFound, name)
	}

	return s.stagedFile(info), nil
}

// Open returns the metadata and content of a staged file
func (s *Storage) Open(name string) (*files.StagedFile, io.ReadCloser, error) {
	file, err := s.Stat(name)
	if err != nil {
		return nil, nil, err
	}

	content, err := os.Open(file.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", files.ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, content, nil
}

// List returns the names of all non-directory entries
func (s *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Delete removes a staged file by name
func (s *Storage) Delete(name string) error {
	filePath, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil // File already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Latest returns the most recently written, complete, non-empty file whose
// name starts with prefix followed by an extension.
func (s *Storage) Latest(prefix string) (*files.StagedFile, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var latest *files.StagedFile
	for _, entry := range entries {
		if !matchesPrefix(entry.Name(), prefix) || isPartial(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}

		if latest == nil || info.ModTime().After(latest.ModTime) {
			latest = s.stagedFile(info)
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("%w: no file with prefix %s", files.ErrNotFound, prefix)
	}
	return latest, nil
}

// Purge removes every entry belonging to prefix, including partial files,
// and returns how many were removed.
func (s *Storage) Purge(prefix string) int {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !matchesPrefix(entry.Name(), prefix) {
			continue
		}
		if err := s.Delete(entry.Name()); err == nil {
			removed++
		}
	}
	return removed
}

// resolve maps a bare file name onto a path inside the managed directory
func (s *Storage) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid name %q", files.ErrNotFound, name)
	}

	filePath := filepath.Join(s.dataDir, name)
	rel, err := filepath.Rel(s.dataDir, filePath)
	if err != nil || rel != name {
		return "", fmt.Errorf("%w: %q escapes data directory", files.ErrNotFound, name)
	}

	return filePath, nil
}

func (s *Storage) stagedFile(info os.FileInfo) *files.StagedFile {
	return &files.StagedFile{
		Dir:     s.dataDir,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// matchesPrefix requires the prefix to be followed by an extension, so a
// base name never matches a longer base name that merely starts with it.
func matchesPrefix(name, prefix string) bool {
	return prefix != "" && strings.HasPrefix(name, prefix+".")
}

func isPartial(name string) bool {
	for _, ext := range partialExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
