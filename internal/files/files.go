package files

import (
	"errors"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a name does not resolve to a staged file
var ErrNotFound = errors.New("file not found")

// StagedFile represents a downloaded file waiting in the staging directory
type StagedFile struct {
	Dir           string    `json:"-"`
	RequestedName string    `json:"requested_name,omitempty"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	ModTime       time.Time `json:"mod_time"`
}

// Path returns the absolute location of the file on disk
func (f *StagedFile) Path() string {
	return filepath.Join(f.Dir, f.Name)
}

// Age reports how long ago the file was last written
func (f *StagedFile) Age(now time.Time) time.Duration {
	return now.Sub(f.ModTime)
}

// RetentionPolicy controls how long staged files survive
type RetentionPolicy struct {
	// MaxAge is the age after which the sweep reclaims a file.
	MaxAge time.Duration
	// SweepInterval is the period between two sweeps.
	SweepInterval time.Duration
	// PostDownloadGrace is the delay between a completed download and deletion.
	PostDownloadGrace time.Duration
}

// DefaultRetentionPolicy returns the one hour / thirty minutes / one minute policy
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxAge:            time.Hour,
		SweepInterval:     30 * time.Minute,
		PostDownloadGrace: time.Minute,
	}
}
