package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Service manages the lifecycle of staged files: retrieval, scheduled
// deletion after a download and the periodic age based sweep.
type Service struct {
	storage FileStorage
	policy  RetentionPolicy
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewService creates a new staged file service
func NewService(storage FileStorage, policy RetentionPolicy) *Service {
	return &Service{
		storage: storage,
		policy:  policy,
		now:     time.Now,
		pending: make(map[string]*time.Timer),
	}
}

// Policy returns the retention policy the service enforces
func (s *Service) Policy() RetentionPolicy {
	return s.policy
}

// Retrieve opens a staged file for streaming. Once the returned reader has
// been consumed to EOF the file is scheduled for deletion after the
// post-download grace period.
func (s *Service) Retrieve(name string) (*StagedFile, io.ReadCloser, error) {
	file, content, err := s.storage.Open(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to open staged file: %w", err)
	}

	// Expired handles behave as if the sweep already ran
	if file.Age(s.now()) > s.policy.MaxAge {
		content.Close()
		s.remove(name, "expired")
		return nil, nil, fmt.Errorf("%w: %s has expired", ErrNotFound, name)
	}

	return file, &claimedReader{
		ReadCloser: content,
		onEOF:      func() { s.scheduleDelete(name) },
	}, nil
}

// SweepResult summarises a single sweep pass
type SweepResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// Sweep deletes every staged file older than the maximum age. Entries are
// processed independently; a failure on one entry never stops the pass.
func (s *Service) Sweep() SweepResult {
	var result SweepResult

	names, err := s.storage.List()
	if err != nil {
		slog.Error("Sweep failed to list staging directory", "error", err)
		result.Errors++
		return result
	}

	cutoff := s.now().Add(-s.policy.MaxAge)
	for _, name := range names {
		result.Scanned++

		file, err := s.storage.Stat(name)
		if err != nil {
			// Removed by a concurrent download cleanup
			if errors.Is(err, ErrNotFound) {
				continue
			}
			slog.Warn("Sweep failed to stat file", "error", err, "file", name)
			result.Errors++
			continue
		}

		if !file.ModTime.Before(cutoff) {
			continue
		}

		s.forget(name)
		if err := s.storage.Delete(name); err != nil {
			slog.Warn("Sweep failed to delete file", "error", err, "file", name)
			result.Errors++
			continue
		}
		result.Deleted++
	}

	if result.Deleted > 0 || result.Errors > 0 {
		slog.Info("Sweep completed",
			"scanned", result.Scanned,
			"deleted", result.Deleted,
			"errors", result.Errors,
		)
	}

	return result
}

// Run sweeps once immediately and then on every sweep interval until ctx is done
func (s *Service) Run(ctx context.Context) {
	s.Sweep()

	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Close stops all pending deletions and removes their files right away.
// Downloads completed after Close are deleted without a grace period.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	names := make([]string, 0, len(s.pending))
	for name, timer := range s.pending {
		if timer.Stop() {
			names = append(names, name)
		}
		delete(s.pending, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.remove(name, "shutdown")
	}
}

// Scheduled reports whether a deletion is pending for name
func (s *Service) Scheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[name]
	return ok
}

// scheduleDelete arms the post-download timer for name. A file already
// scheduled keeps its first deadline.
func (s *Service) scheduleDelete(name string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.remove(name, "post-download")
		return
	}
	if _, ok := s.pending[name]; ok {
		s.mu.Unlock()
		return
	}
	s.pending[name] = time.AfterFunc(s.policy.PostDownloadGrace, func() {
		s.mu.Lock()
		delete(s.pending, name)
		s.mu.Unlock()
		s.remove(name, "post-download")
	})
	s.mu.Unlock()

	slog.Info("Scheduled staged file deletion", "file", name, "grace", s.policy.PostDownloadGrace.String())
}

// forget cancels a pending deletion, used when the sweep gets there first
func (s *Service) forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.pending[name]; ok {
		timer.Stop()
		delete(s.pending, name)
	}
}

func (s *Service) remove(name, reason string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete staged file", "error", err, "file", name, "reason", reason)
		return
	}
	slog.Info("Deleted staged file", "file", name, "reason", reason)
}

// claimedReader fires onEOF the first time the underlying reader is drained
type claimedReader struct {
	io.ReadCloser
	once  sync.Once
	onEOF func()
}

func (r *claimedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == io.EOF {
		r.once.Do(r.onEOF)
	}
	return n, err
}
