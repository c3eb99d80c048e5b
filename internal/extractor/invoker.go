package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pavel-fokin/media-stash/internal/files"
)

// Timeout defaults
const (
	DefaultProbeTimeout    = 5 * time.Second
	DefaultMetadataTimeout = 30 * time.Second
	DefaultDownloadTimeout = 300 * time.Second
)

// waitDelay bounds how long a killed process may hold its output pipes open
const waitDelay = 2 * time.Second

// Stage is the destination directory of a download
type Stage interface {
	// Path returns the location of name inside the staging directory
	Path(name string) string
	// Latest returns the newest complete file named prefix.<ext>
	Latest(prefix string) (*files.StagedFile, error)
	// Purge removes every file named prefix.<ext>, partial files included
	Purge(prefix string) int
}

// Config configures the extractor invoker
type Config struct {
	// Candidates are probed in order, the first one answering --version wins.
	Candidates      []Candidate
	ProbeTimeout    time.Duration
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	// CacheExecutable keeps the first resolved candidate until it fails to start.
	CacheExecutable bool
}

// Invoker runs the external extractor
type Invoker struct {
	cfg   Config
	names *namer

	mu     sync.Mutex
	cached *Executable
}

// NewInvoker creates an invoker, filling unset timeouts with defaults
func NewInvoker(cfg Config) *Invoker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	return &Invoker{
		cfg:   cfg,
		names: newNamer(),
	}
}

// Resolve returns the first candidate that answers the version probe
func (i *Invoker) Resolve(ctx context.Context) (*Executable, error) {
	if i.cfg.CacheExecutable {
		i.mu.Lock()
		cached := i.cached
		i.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
	}

	for _, candidate := range i.cfg.Candidates {
		version, err := i.probe(ctx, candidate)
		if err != nil {
			slog.Debug("Extractor candidate rejected", "candidate", candidate.String(), "error", err)
			continue
		}

		exe := &Executable{Candidate: candidate, Version: version}
		if i.cfg.CacheExecutable {
			i.mu.Lock()
			i.cached = exe
			i.mu.Unlock()
		}
		slog.Debug("Extractor resolved", "candidate", candidate.String(), "version", version)
		return exe, nil
	}

	return nil, fmt.Errorf("%w: none of %d candidates answered the version probe", ErrExtractorUnavailable, len(i.cfg.Candidates))
}

func (i *Invoker) probe(ctx context.Context, candidate Candidate) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.ProbeTimeout)
	defer cancel()

	cmd := candidate.command(ctx, "--version")
	cmd.WaitDelay = waitDelay
	output, err := cmd.Output()
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		return "", err
	}

	return strings.TrimSpace(string(firstLine(output))), nil
}

// FetchMetadata dumps the metadata of a single URL
func (i *Invoker) FetchMetadata(ctx context.Context, rawURL string) (*Metadata, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	exe, err := i.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := i.run(ctx, exe, i.cfg.MetadataTimeout, "--dump-json", "--no-playlist", "--", rawURL)
	switch {
	case errors.Is(err, errTimedOut):
		return nil, fmt.Errorf("%w: %v", ErrMetadataTimeout, err)
	case errors.Is(err, ErrExtractorUnavailable):
		return nil, err
	case err != nil && looksLikeInvalidURL(stderr):
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, diagnostic(stderr))
	case err != nil:
		return nil, fmt.Errorf("%w: %v: %s", ErrExtractionFailed, err, diagnostic(stderr))
	}

	meta, err := ParseMetadata(stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return meta, nil
}

// Download fetches the media described by req into stage and returns the
// file the extractor actually produced.
func (i *Invoker) Download(ctx context.Context, req Request, meta *Metadata, stage Stage) (*files.StagedFile, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}
	if req.Format == "" {
		req.Format = FormatVideo
	}

	exe, err := i.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	title := DefaultTitle
	if meta != nil {
		title = meta.Title
	}
	base := i.names.base(title)
	requested := base + "." + req.Format.Extension()

	args := downloadArgs(req, stage.Path(base+".%(ext)s"))
	slog.Info("Starting download", "url", req.URL, "format", req.Format, "quality", req.Quality, "file", requested)

	_, stderr, err := i.run(ctx, exe, i.cfg.DownloadTimeout, args...)
	if err != nil {
		stage.Purge(base)
		if errors.Is(err, ErrExtractorUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrDownloadFailed, err, diagnostic(stderr))
	}

	file, err := stage.Latest(base)
	if err != nil {
		stage.Purge(base)
		return nil, fmt.Errorf("%w: no output file for %s", ErrDownloadFailed, requested)
	}
	file.RequestedName = requested

	return file, nil
}

// ListExtractors returns up to limit extractor names, all of them when limit <= 0
func (i *Invoker) ListExtractors(ctx context.Context, limit int) ([]string, error) {
	exe, err := i.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := i.run(ctx, exe, i.cfg.MetadataTimeout, "--list-extractors")
	if err != nil {
		if errors.Is(err, ErrExtractorUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrExtractionFailed, err, diagnostic(stderr))
	}

	var extractors []string
	for _, line := range strings.Split(string(stdout), "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		extractors = append(extractors, line)
		if limit > 0 && len(extractors) == limit {
			break
		}
	}
	return extractors, nil
}

// run executes exe with args under timeout. A process still running at the
// deadline is killed together with its children and errTimedOut is
// returned. An executable that cannot be started any more drops the cached
// resolution.
func (i *Invoker) run(ctx context.Context, exe *Executable, timeout time.Duration, args ...string) ([]byte, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exe.command(runCtx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.String(), nil
	}

	// Exited 0 but a leftover child kept the output pipes open
	if errors.Is(err, exec.ErrWaitDelay) {
		slog.Warn("Extractor left its output open after exiting", "candidate", exe.String())
		return stdout.Bytes(), stderr.String(), nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, stderr.String(), fmt.Errorf("%w after %s", errTimedOut, timeout)
	}

	if isStartFailure(err) {
		i.invalidate(exe)
		return nil, stderr.String(), fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}

	return nil, stderr.String(), err
}

// isStartFailure reports whether err means the process never started
func isStartFailure(err error) bool {
	var execErr *exec.Error
	var pathErr *os.PathError
	return errors.As(err, &execErr) || errors.As(err, &pathErr)
}

func (i *Invoker) invalidate(exe *Executable) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached == exe {
		i.cached = nil
	}
}
