package extractor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// DefaultCandidates lists the invocation forms probed when none are configured
var DefaultCandidates = []string{
	"yt-dlp",
	"/usr/local/bin/yt-dlp",
	"/usr/bin/yt-dlp",
	"/opt/homebrew/bin/yt-dlp",
	"~/.local/bin/yt-dlp",
	"python3 -m yt_dlp",
	"python -m yt_dlp",
}

// Candidate is one way of invoking the extractor: an executable plus the
// leading arguments needed before the real ones, e.g. python3 -m yt_dlp.
type Candidate struct {
	Path string
	Args []string
}

// ParseCandidate splits a whitespace separated invocation and expands a
// leading ~ in the executable path.
func ParseCandidate(entry string) (Candidate, error) {
	fields := strings.Fields(entry)
	if len(fields) == 0 {
		return Candidate{}, fmt.Errorf("empty extractor candidate")
	}

	path, err := homedir.Expand(fields[0])
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to expand candidate %q: %w", entry, err)
	}

	return Candidate{Path: path, Args: fields[1:]}, nil
}

// ParseCandidates parses every entry, skipping blank entries
func ParseCandidates(entries []string) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		candidate, err := ParseCandidate(entry)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (c Candidate) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

func (c Candidate) command(ctx context.Context, args ...string) *exec.Cmd {
	full := make([]string, 0, len(c.Args)+len(args))
	full = append(full, c.Args...)
	full = append(full, args...)
	cmd := exec.CommandContext(ctx, c.Path, full...)
	killGroupOnCancel(cmd)
	return cmd
}

// Executable is a candidate that answered the version probe
type Executable struct {
	Candidate
	Version string
}
