package extractor

import (
	"errors"
	"strings"
)

var (
	// ErrExtractorUnavailable means no candidate executable answered the version probe
	ErrExtractorUnavailable = errors.New("extractor unavailable")
	// ErrInvalidURL means the URL is malformed or not supported by the extractor
	ErrInvalidURL = errors.New("invalid or unsupported URL")
	// ErrMetadataTimeout means the metadata dump exceeded its time bound
	ErrMetadataTimeout = errors.New("metadata request timed out")
	// ErrExtractionFailed covers any other metadata failure
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrDownloadFailed covers download timeouts, non-zero exits and missing output
	ErrDownloadFailed = errors.New("download failed")
)

// errTimedOut marks a subprocess killed because its time bound passed
var errTimedOut = errors.New("timed out")

// Markers yt-dlp prints on stderr for URLs it cannot handle
var invalidURLMarkers = []string{
	"unsupported url",
	"is not a valid url",
	"invalid url",
}

func looksLikeInvalidURL(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range invalidURLMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// diagnostic returns the tail of the subprocess stderr, enough to explain a failure
func diagnostic(stderr string) string {
	const maxLen = 512
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxLen {
		stderr = "..." + stderr[len(stderr)-maxLen:]
	}
	return stderr
}
