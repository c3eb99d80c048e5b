package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Format is the kind of media a download produces
type Format string

const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// QualityBest asks for the best available quality
const QualityBest = "best"

// ParseFormat maps a request value onto a Format, defaulting to video
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatVideo:
		return FormatVideo, nil
	case FormatAudio:
		return FormatAudio, nil
	default:
		return "", fmt.Errorf("unknown format %q", value)
	}
}

// Extension returns the container extension the download is converted to
func (f Format) Extension() string {
	if f == FormatAudio {
		return "mp3"
	}
	return "mp4"
}

// Request describes a single download
type Request struct {
	URL     string
	Format  Format
	Quality string
}

// ValidateURL accepts absolute http and https URLs with a host
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidURL, rawURL)
	}
	return nil
}

// audioQualityPattern matches the VBR levels 0-10 and bitrates such as 128K
var audioQualityPattern = regexp.MustCompile(`^(10|[0-9]|[0-9]{2,3}[kK])$`)

// downloadArgs builds the extractor arguments for req writing to template
func downloadArgs(req Request, template string) []string {
	args := []string{"--no-playlist", "--no-progress", "-o", template}

	switch req.Format {
	case FormatAudio:
		args = append(args, "--extract-audio", "--audio-format", "mp3")
		if quality := strings.TrimSpace(req.Quality); audioQualityPattern.MatchString(quality) {
			args = append(args, "--audio-quality", quality)
		}
	default:
		args = append(args, "-f", videoSelector(req.Quality), "--merge-output-format", "mp4")
	}

	return append(args, "--", req.URL)
}

// videoSelector caps the resolution when quality names a height like 720 or 720p
func videoSelector(quality string) string {
	if height, ok := parseHeight(quality); ok {
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
	}
	return "bestvideo+bestaudio/best"
}

func parseHeight(quality string) (int, bool) {
	quality = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "p")
	height, err := strconv.Atoi(quality)
	if err != nil || height <= 0 {
		return 0, false
	}
	return height, true
}
