package media

import (
	"fmt"
	"regexp"
	"time"
)

// Platform patterns in detection order
var platforms = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{name: "youtube", pattern: regexp.MustCompile(`(?i)(?:youtube\.com|youtu\.be)`)},
	{name: "instagram", pattern: regexp.MustCompile(`(?i)instagram\.com`)},
	{name: "facebook", pattern: regexp.MustCompile(`(?i)facebook\.com|fb\.watch`)},
	{name: "tiktok", pattern: regexp.MustCompile(`(?i)tiktok\.com`)},
	{name: "twitter", pattern: regexp.MustCompile(`(?i)twitter\.com|(?:^|[/.])x\.com`)},
	{name: "linkedin", pattern: regexp.MustCompile(`(?i)linkedin\.com`)},
}

// PlatformUnknown is reported for URLs no pattern recognises
const PlatformUnknown = "unknown"

// DetectPlatform names the social network a URL points to
func DetectPlatform(url string) string {
	for _, p := range platforms {
		if p.pattern.MatchString(url) {
			return p.name
		}
	}
	return PlatformUnknown
}

// FormatDuration renders a duration as H:MM:SS, or M:SS below one hour.
// A zero duration yields nil, meaning unknown.
func FormatDuration(d time.Duration) *string {
	if d <= 0 {
		return nil
	}

	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var formatted string
	if hours > 0 {
		formatted = fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	} else {
		formatted = fmt.Sprintf("%d:%02d", minutes, seconds)
	}
	return &formatted
}
