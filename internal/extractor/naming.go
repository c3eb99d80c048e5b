package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	fallbackTitle  = "media"
	maxTitleLength = 80
)

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// SanitizeTitle makes a title usable as a file name component: every
// character other than ASCII letters, digits and whitespace is dropped and
// whitespace runs become a single underscore.
func SanitizeTitle(title string) string {
	cleaned := unsafeTitleChars.ReplaceAllString(title, "")
	sanitized := strings.Join(strings.Fields(cleaned), "_")
	if len(sanitized) > maxTitleLength {
		sanitized = strings.TrimRight(sanitized[:maxTitleLength], "_")
	}
	if sanitized == "" {
		return fallbackTitle
	}
	return sanitized
}

// namer derives {title}_{unixMillis} base names. Two names derived within
// the same millisecond get consecutive suffixes.
type namer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newNamer() *namer {
	return &namer{now: time.Now}
}

func (n *namer) base(title string) string {
	n.mu.Lock()
	millis := n.now().UnixMilli()
	if millis <= n.last {
		millis = n.last + 1
	}
	n.last = millis
	n.mu.Unlock()

	return fmt.Sprintf("%s_%d", SanitizeTitle(title), millis)
}
