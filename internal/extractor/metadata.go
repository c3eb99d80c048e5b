package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Defaults used when the extractor output lacks a field or carries a bad value
const (
	DefaultTitle    = "Unknown Title"
	DefaultUploader = "Unknown"
)

// Metadata is the subset of the extractor's JSON dump the service uses
type Metadata struct {
	Title     string
	Thumbnail string
	// Duration is zero when the source does not report one.
	Duration  time.Duration
	Uploader  string
	ViewCount int64
	Formats   []json.RawMessage
}

// ParseMetadata decodes the first JSON object of a --dump-json output.
// Individual fields are decoded leniently: a missing or mistyped field falls
// back to its default instead of failing the whole record.
func ParseMetadata(output []byte) (*Metadata, error) {
	line := firstLine(output)
	if len(line) == 0 {
		return nil, fmt.Errorf("empty metadata output")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("metadata is not an object")
	}

	meta := &Metadata{
		Title:     stringField(fields, DefaultTitle, "title", "fulltitle"),
		Thumbnail: stringField(fields, "", "thumbnail"),
		Uploader:  stringField(fields, DefaultUploader, "uploader", "channel"),
	}

	if seconds, ok := numberField(fields, "duration"); ok && seconds > 0 {
		meta.Duration = time.Duration(seconds * float64(time.Second))
	}
	if views, ok := numberField(fields, "view_count"); ok && views > 0 {
		meta.ViewCount = int64(views)
	}

	var formats []json.RawMessage
	if raw, ok := fields["formats"]; ok && json.Unmarshal(raw, &formats) == nil {
		meta.Formats = formats
	}

	return meta, nil
}

func firstLine(output []byte) []byte {
	for _, line := range bytes.Split(output, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line
		}
	}
	return nil
}

// stringField returns the first key holding a non-blank string
func stringField(fields map[string]json.RawMessage, fallback string, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return fallback
}

func numberField(fields map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	return value, true
}
