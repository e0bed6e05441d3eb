package tui

import (
	"strings"
	"time"
)

// shortID returns the first segment of a UUID-style identifier.
func shortID(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// clip truncates s to width characters with an ellipsis.
func clip(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

// compactDuration renders whole seconds as a short duration like "4m10s".
func compactDuration(sec int64) string {
	return (time.Duration(sec) * time.Second).String()
}
