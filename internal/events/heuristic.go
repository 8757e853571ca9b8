package events

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultMarkers matches the worker's closing summary line.
var DefaultMarkers = []string{"processing complete"}

const defaultWindow = 8

// CompletionScanner keeps a rolling window of recent free-text lines and
// reports the first time a marker phrase appears in it. Matching is
// case-insensitive and spans line breaks, so a phrase split across adjacent
// lines is still found. It fires at most once.
type CompletionScanner struct {
	markers []string
	window  []string
	size    int
	fold    cases.Caser
	fired   bool
}

// NewCompletionScanner returns a scanner for markers over the last window
// lines.
func NewCompletionScanner(markers []string, window int) *CompletionScanner {
	fold := cases.Fold()
	s := &CompletionScanner{size: window, fold: fold}
	if s.size <= 0 {
		s.size = defaultWindow
	}
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	for _, marker := range markers {
		normalized := normalizeSpace(fold.String(marker))
		if normalized != "" {
			s.markers = append(s.markers, normalized)
		}
	}
	return s
}

// Observe adds a line and returns the matched marker on the first match.
func (s *CompletionScanner) Observe(line string) (string, bool) {
	if s.fired {
		return "", false
	}
	folded := normalizeSpace(s.fold.String(line))
	if folded == "" {
		return "", false
	}
	s.window = append(s.window, folded)
	if len(s.window) > s.size {
		s.window = s.window[len(s.window)-s.size:]
	}
	joined := strings.Join(s.window, " ")
	for _, marker := range s.markers {
		if strings.Contains(joined, marker) {
			s.fired = true
			s.window = nil
			return marker, true
		}
	}
	return "", false
}

// Fired reports whether the scanner has already matched.
func (s *CompletionScanner) Fired() bool {
	return s.fired
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
