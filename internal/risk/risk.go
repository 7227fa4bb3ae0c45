// Package risk screens free text for crisis language.
//
// Matching is plain case-insensitive substring containment with no stemming
// and no word boundaries. False positives are accepted.
package risk

import "strings"

// DefaultPatterns is the built-in crisis phrase list. Entries are lower case.
var DefaultPatterns = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"killing myself",
	"self-harm",
	"self harm",
	"hurt myself",
	"end my life",
	"better off dead",
	"want to die",
	"can't go on",
	"cant go on",
	"can’t go on",
	"cannot go on",
}

// Screen checks text against a fixed pattern list.
type Screen struct {
	patterns []string
}

// NewScreen builds a Screen from patterns. Patterns are lower-cased and blanks dropped.
func NewScreen(patterns []string) *Screen {
	s := &Screen{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			s.patterns = append(s.patterns, p)
		}
	}
	return s
}

// DefaultScreen returns a Screen over DefaultPatterns.
func DefaultScreen() *Screen { return NewScreen(DefaultPatterns) }

// ContainsRiskLanguage reports whether text contains any crisis pattern.
func (s *Screen) ContainsRiskLanguage(text string) bool {
	if s == nil || text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range s.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Matches returns every pattern found in text.
func (s *Screen) Matches(text string) []string {
	if s == nil || text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, p := range s.patterns {
		if strings.Contains(lower, p) {
			out = append(out, p)
		}
	}
	return out
}
