package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchMode selects how keywords are located in normalized text.
type MatchMode string

const (
	// MatchSubstring matches a keyword anywhere, including inside longer words.
	MatchSubstring MatchMode = "substring"
	// MatchWord requires the keyword to start and end on a word boundary.
	MatchWord MatchMode = "word"
)

// ParseMatchMode parses a configured match mode; empty means substring.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchWord:
		return MatchWord, nil
	default:
		return "", fmt.Errorf("unknown match mode: %q", s)
	}
}

// KeywordMatcher tests normalized text against a fixed keyword set.
type KeywordMatcher struct {
	keywords []string
	mode     MatchMode
}

// NewKeywordMatcher normalizes keywords and drops blanks and duplicates.
func NewKeywordMatcher(keywords []string, mode MatchMode) *KeywordMatcher {
	if mode == "" {
		mode = MatchSubstring
	}
	seen := make(map[string]bool, len(keywords))
	var kept []string
	for _, k := range keywords {
		n := Normalize(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		kept = append(kept, n)
	}
	return &KeywordMatcher{keywords: kept, mode: mode}
}

// Keywords returns the normalized keyword list.
func (m *KeywordMatcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Mode returns the configured strategy.
func (m *KeywordMatcher) Mode() MatchMode {
	return m.mode
}

// Matches reports whether normalized text contains at least one keyword.
func (m *KeywordMatcher) Matches(normalized string) bool {
	_, ok := m.Match(normalized)
	return ok
}

// Match returns the first keyword found in normalized text.
// Empty text never matches.
func (m *KeywordMatcher) Match(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	for _, k := range m.keywords {
		switch m.mode {
		case MatchWord:
			if containsWord(normalized, k) {
				return k, true
			}
		default:
			if strings.Contains(normalized, k) {
				return k, true
			}
		}
	}
	return "", false
}

func containsWord(text, keyword string) bool {
	offset := 0
	for {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(keyword)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
