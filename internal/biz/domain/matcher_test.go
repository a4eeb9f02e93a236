package domain

import "testing"

func TestKeywordMatcher_Substring(t *testing.T) {
	m := NewKeywordMatcher([]string{"Buy", " sale "}, MatchSubstring)

	if !m.Matches(Normalize("Please BUY now")) {
		t.Error("Expected keyword 'buy' to match")
	}
	if !m.Matches(Normalize("great buyers club")) {
		t.Error("Expected substring mode to match inside a longer word")
	}
	if m.Matches(Normalize("unrelated text")) {
		t.Error("Expected no match for unrelated text")
	}
	if m.Matches("") {
		t.Error("Expected empty text never to match")
	}
}

func TestKeywordMatcher_Word(t *testing.T) {
	m := NewKeywordMatcher([]string{"buy", "buy now"}, MatchWord)

	if !m.Matches(Normalize("you should buy.")) {
		t.Error("Expected word match before punctuation")
	}
	if m.Matches(Normalize("great buyers club")) {
		t.Error("Expected word mode not to match inside a longer word")
	}
	if !m.Matches(Normalize("rebuy or buy now")) {
		t.Error("Expected later occurrence on a boundary to match")
	}
	kw, ok := m.Match(Normalize("BUY NOW!"))
	if !ok || kw != "buy" {
		t.Errorf("Expected first keyword 'buy', got %q (ok=%v)", kw, ok)
	}
}

func TestKeywordMatcher_DropsBlankAndDuplicateKeywords(t *testing.T) {
	m := NewKeywordMatcher([]string{"Sale", "", "  ", "SALE", "sale"}, "")

	if got := m.Keywords(); len(got) != 1 || got[0] != "sale" {
		t.Errorf("Expected [sale], got %v", got)
	}
	if m.Mode() != MatchSubstring {
		t.Errorf("Expected default mode substring, got %s", m.Mode())
	}
}

func TestKeywordMatcher_NoKeywords(t *testing.T) {
	m := NewKeywordMatcher(nil, MatchSubstring)
	if m.Matches("anything") {
		t.Error("Expected matcher without keywords never to match")
	}
}

func TestParseMatchMode(t *testing.T) {
	for in, want := range map[string]MatchMode{"": MatchSubstring, "substring": MatchSubstring, " WORD ": MatchWord} {
		got, err := ParseMatchMode(in)
		if err != nil {
			t.Fatalf("ParseMatchMode(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMatchMode(%q) = %s, expected %s", in, got, want)
		}
	}
	if _, err := ParseMatchMode("regex"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
