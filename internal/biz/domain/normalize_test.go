package domain

import (
	"testing"
	"time"
)

func TestNormalize_CollapsesWhitespaceAndCase(t *testing.T) {
	cases := map[string]string{
		"Buy   NOW":                "buy now",
		"  leading and trailing  ": "leading and trailing",
		"tabs\tand\nnewlines":      "tabs and newlines",
		"":                         "",
		"   ":                      "",
		"ПРИВЕТ  Мир":              "привет мир",
		"non breaking":             "non breaking",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Buy   NOW",
		"Straße  GROSS",
		"école  ÉCOLE",
		"  mixed\t\tWhite space ",
		"ǅ digraph",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_ComposesCombiningMarks(t *testing.T) {
	if Normalize("école") != Normalize("école") {
		t.Error("Expected decomposed and precomposed forms to normalize identically")
	}
}

func TestFingerprint_EqualForEqualNormalizedText(t *testing.T) {
	a := FingerprintText("Buy   NOW")
	b := FingerprintText("buy now")
	if a != b {
		t.Errorf("Expected equal fingerprints, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
	if FingerprintText("buy later") == a {
		t.Error("Expected different text to produce a different fingerprint")
	}
}

func TestFingerprint_Short(t *testing.T) {
	fp := FingerprintText("hello")
	if len(fp.Short()) != 12 {
		t.Errorf("Expected 12 chars, got %q", fp.Short())
	}
	if Fingerprint("abc").Short() != "abc" {
		t.Error("Expected short fingerprint to be returned unchanged")
	}
}

func TestMessage_OptionalFields(t *testing.T) {
	now := time.Now()

	media := NewMediaMessage("oc_1", "m1", now)
	if media.HasText() {
		t.Error("Expected media message to have no text")
	}
	if media.HasGroup() {
		t.Error("Expected message without group id")
	}

	blank := NewTextMessage("oc_1", "m2", "   ", now)
	if blank.HasText() {
		t.Error("Expected blank text to count as absent")
	}

	grouped := NewTextMessage("oc_1", "m3", "caption", now).WithGroup("42")
	if !grouped.HasText() || !grouped.HasGroup() {
		t.Error("Expected grouped message with text")
	}
	if grouped.GroupID != "42" {
		t.Errorf("Expected group id '42', got '%s'", grouped.GroupID)
	}
}

func TestPollWindow(t *testing.T) {
	end := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := WindowEndingAt(end, 10*time.Minute)

	if w.Width() != 10*time.Minute {
		t.Errorf("Expected width 10m, got %v", w.Width())
	}
	if !w.Contains(end.Add(-5 * time.Minute)) {
		t.Error("Expected window to contain a time 5 minutes back")
	}
	if w.Contains(end.Add(-11 * time.Minute)) {
		t.Error("Expected window not to contain a time 11 minutes back")
	}
	if !w.Contains(w.Start) || !w.Contains(w.End) {
		t.Error("Expected window bounds to be inclusive")
	}
}

func TestMessageIDs(t *testing.T) {
	now := time.Now()
	ids := MessageIDs([]Message{
		NewMediaMessage("s", "a", now),
		NewMediaMessage("s", "b", now),
	})
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("Expected [a b], got %v", ids)
	}
}
