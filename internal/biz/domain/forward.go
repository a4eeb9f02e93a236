package domain

import "time"

// ForwardedRecord marks a (source, fingerprint) pair as already forwarded.
type ForwardedRecord struct {
	SourceID    string
	Fingerprint Fingerprint
	MessageID   string // message whose text produced the fingerprint
	ForwardedAt time.Time
}

// PollWindow is the lookback interval scanned by one poll cycle.
type PollWindow struct {
	Start time.Time
	End   time.Time
}

// WindowEndingAt returns [end-width, end].
func WindowEndingAt(end time.Time, width time.Duration) PollWindow {
	return PollWindow{Start: end.Add(-width), End: end}
}

// Contains reports whether t falls inside the window (inclusive).
func (w PollWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Width returns the window duration.
func (w PollWindow) Width() time.Duration {
	return w.End.Sub(w.Start)
}

// ChatHandle is a resolved conversation.
type ChatHandle struct {
	ChatID string
	Name   string
}
