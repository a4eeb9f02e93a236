package mcpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
)

type mockStore struct {
	records map[string][]domain.ForwardedRecord
	err     error
}

func (m *mockStore) Exists(ctx context.Context, sourceID string, fp domain.Fingerprint) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, rec := range m.records[sourceID] {
		if rec.Fingerprint == fp {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) Record(ctx context.Context, rec domain.ForwardedRecord) error {
	m.records[rec.SourceID] = append(m.records[rec.SourceID], rec)
	return nil
}

func (m *mockStore) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ForwardedRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	recs := m.records[sourceID]
	out := make([]domain.ForwardedRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (m *mockStore) Count(ctx context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, recs := range m.records {
		n += int64(len(recs))
	}
	return n, nil
}

func (m *mockStore) Close() error { return nil }

func newTestServer(store *mockStore) *ForwarderMCPServer {
	matcher := domain.NewKeywordMatcher([]string{"discount", "free shipping"}, domain.MatchSubstring)
	return NewServer(matcher, store, []string{"oc_a", "oc_b"})
}

func TestCheckText(t *testing.T) {
	store := &mockStore{records: map[string][]domain.ForwardedRecord{}}
	store.Record(context.Background(), domain.ForwardedRecord{
		SourceID:    "oc_b",
		Fingerprint: domain.FingerprintText("Big DISCOUNT today"),
	})
	s := newTestServer(store)

	_, out, err := s.handleCheckText(context.Background(), nil, CheckTextInput{Text: "  big   discount TODAY "})
	if err != nil {
		t.Fatalf("handleCheckText failed: %v", err)
	}
	if out.Normalized != "big discount today" {
		t.Errorf("Expected 'big discount today', got %q", out.Normalized)
	}
	if !out.Matched || out.Keyword != "discount" {
		t.Errorf("Expected match on 'discount', got %v %q", out.Matched, out.Keyword)
	}
	if len(out.ForwardedIn) != 1 || out.ForwardedIn[0] != "oc_b" {
		t.Errorf("Expected forwarded in [oc_b], got %v", out.ForwardedIn)
	}
	if len(out.Fingerprint) != 64 {
		t.Errorf("Expected 64-char fingerprint, got %q", out.Fingerprint)
	}
}

func TestCheckText_NoMatch(t *testing.T) {
	s := newTestServer(&mockStore{records: map[string][]domain.ForwardedRecord{}})

	_, out, _ := s.handleCheckText(context.Background(), nil, CheckTextInput{Text: "hello world"})
	if out.Matched {
		t.Errorf("Expected no match, got keyword %q", out.Keyword)
	}

	_, out, _ = s.handleCheckText(context.Background(), nil, CheckTextInput{Text: "   "})
	if out.Matched || out.Normalized != "" {
		t.Errorf("Expected blank text to normalize to empty and not match, got %+v", out)
	}
}

func TestCheckText_StoreError(t *testing.T) {
	s := newTestServer(&mockStore{err: errors.New("db locked")})

	_, out, err := s.handleCheckText(context.Background(), nil, CheckTextInput{Text: "discount"})
	if err != nil {
		t.Fatalf("Expected error in output, got %v", err)
	}
	if out.Error == "" {
		t.Error("Expected error message in output")
	}
}

func TestListForwarded(t *testing.T) {
	base := time.Unix(1700000000, 0)
	store := &mockStore{records: map[string][]domain.ForwardedRecord{
		"oc_a": {
			{SourceID: "oc_a", Fingerprint: "fa1", MessageID: "a1", ForwardedAt: base},
			{SourceID: "oc_a", Fingerprint: "fa2", MessageID: "a2", ForwardedAt: base.Add(2 * time.Minute)},
		},
		"oc_b": {
			{SourceID: "oc_b", Fingerprint: "fb1", MessageID: "b1", ForwardedAt: base.Add(time.Minute)},
		},
	}}
	s := newTestServer(store)

	_, out, err := s.handleListForwarded(context.Background(), nil, ListForwardedInput{})
	if err != nil {
		t.Fatalf("handleListForwarded failed: %v", err)
	}
	if len(out.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(out.Records))
	}
	wantOrder := []string{"a2", "b1", "a1"}
	for i, id := range wantOrder {
		if out.Records[i].MessageID != id {
			t.Errorf("Expected record %d to be %s, got %s", i, id, out.Records[i].MessageID)
		}
	}

	_, out, _ = s.handleListForwarded(context.Background(), nil, ListForwardedInput{SourceID: "oc_b"})
	if len(out.Records) != 1 || out.Records[0].MessageID != "b1" {
		t.Errorf("Expected only oc_b records, got %+v", out.Records)
	}

	_, out, _ = s.handleListForwarded(context.Background(), nil, ListForwardedInput{Limit: 1})
	if len(out.Records) != 1 || out.Records[0].MessageID != "a2" {
		t.Errorf("Expected newest record only, got %+v", out.Records)
	}
}

func TestStats(t *testing.T) {
	store := &mockStore{records: map[string][]domain.ForwardedRecord{
		"oc_a": {{SourceID: "oc_a", Fingerprint: "f1"}, {SourceID: "oc_a", Fingerprint: "f2"}},
	}}
	s := newTestServer(store)

	_, out, err := s.handleStats(context.Background(), nil, StatsInput{})
	if err != nil {
		t.Fatalf("handleStats failed: %v", err)
	}
	if out.Total != 2 {
		t.Errorf("Expected total 2, got %d", out.Total)
	}
	if len(out.Keywords) != 2 || out.MatchMode != "substring" {
		t.Errorf("Unexpected keywords/mode: %v %q", out.Keywords, out.MatchMode)
	}
}

func TestNewServer(t *testing.T) {
	s := newTestServer(&mockStore{records: map[string][]domain.ForwardedRecord{}})
	if s.GetServer() == nil {
		t.Error("Expected underlying MCP server")
	}
}
