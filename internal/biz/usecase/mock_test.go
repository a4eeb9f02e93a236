package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
)

// Mock implementations

type forwardCall struct {
	Dest     string
	SourceID string
	IDs      []string
}

type mockMessageRepo struct {
	mu          sync.Mutex
	messages    map[string][]domain.Message
	listErr     error
	resolveErr  error
	forwardErr  error
	failForward map[string]bool // message id -> fail once
	forwarded   []forwardCall
	listCalls   int
	onForward   func()
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		messages:    make(map[string][]domain.Message),
		failForward: make(map[string]bool),
	}
}

func (m *mockMessageRepo) add(msgs ...domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.messages[msg.SourceID] = append(m.messages[msg.SourceID], msg)
	}
}

func (m *mockMessageRepo) ListMessages(ctx context.Context, sourceID string, since, until time.Time, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []domain.Message
	for _, msg := range m.messages[sourceID] {
		if msg.CreatedAt.Before(since) {
			continue
		}
		if !until.IsZero() && msg.CreatedAt.After(until) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockMessageRepo) ResolveChat(ctx context.Context, chatID string) (*domain.ChatHandle, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return &domain.ChatHandle{ChatID: chatID}, nil
}

func (m *mockMessageRepo) Forward(ctx context.Context, dest *domain.ChatHandle, sourceID string, messageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forwardErr != nil {
		return m.forwardErr
	}
	for _, id := range messageIDs {
		if m.failForward[id] {
			delete(m.failForward, id)
			return errors.New("forward rejected")
		}
	}
	m.forwarded = append(m.forwarded, forwardCall{
		Dest:     dest.ChatID,
		SourceID: sourceID,
		IDs:      append([]string(nil), messageIDs...),
	})
	if m.onForward != nil {
		m.onForward()
	}
	return nil
}

func (m *mockMessageRepo) calls() []forwardCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]forwardCall(nil), m.forwarded...)
}

type fpKey struct {
	source string
	fp     domain.Fingerprint
}

type mockFingerprintRepo struct {
	mu        sync.Mutex
	records   map[fpKey]domain.ForwardedRecord
	existsErr error
	recordErr error
}

func newMockFingerprintRepo() *mockFingerprintRepo {
	return &mockFingerprintRepo{records: make(map[fpKey]domain.ForwardedRecord)}
}

func (m *mockFingerprintRepo) Exists(ctx context.Context, sourceID string, fp domain.Fingerprint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.records[fpKey{sourceID, fp}]
	return ok, nil
}

func (m *mockFingerprintRepo) Record(ctx context.Context, rec domain.ForwardedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	key := fpKey{rec.SourceID, rec.Fingerprint}
	if _, ok := m.records[key]; !ok {
		m.records[key] = rec
	}
	return nil
}

func (m *mockFingerprintRepo) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ForwardedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ForwardedRecord
	for k, rec := range m.records {
		if k.source == sourceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockFingerprintRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *mockFingerprintRepo) Close() error {
	return nil
}

func (m *mockFingerprintRepo) has(sourceID, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[fpKey{sourceID, domain.FingerprintText(text)}]
	return ok
}

func (m *mockFingerprintRepo) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
