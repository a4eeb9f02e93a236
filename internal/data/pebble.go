package data

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
)

// pebbleStore implements the fingerprint and cursor repositories on Pebble.
//
// Keys:
//
//	fwd/[len(source):4]<source>/<fingerprint> -> [forwardedAt:8][messageID...]
//	cursor/<source>                           -> [scannedUntil:8]
//
// The length keeps the prefix of one source from matching another source
// that extends its id.
type pebbleStore struct {
	db *pebble.DB
	mu sync.Mutex // serializes check-then-set in Record
}

// NewPebbleStore opens (or creates) a Pebble store in dir
func NewPebbleStore(dir string) (repo.Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to open pebble: %w", err)}
	}
	return &pebbleStore{db: db}, nil
}

// Exists checks whether the pair has been recorded
func (s *pebbleStore) Exists(ctx context.Context, sourceID string, fp domain.Fingerprint) (bool, error) {
	_, closer, err := s.db.Get(fingerprintKey(sourceID, fp))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &domain.StoreError{Op: "exists", Err: err}
	}
	closer.Close()
	return true, nil
}

// Record inserts a forwarded record, ignoring an existing pair
func (s *pebbleStore) Record(ctx context.Context, rec domain.ForwardedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Exists(ctx, rec.SourceID, rec.Fingerprint)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.db.Set(fingerprintKey(rec.SourceID, rec.Fingerprint), encodeForwarded(rec), pebble.Sync); err != nil {
		return &domain.StoreError{Op: "record", Err: err}
	}
	return nil
}

// ListRecent lists the newest records of a source
func (s *pebbleStore) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ForwardedRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	prefix := sourcePrefix(sourceID)

	var records []domain.ForwardedRecord
	err := s.scan(prefix, func(key, val []byte) error {
		rec, err := decodeForwarded(val)
		if err != nil {
			return err
		}
		rec.SourceID = sourceID
		rec.Fingerprint = domain.Fingerprint(bytes.TrimPrefix(key, prefix))
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ForwardedAt.After(records[j].ForwardedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Count returns the number of records
func (s *pebbleStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.scan([]byte(fwdPrefix), func(key, val []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, &domain.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// GetCursor returns the last scanned time of a source
func (s *pebbleStore) GetCursor(ctx context.Context, sourceID string) (time.Time, error) {
	val, closer, err := s.db.Get([]byte("cursor/" + sourceID))
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &domain.StoreError{Op: "get cursor", Err: err}
	}
	defer closer.Close()

	if len(val) != 8 {
		return time.Time{}, &domain.StoreError{Op: "get cursor", Err: errors.New("invalid cursor length")}
	}
	return time.Unix(int64(binary.BigEndian.Uint64(val)), 0), nil
}

// SetCursor stores the last scanned time of a source
func (s *pebbleStore) SetCursor(ctx context.Context, sourceID string, scannedUntil time.Time) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(scannedUntil.Unix()))
	if err := s.db.Set([]byte("cursor/"+sourceID), buf, pebble.Sync); err != nil {
		return &domain.StoreError{Op: "set cursor", Err: err}
	}
	return nil
}

// Close closes the database
func (s *pebbleStore) Close() error {
	return s.db.Close()
}

func (s *pebbleStore) scan(prefix []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

const fwdPrefix = "fwd/"

func sourcePrefix(sourceID string) []byte {
	buf := make([]byte, 0, len(fwdPrefix)+4+len(sourceID)+1)
	buf = append(buf, fwdPrefix...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(sourceID)))
	buf = append(buf, sourceID...)
	return append(buf, '/')
}

func fingerprintKey(sourceID string, fp domain.Fingerprint) []byte {
	return append(sourcePrefix(sourceID), fp...)
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// binary encoding: [forwardedAt:8][messageID...]
func encodeForwarded(rec domain.ForwardedRecord) []byte {
	buf := make([]byte, 8+len(rec.MessageID))
	binary.BigEndian.PutUint64(buf[:8], uint64(rec.ForwardedAt.Unix()))
	copy(buf[8:], rec.MessageID)
	return buf
}

func decodeForwarded(b []byte) (domain.ForwardedRecord, error) {
	if len(b) < 8 {
		return domain.ForwardedRecord{}, errors.New("invalid forwarded record length")
	}
	return domain.ForwardedRecord{
		ForwardedAt: time.Unix(int64(binary.BigEndian.Uint64(b[:8])), 0),
		MessageID:   string(b[8:]),
	}, nil
}
