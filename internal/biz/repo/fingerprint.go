package repo

import (
	"context"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
)

// FingerprintRepo is the durable set of already forwarded fingerprints.
// Implementations must be safe for concurrent use and wrap backend
// failures in *domain.StoreError.
type FingerprintRepo interface {
	// Exists reports whether (sourceID, fp) has been recorded
	Exists(ctx context.Context, sourceID string, fp domain.Fingerprint) (bool, error)

	// Record inserts the record; inserting an existing pair is a no-op
	Record(ctx context.Context, rec domain.ForwardedRecord) error

	// ListRecent lists the newest records of a source, newest first
	ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ForwardedRecord, error)

	// Count returns the total number of records
	Count(ctx context.Context) (int64, error)

	Close() error
}

// CursorRepo persists how far each source has been scanned.
type CursorRepo interface {
	// GetCursor returns the zero time when the source was never scanned
	GetCursor(ctx context.Context, sourceID string) (time.Time, error)

	// SetCursor stores the end of the last fully scanned window
	SetCursor(ctx context.Context, sourceID string, scannedUntil time.Time) error
}

// Store bundles both persistence concerns served by one backend.
type Store interface {
	FingerprintRepo
	CursorRepo
}
