package repo

import (
	"context"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
)

// MessageRepo is the messaging platform client consumed by the forwarder.
type MessageRepo interface {
	// ListMessages lists messages of a source conversation in chronological
	// order (oldest first). A zero until means up to now; limit <= 0 means
	// no limit.
	ListMessages(ctx context.Context, sourceID string, since, until time.Time, limit int) ([]domain.Message, error)

	// ResolveChat resolves a conversation id to a handle
	ResolveChat(ctx context.Context, chatID string) (*domain.ChatHandle, error)

	// Forward forwards messageIDs from sourceID to dest as one operation,
	// preserving order
	Forward(ctx context.Context, dest *domain.ChatHandle, sourceID string, messageIDs []string) error
}
