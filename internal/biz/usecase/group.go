package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
)

// GroupConfig contains media group reconstruction configuration
type GroupConfig struct {
	Slack     time.Duration // Scan starts this far before the anchor message
	ScanLimit int           // Max messages read per reconstruction
}

// DefaultGroupConfig returns default group configuration
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		Slack:     time.Minute,
		ScanLimit: 200,
	}
}

// GroupUsecase rebuilds media groups from a source conversation
type GroupUsecase struct {
	messageRepo repo.MessageRepo
	config      GroupConfig
}

// NewGroupUsecase creates a new group usecase
func NewGroupUsecase(messageRepo repo.MessageRepo, config GroupConfig) *GroupUsecase {
	return &GroupUsecase{
		messageRepo: messageRepo,
		config:      config,
	}
}

// Reconstruct returns every message of groupID in chronological order.
//
// Members are assumed to be contiguous: once at least one member has been
// collected, the scan stops at the first message carrying a different
// group id. Messages without a group id do not end the scan. When the
// retrieval boundary is reached first the group may be partial.
func (uc *GroupUsecase) Reconstruct(ctx context.Context, sourceID, groupID string, anchor time.Time) ([]domain.Message, error) {
	msgs, err := uc.messageRepo.ListMessages(ctx, sourceID, anchor.Add(-uc.config.Slack), time.Time{}, uc.config.ScanLimit)
	if err != nil {
		var retrievalErr *domain.RetrievalError
		if errors.As(err, &retrievalErr) {
			return nil, err
		}
		return nil, &domain.RetrievalError{SourceID: sourceID, Err: err}
	}

	var group []domain.Message
	for _, m := range msgs {
		if m.GroupID == groupID {
			group = append(group, m)
			continue
		}
		if len(group) > 0 && m.HasGroup() {
			break
		}
	}

	sort.SliceStable(group, func(i, j int) bool {
		return group[i].CreatedAt.Before(group[j].CreatedAt)
	})
	return group, nil
}
