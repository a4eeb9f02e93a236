package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
	"github.com/devricklin/keyword-forwarder/internal/logging"
)

// ForwardConfig contains forwarding configuration
type ForwardConfig struct {
	TargetChatID string // Destination conversation
	DryRun       bool   // Log matches without forwarding or recording
}

// SourceResult summarizes one pass over a source conversation
type SourceResult struct {
	Scanned    int
	Matched    int
	Duplicates int
	Forwarded  int
	Failed     int
}

// Add accumulates other into r.
func (r *SourceResult) Add(other SourceResult) {
	r.Scanned += other.Scanned
	r.Matched += other.Matched
	r.Duplicates += other.Duplicates
	r.Forwarded += other.Forwarded
	r.Failed += other.Failed
}

// ForwardUsecase matches, dedups and forwards messages of one source at a time
type ForwardUsecase struct {
	messageRepo  repo.MessageRepo
	fingerprints repo.FingerprintRepo
	groupUC      *GroupUsecase
	matcher      *domain.KeywordMatcher
	config       ForwardConfig
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewForwardUsecase creates a new forward usecase
func NewForwardUsecase(
	messageRepo repo.MessageRepo,
	fingerprints repo.FingerprintRepo,
	groupUC *GroupUsecase,
	matcher *domain.KeywordMatcher,
	config ForwardConfig,
	logger *zerolog.Logger,
) *ForwardUsecase {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ForwardUsecase{
		messageRepo:  messageRepo,
		fingerprints: fingerprints,
		groupUC:      groupUC,
		matcher:      matcher,
		config:       config,
		logger:       logger,
		now:          time.Now,
	}
}

// ProcessSource scans the messages of sourceID inside window, oldest first,
// and forwards every keyword match whose fingerprint was not recorded yet.
//
// Retrieval of the window listing fails with *domain.RetrievalError and
// store failures with *domain.StoreError; both abort the pass. Resolution
// and forward failures are logged and leave the message eligible for a
// later cycle. Cancelling ctx stops the pass before the next message; the
// current one is finished with ctx's values but without its cancellation,
// and ctx.Err() is returned.
func (uc *ForwardUsecase) ProcessSource(ctx context.Context, sourceID string, window domain.PollWindow) (SourceResult, error) {
	var res SourceResult

	msgs, err := uc.messageRepo.ListMessages(ctx, sourceID, window.Start, window.End, 0)
	if err != nil {
		var retrievalErr *domain.RetrievalError
		if !errors.As(err, &retrievalErr) {
			err = &domain.RetrievalError{SourceID: sourceID, Err: err}
		}
		return res, err
	}

	// groups forwarded during this pass, so a second captioned member does
	// not forward the same group again
	handledGroups := make(map[string]bool)

	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		msg := &msgs[i]
		res.Scanned++
		// a started message runs to completion, so a forward that went
		// out is always recorded
		msgCtx := context.WithoutCancel(ctx)

		if !msg.HasText() {
			continue
		}
		normalized := domain.Normalize(msg.Text)
		keyword, ok := uc.matcher.Match(normalized)
		if !ok {
			continue
		}
		res.Matched++

		log := uc.logger.With().
			Str("source", sourceID).
			Str("msg_id", msg.ID).
			Str("keyword", keyword).
			Logger()

		if msg.HasGroup() && handledGroups[msg.GroupID] {
			log.Debug().Str("group_id", msg.GroupID).Msg("group already forwarded in this pass")
			continue
		}

		fp := domain.FingerprintOf(normalized)
		exists, err := uc.fingerprints.Exists(msgCtx, sourceID, fp)
		if err != nil {
			return res, asStoreError("exists", err)
		}
		if exists {
			res.Duplicates++
			if msg.HasGroup() {
				handledGroups[msg.GroupID] = true
			}
			log.Debug().Str("fp", fp.Short()).Msg("already forwarded, skipping")
			continue
		}

		batch := []domain.Message{*msg}
		if msg.HasGroup() {
			group, err := uc.groupUC.Reconstruct(msgCtx, sourceID, msg.GroupID, msg.CreatedAt)
			if err != nil {
				res.Failed++
				log.Warn().Err(err).Str("group_id", msg.GroupID).Msg("group reconstruction failed")
				continue
			}
			batch = withAnchor(group, *msg)
			log.Debug().Str("group_id", msg.GroupID).Int("members", len(batch)).Msg("media group reconstructed")
		}
		ids := domain.MessageIDs(batch)

		if uc.config.DryRun {
			log.Info().Strs("msg_ids", ids).Str("fp", fp.Short()).Msg("dry run: would forward")
			continue
		}

		dest, err := uc.messageRepo.ResolveChat(msgCtx, uc.config.TargetChatID)
		if err != nil {
			res.Failed++
			log.Error().Err(&domain.ResolutionError{ChatID: uc.config.TargetChatID, Err: err}).Msg("destination unresolved, skipping")
			continue
		}

		if err := uc.messageRepo.Forward(msgCtx, dest, sourceID, ids); err != nil {
			res.Failed++
			log.Error().Err(&domain.ForwardError{SourceID: sourceID, MessageIDs: ids, Err: err}).Msg("forward failed, not recording")
			continue
		}
		if msg.HasGroup() {
			handledGroups[msg.GroupID] = true
		}

		if err := uc.recordBatch(msgCtx, sourceID, *msg, fp, batch); err != nil {
			return res, err
		}
		res.Forwarded++
		log.Info().Strs("msg_ids", ids).Str("fp", fp.Short()).Str("target", dest.ChatID).Msg("forwarded")
	}

	return res, nil
}

// recordBatch records the matched message and every other member whose
// text also matches, so later cycles do not forward the group again
// through a sibling caption.
func (uc *ForwardUsecase) recordBatch(ctx context.Context, sourceID string, anchor domain.Message, fp domain.Fingerprint, batch []domain.Message) error {
	now := uc.now()
	if err := uc.fingerprints.Record(ctx, domain.ForwardedRecord{
		SourceID:    sourceID,
		Fingerprint: fp,
		MessageID:   anchor.ID,
		ForwardedAt: now,
	}); err != nil {
		return asStoreError("record", err)
	}

	for i := range batch {
		m := &batch[i]
		if m.ID == anchor.ID || !m.HasText() {
			continue
		}
		normalized := domain.Normalize(m.Text)
		if !uc.matcher.Matches(normalized) {
			continue
		}
		if err := uc.fingerprints.Record(ctx, domain.ForwardedRecord{
			SourceID:    sourceID,
			Fingerprint: domain.FingerprintOf(normalized),
			MessageID:   m.ID,
			ForwardedAt: now,
		}); err != nil {
			return asStoreError("record", err)
		}
	}
	return nil
}

// withAnchor makes sure the matched message is part of its group, even
// when the reconstruction scan returned a partial group without it.
func withAnchor(group []domain.Message, anchor domain.Message) []domain.Message {
	for _, m := range group {
		if m.ID == anchor.ID {
			return group
		}
	}
	out := append(append([]domain.Message(nil), group...), anchor)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func asStoreError(op string, err error) error {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
