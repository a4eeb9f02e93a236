package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
	"github.com/devricklin/keyword-forwarder/internal/biz/usecase"
	"github.com/devricklin/keyword-forwarder/internal/logging"
)

// SchedulerState is the poll loop state
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateScanning
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// SourceProcessor processes one source conversation for a window
type SourceProcessor interface {
	ProcessSource(ctx context.Context, sourceID string, window domain.PollWindow) (usecase.SourceResult, error)
}

// SchedulerConfig contains poll loop configuration
type SchedulerConfig struct {
	Sources          []string      // Scanned sequentially in this order
	Interval         time.Duration // Sleep after each completed cycle
	Lookback         time.Duration // Window width
	ResumeFromCursor bool          // Start windows at the persisted cursor
	MaxCatchUp       time.Duration // Oldest window start when resuming
}

// CycleResult summarizes one poll cycle
type CycleResult struct {
	CycleID       string
	Window        domain.PollWindow
	Totals        usecase.SourceResult
	FailedSources int
}

// CycleStatus is the outcome of a finished cycle
type CycleStatus struct {
	Result  CycleResult
	EndedAt time.Time
	Err     error
}

// PollScheduler drives the forwarder over all sources on a fixed interval.
// Only one cycle runs at a time.
type PollScheduler struct {
	processor SourceProcessor
	cursors   repo.CursorRepo
	config    SchedulerConfig
	logger    *zerolog.Logger
	now       func() time.Time

	state atomic.Int32

	mu   sync.Mutex
	last CycleStatus

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	err    error
}

// NewPollScheduler creates a new poll scheduler. cursors may be nil when
// ResumeFromCursor is off.
func NewPollScheduler(processor SourceProcessor, cursors repo.CursorRepo, config SchedulerConfig, logger *zerolog.Logger) *PollScheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PollScheduler{
		processor: processor,
		cursors:   cursors,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// State returns the current state
func (s *PollScheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// LastCycle returns the most recent cycle; ok is false before the first
// cycle ends
func (s *PollScheduler) LastCycle() (status CycleStatus, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, !s.last.EndedAt.IsZero()
}

// Start runs the poll loop in the background
func (s *PollScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.err = s.Run(ctx)
	}()

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("lookback", s.config.Lookback).
		Int("sources", len(s.config.Sources)).
		Msg("scheduler started")
}

// Done is closed when the background loop has exited
func (s *PollScheduler) Done() <-chan struct{} {
	return s.done
}

// Stop stops the background loop and returns the error that ended it,
// nil for a regular shutdown
func (s *PollScheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return s.err
}

// Run runs a cycle immediately, then one cycle after every interval until
// ctx is cancelled (returns nil) or the store fails (returns the
// *domain.StoreError).
func (s *PollScheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var storeErr *domain.StoreError
			if errors.As(err, &storeErr) {
				return err
			}
			s.logger.Error().Err(err).Msg("poll cycle failed")
		}

		timer := time.NewTimer(s.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce scans every source once. Retrieval failures skip the source;
// a store failure or cancellation ends the cycle early.
func (s *PollScheduler) RunOnce(ctx context.Context) (res CycleResult, err error) {
	s.state.Store(int32(StateScanning))
	defer s.state.Store(int32(StateIdle))
	defer func() {
		s.mu.Lock()
		s.last = CycleStatus{Result: res, EndedAt: s.now(), Err: err}
		s.mu.Unlock()
	}()

	now := s.now()
	res = CycleResult{
		CycleID: uuid.NewString(),
		Window:  domain.WindowEndingAt(now, s.config.Lookback),
	}
	log := s.logger.With().Str("cycle_id", res.CycleID).Logger()
	log.Debug().Time("start", res.Window.Start).Time("end", res.Window.End).Msg("cycle started")

	for _, sourceID := range s.config.Sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		window, err := s.windowFor(ctx, sourceID, res.Window)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			log.Error().Err(err).Str("source", sourceID).Msg("cursor read failed, aborting cycle")
			return res, err
		}

		sourceRes, err := s.processor.ProcessSource(ctx, sourceID, window)
		res.Totals.Add(sourceRes)
		if err != nil {
			var storeErr *domain.StoreError
			switch {
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				return res, err
			case errors.As(err, &storeErr):
				log.Error().Err(err).Str("source", sourceID).Msg("store failure, aborting cycle")
				return res, err
			default:
				res.FailedSources++
				log.Warn().Err(err).Str("source", sourceID).Msg("source skipped")
				continue
			}
		}

		if s.config.ResumeFromCursor && s.cursors != nil {
			// the source was scanned, keep its cursor even when shutting down
			if err := s.cursors.SetCursor(context.WithoutCancel(ctx), sourceID, window.End); err != nil {
				log.Error().Err(err).Str("source", sourceID).Msg("cursor write failed, aborting cycle")
				return res, asStoreError("set cursor", err)
			}
		}
	}

	log.Info().
		Int("scanned", res.Totals.Scanned).
		Int("matched", res.Totals.Matched).
		Int("duplicates", res.Totals.Duplicates).
		Int("forwarded", res.Totals.Forwarded).
		Int("failed", res.Totals.Failed).
		Int("failed_sources", res.FailedSources).
		Msg("cycle completed")
	return res, nil
}

// windowFor returns the window to scan for sourceID. Without cursors this
// is the shared lookback window; with cursors the start moves back to the
// last scanned time, never further than MaxCatchUp.
func (s *PollScheduler) windowFor(ctx context.Context, sourceID string, base domain.PollWindow) (domain.PollWindow, error) {
	if !s.config.ResumeFromCursor || s.cursors == nil {
		return base, nil
	}

	cursor, err := s.cursors.GetCursor(ctx, sourceID)
	if err != nil {
		return base, asStoreError("get cursor", err)
	}
	if cursor.IsZero() || !cursor.Before(base.Start) {
		return base, nil
	}

	window := domain.PollWindow{Start: cursor, End: base.End}
	if floor := base.End.Add(-s.config.MaxCatchUp); s.config.MaxCatchUp > 0 && window.Start.Before(floor) {
		s.logger.Warn().
			Str("source", sourceID).
			Time("cursor", cursor).
			Time("floor", floor).
			Msg("cursor older than catch-up limit, messages in between are skipped")
		window.Start = floor
	}
	return window, nil
}

func asStoreError(op string, err error) error {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
