// Package sync replays locally saved visit submissions against the backing
// store once it is reachable again.
package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"frontdesk-service/internal/domain/visit"
	"frontdesk-service/internal/pendinglog"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/service/connectivity"
	"frontdesk-service/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Replayer interface {
	Confirm(ctx context.Context, clientRef string, req visit.SubmitRequest) (*visit.Visit, error)
}

type Log interface {
	Outstanding(ctx context.Context) ([]pendinglog.Entry, error)
	Remove(ctx context.Context, localID string) error
	RecordFailure(ctx context.Context, localID string, cause error, nextAttemptAt time.Time, needsReview bool) (*pendinglog.Entry, error)
	Counts(ctx context.Context) (outstanding, attention int, err error)
}

type Connectivity interface {
	Online() bool
}

type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Interval    time.Duration
	// Timeout bounds each entry's replay.
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		BaseDelay:   2 * time.Second,
		MaxDelay:    5 * time.Minute,
		MaxAttempts: 5,
		Interval:    time.Minute,
		Timeout:     5 * time.Second,
	}
}

// Confirmation pairs a drained local id with the visit the store holds for it.
type Confirmation struct {
	LocalID string `json:"local_id"`
	VisitID string `json:"visit_id"`
}

type Result struct {
	Succeeded      []string       `json:"succeeded"`
	Failed         []string       `json:"failed"`
	Confirmed      []Confirmation `json:"confirmed"`
	Outstanding    int            `json:"outstanding"`
	NeedsAttention int            `json:"needs_attention"`
}

type Engine struct {
	replayer Replayer
	visits   store.VisitStore
	log      Log
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	group singleflight.Group

	mu        stdsync.RWMutex
	observers []func(Result)
}

func NewEngine(replayer Replayer, visits store.VisitStore, log Log, opts Options, logger *zap.Logger) *Engine {
	def := DefaultOptions()
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Engine{
		replayer: replayer,
		visits:   visits,
		log:      log,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// OnDrain registers fn to receive every drain result.
func (e *Engine) OnDrain(fn func(Result)) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Drain replays entries in enqueue order, stopping at the first one still
// backing off. Concurrent callers share the result of the drain already in
// flight.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	v, err, _ := e.group.Do("drain", func() (interface{}, error) {
		return e.drain(ctx)
	})
	if v == nil {
		return Result{}, err
	}
	return v.(Result), err
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	result := Result{Succeeded: []string{}, Failed: []string{}, Confirmed: []Confirmation{}}

	entries, err := e.log.Outstanding(ctx)
	if err != nil {
		return result, err
	}

	now := e.now()
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Eligible(now) {
			// later entries wait behind it so replay order stays FIFO
			break
		}

		replayCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		v, err := e.replay(replayCtx, entry)
		cancel()

		if err == nil {
			if rerr := e.log.Remove(ctx, entry.LocalID); rerr != nil && !errors.Is(rerr, xerrors.ErrNotFound) {
				// the next pass finds the visit by client_ref and removes it then
				e.logger.Error("failed to remove drained entry", zap.String("local_id", entry.LocalID), zap.Error(rerr))
			}
			result.Succeeded = append(result.Succeeded, entry.LocalID)
			result.Confirmed = append(result.Confirmed, Confirmation{LocalID: entry.LocalID, VisitID: v.ID})
			continue
		}

		result.Failed = append(result.Failed, entry.LocalID)
		e.recordFailure(ctx, entry, err, now)

		if !xerrors.IsValidation(err) {
			// store trouble: leave the rest of the log for the next pass
			break
		}
	}

	if outstanding, attention, err := e.log.Counts(ctx); err == nil {
		result.Outstanding, result.NeedsAttention = outstanding, attention
	}

	e.logger.Info("pending log drained",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("outstanding", result.Outstanding),
		zap.Int("needs_attention", result.NeedsAttention),
	)

	e.mu.RLock()
	observers := append([]func(Result){}, e.observers...)
	e.mu.RUnlock()
	for _, fn := range observers {
		fn(result)
	}

	return result, nil
}

func (e *Engine) replay(ctx context.Context, entry pendinglog.Entry) (*visit.Visit, error) {
	existing, err := e.visits.FindVisitByClientRef(ctx, entry.LocalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	return e.replayer.Confirm(ctx, entry.LocalID, entry.Request)
}

func (e *Engine) recordFailure(ctx context.Context, entry pendinglog.Entry, cause error, now time.Time) {
	attempt := entry.AttemptCount + 1
	review := xerrors.IsValidation(cause) || attempt >= e.opts.MaxAttempts
	next := now.Add(e.Backoff(attempt))

	if _, err := e.log.RecordFailure(ctx, entry.LocalID, cause, next, review); err != nil {
		e.logger.Error("failed to record replay failure", zap.String("local_id", entry.LocalID), zap.Error(err))
		return
	}

	if review {
		e.logger.Warn("pending visit needs manual review",
			zap.String("local_id", entry.LocalID),
			zap.Int("attempt", attempt),
			zap.Error(cause),
		)
		return
	}
	e.logger.Warn("pending visit replay failed",
		zap.String("local_id", entry.LocalID),
		zap.Int("attempt", attempt),
		zap.Time("next_attempt_at", next),
		zap.Error(cause),
	)
}

// Backoff returns base * 2^(attempt-1), capped at MaxDelay.
func (e *Engine) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := e.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.opts.MaxDelay {
			return e.opts.MaxDelay
		}
	}
	return delay
}

// Run drains on every wentOnline transition and on the periodic timer while
// online, until ctx ends.
func (e *Engine) Run(ctx context.Context, conn Connectivity, transitions <-chan connectivity.Event) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if ev.Transition == connectivity.WentOnline {
				e.drainLogged(ctx)
			}
		case <-ticker.C:
			if conn.Online() {
				e.drainLogged(ctx)
			}
		}
	}
}

func (e *Engine) drainLogged(ctx context.Context) {
	if _, err := e.Drain(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("drain failed", zap.Error(err))
	}
}
