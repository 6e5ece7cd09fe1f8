package assignment

import (
	"context"
	"errors"

	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/service/queue"

	"go.uber.org/zap"
)

// PendingView lists the visits still waiting for a consultant.
type PendingView interface {
	Pending() []visit.QueueEntry
}

// AutoAssigner assigns pending visits as they reach the queue, whether through
// an insert event or a full refresh. A failed attempt is logged and left for a
// manual assignment.
type AutoAssigner struct {
	engine  *Engine
	pending PendingView
	logger  *zap.Logger
}

func NewAutoAssigner(engine *Engine, pending PendingView, logger *zap.Logger) *AutoAssigner {
	return &AutoAssigner{engine: engine, pending: pending, logger: logger}
}

// Observe reacts to one queue change. It returns at once; assignments run in
// the background until ctx ends.
func (a *AutoAssigner) Observe(ctx context.Context, c queue.Change) {
	switch {
	case c.Type == visit.EventResync:
		ids := make([]string, 0)
		for _, e := range a.pending.Pending() {
			ids = append(ids, e.ID)
		}
		if len(ids) == 0 {
			return
		}
		go func() {
			for _, id := range ids {
				a.assign(ctx, id)
			}
		}()
	case c.Type == visit.EventInsert && !c.Removed && c.Entry != nil && c.Entry.IsPending():
		id := c.Entry.ID
		go a.assign(ctx, id)
	}
}

func (a *AutoAssigner) assign(ctx context.Context, visitID string) {
	if ctx.Err() != nil {
		return
	}
	v, err := a.engine.AssignLeastLoaded(ctx, visitID)
	switch {
	case err == nil:
		a.logger.Info("visit auto-assigned", zap.String("visit_id", visitID), zap.String("consultant_id", *v.ConsultantID))
	case xerrors.IsConcurrency(err):
		a.logger.Debug("auto-assign lost race", zap.String("visit_id", visitID), zap.Error(err))
	case errors.Is(err, xerrors.ErrNoAvailableConsultant):
		a.logger.Info("auto-assign found no available consultant", zap.String("visit_id", visitID))
	default:
		a.logger.Warn("auto-assign failed", zap.String("visit_id", visitID), zap.Error(err))
	}
}
