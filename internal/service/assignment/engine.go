// Package assignment hands pending visits to consultants.
package assignment

import (
	"context"
	"fmt"
	"time"

	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/store"

	"go.uber.org/zap"
)

// Projection is the slice of the queue store the engine reads and writes back
// to, so its own assignments count toward load before the feed echoes them.
type Projection interface {
	ActiveView
	Get(id string) (visit.QueueEntry, bool)
	Apply(ev visit.ChangeEvent) bool
}

type Engine struct {
	visits      store.VisitStore
	consultants store.ConsultantStore
	queue       Projection
	loads       *LoadTracker
	claims      Claims
	timeout     time.Duration
	logger      *zap.Logger
}

func NewEngine(
	visits store.VisitStore,
	consultants store.ConsultantStore,
	queue Projection,
	loads *LoadTracker,
	claims Claims,
	timeout time.Duration,
	logger *zap.Logger,
) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{
		visits:      visits,
		consultants: consultants,
		queue:       queue,
		loads:       loads,
		claims:      claims,
		timeout:     timeout,
		logger:      logger,
	}
}

func (e *Engine) Loads() *LoadTracker {
	return e.loads
}

// Assign gives visitID to consultantID.
func (e *Engine) Assign(ctx context.Context, visitID, consultantID string) (*visit.Visit, error) {
	release, err := e.claims.Acquire(ctx, visitID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.checkPending(ctx, visitID); err != nil {
		return nil, err
	}

	c, err := e.consultants.GetConsultant(ctx, consultantID)
	if err != nil {
		return nil, fmt.Errorf("consultant %s: %w", consultantID, err)
	}
	if !c.IsActive {
		return nil, fmt.Errorf("consultant %s is inactive: %w", consultantID, xerrors.ErrInvalidInput)
	}

	return e.commit(ctx, visitID, consultantID, c.Name)
}

// AssignLeastLoaded gives visitID to the available consultant with the
// fewest active visits, breaking ties by consultant id.
func (e *Engine) AssignLeastLoaded(ctx context.Context, visitID string) (*visit.Visit, error) {
	release, err := e.claims.Acquire(ctx, visitID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.checkPending(ctx, visitID); err != nil {
		return nil, err
	}

	loads, err := e.loads.Loads(ctx)
	if err != nil {
		return nil, err
	}
	pick, ok := leastLoaded(loads)
	if !ok {
		return nil, xerrors.ErrNoAvailableConsultant
	}

	return e.commit(ctx, visitID, pick.ConsultantID, pick.Name)
}

// checkPending re-reads the visit under the claim.
func (e *Engine) checkPending(ctx context.Context, visitID string) error {
	v, err := e.visits.GetVisit(ctx, visitID)
	if err != nil {
		return err
	}
	if v.IsAssigned() {
		return xerrors.ErrAlreadyAssigned
	}
	if !v.Status.IsPendingStatus() {
		return xerrors.ErrVisitNotPending
	}
	return nil
}

func (e *Engine) commit(ctx context.Context, visitID, consultantID, consultantName string) (*visit.Visit, error) {
	updated, err := e.visits.AssignVisit(ctx, visitID, consultantID)
	if err != nil {
		if !xerrors.IsConcurrency(err) {
			e.logger.Error("failed to assign visit",
				zap.String("visit_id", visitID),
				zap.String("consultant_id", consultantID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	entry := visit.QueueEntry{Visit: *updated}
	if held, ok := e.queue.Get(visitID); ok {
		entry.CustomerName, entry.CustomerPhone = held.CustomerName, held.CustomerPhone
	}
	name := consultantName
	entry.ConsultantName = &name
	e.queue.Apply(visit.ChangeEvent{Type: visit.EventUpdate, Record: &entry, ReceivedAt: time.Now()})

	e.logger.Info("visit assigned",
		zap.String("visit_id", visitID),
		zap.String("consultant_id", consultantID),
	)
	return updated, nil
}
