// internal/service/visit/status.go
package visit

import (
	"context"
	"fmt"
	"time"

	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/store"

	"go.uber.org/zap"
)

type Projection interface {
	Get(id string) (visit.QueueEntry, bool)
	Apply(ev visit.ChangeEvent) bool
}

type StatusService struct {
	visits  store.VisitStore
	queue   Projection
	timeout time.Duration
	logger  *zap.Logger
}

func NewStatusService(visits store.VisitStore, queue Projection, timeout time.Duration, logger *zap.Logger) *StatusService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatusService{visits: visits, queue: queue, timeout: timeout, logger: logger}
}

func (s *StatusService) GetVisit(ctx context.Context, id string) (*visit.Visit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.visits.GetVisit(ctx, id)
}

// UpdateStatus moves a visit one step along its pipeline. Moving to assigned
// is only possible through the assignment engine.
func (s *StatusService) UpdateStatus(ctx context.Context, id string, to visit.Status) (*visit.Visit, error) {
	if _, ok := visit.ParseStatus(string(to)); !ok {
		return nil, fmt.Errorf("status %q: %w", to, xerrors.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.visits.GetVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visit.ValidTransition(current.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, to, xerrors.ErrInvalidTransition)
	}

	updated, err := s.visits.UpdateVisitStatus(ctx, id, current.Status, to)
	if err != nil {
		return nil, err
	}

	entry := visit.QueueEntry{Visit: *updated}
	if held, ok := s.queue.Get(id); ok {
		entry.CustomerName, entry.CustomerPhone, entry.ConsultantName = held.CustomerName, held.CustomerPhone, held.ConsultantName
	}
	s.queue.Apply(visit.ChangeEvent{Type: visit.EventUpdate, Record: &entry, ReceivedAt: time.Now()})

	s.logger.Info("visit status updated",
		zap.String("visit_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}
