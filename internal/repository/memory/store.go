// Package memory is an in-process backing store. It backs STORE_DRIVER=memory and
// the service tests, and can inject the failures a remote store exhibits.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/domain/customer"
	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	customers   map[string]customer.Customer
	byPhone     map[string]string
	consultants map[string]consultant.Consultant
	visits      map[string]visit.Visit
	byClientRef map[string]string
	clock       time.Time

	subs   map[int]*subscriber
	nextID int

	// failure injection
	unavailable bool
	failNext    int
	latency     time.Duration
	loseAcks    int
}

func NewStore() *Store {
	return &Store{
		customers:   make(map[string]customer.Customer),
		byPhone:     make(map[string]string),
		consultants: make(map[string]consultant.Consultant),
		visits:      make(map[string]visit.Visit),
		byClientRef: make(map[string]string),
		subs:        make(map[int]*subscriber),
	}
}

// SetUnavailable makes every call fail with ErrStoreUnavailable until cleared.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	s.unavailable = down
	s.mu.Unlock()
}

// FailNext makes the next n calls fail before touching any state.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// SetLatency delays every call; a call whose context expires first fails.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// LoseNextAck commits the next write but reports it as failed, the way a
// timeout after a successful commit looks to the caller.
func (s *Store) LoseNextAck() {
	s.mu.Lock()
	s.loseAcks++
	s.mu.Unlock()
}

// AddConsultant creates or replaces a consultant.
func (s *Store) AddConsultant(c consultant.Consultant) {
	s.mu.Lock()
	s.consultants[c.ID] = c
	s.mu.Unlock()
}

func (s *Store) gate(ctx context.Context) error {
	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", xerrors.ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return xerrors.ErrStoreUnavailable
	}
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("%w: injected failure", xerrors.ErrStoreUnavailable)
	}
	return nil
}

// ack must be called with s.mu held after a committed write.
func (s *Store) ack() error {
	if s.loseAcks > 0 {
		s.loseAcks--
		return fmt.Errorf("%w: response lost", xerrors.ErrStoreUnavailable)
	}
	return nil
}

// tick returns a strictly increasing timestamp. Must be called with s.mu held.
func (s *Store) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.clock) {
		now = s.clock.Add(time.Microsecond)
	}
	s.clock = now
	return now
}

func (s *Store) Ping(ctx context.Context) error {
	return s.gate(ctx)
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPhone[phone]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	c := s.customers[id]
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPhone[c.Phone]; exists {
		return fmt.Errorf("customer phone %s: %w", c.Phone, xerrors.ErrDuplicateEntry)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.tick()
	c.CreatedAt, c.UpdatedAt = now, now
	s.customers[c.ID] = *c
	s.byPhone[c.Phone] = c.ID
	return s.ack()
}

// CustomerCount is used by tests to check phone deduplication.
func (s *Store) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

func (s *Store) ListConsultants(ctx context.Context) ([]consultant.Consultant, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]consultant.Consultant, 0, len(s.consultants))
	for _, c := range s.consultants {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetConsultant(ctx context.Context, id string) (*consultant.Consultant, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consultants[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateVisit(ctx context.Context, input visit.CreateInput) (*visit.Visit, bool, error) {
	if err := s.gate(ctx); err != nil {
		return nil, false, err
	}
	s.mu.Lock()

	if id, ok := s.byClientRef[input.ClientRef]; ok {
		v := cloneVisit(s.visits[id])
		s.mu.Unlock()
		return &v, false, nil
	}
	if _, ok := s.customers[input.CustomerID]; !ok {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("customer %s: %w", input.CustomerID, xerrors.ErrNotFound)
	}

	now := s.tick()
	v := visit.Visit{
		ID:              uuid.NewString(),
		ClientRef:       input.ClientRef,
		CustomerID:      input.CustomerID,
		Status:          visit.StatusNew,
		VehicleInterest: cloneRaw(input.VehicleInterest),
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.visits[v.ID] = v
	s.byClientRef[v.ClientRef] = v.ID
	ev := s.eventLocked(visit.EventInsert, v)
	err := s.ack()
	s.mu.Unlock()

	s.publish(ev)
	if err != nil {
		return nil, false, err
	}
	out := cloneVisit(v)
	return &out, true, nil
}

func (s *Store) FindVisitByClientRef(ctx context.Context, clientRef string) (*visit.Visit, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byClientRef[clientRef]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	v := cloneVisit(s.visits[id])
	return &v, nil
}

func (s *Store) GetVisit(ctx context.Context, id string) (*visit.Visit, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visits[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	out := cloneVisit(v)
	return &out, nil
}

func (s *Store) GetQueueEntry(ctx context.Context, id string) (*visit.QueueEntry, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visits[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	e := s.entryLocked(v)
	return &e, nil
}

func (s *Store) ListOpenVisits(ctx context.Context) ([]visit.QueueEntry, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []visit.QueueEntry{}
	for _, v := range s.visits {
		if v.Status.IsTerminal() {
			continue
		}
		out = append(out, s.entryLocked(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AssignVisit(ctx context.Context, id, consultantID string) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit) error {
		if _, ok := s.consultants[consultantID]; !ok {
			return fmt.Errorf("consultant %s: %w", consultantID, xerrors.ErrNotFound)
		}
		if v.IsAssigned() {
			return xerrors.ErrAlreadyAssigned
		}
		if !v.Status.IsPendingStatus() {
			return xerrors.ErrVisitNotPending
		}
		cid := consultantID
		v.ConsultantID = &cid
		v.Status = visit.StatusAssigned
		return nil
	})
}

func (s *Store) UpdateVisitStatus(ctx context.Context, id string, from, to visit.Status) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit) error {
		if v.Status != from {
			return fmt.Errorf("visit %s is %s, not %s: %w", id, v.Status, from, xerrors.ErrInvalidTransition)
		}
		v.Status = to
		return nil
	})
}

func (s *Store) SaveScore(ctx context.Context, id string, payload json.RawMessage) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit) error {
		v.Score = cloneRaw(payload)
		return nil
	})
}

// DeleteVisit removes a visit outright. Nothing in the service deletes visits;
// it exists to exercise delete events on the feed.
func (s *Store) DeleteVisit(id string) {
	s.mu.Lock()
	v, ok := s.visits[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.visits, id)
	delete(s.byClientRef, v.ClientRef)
	v.UpdatedAt = s.tick()
	ev := s.eventLocked(visit.EventDelete, v)
	s.mu.Unlock()

	s.publish(ev)
}

func (s *Store) mutate(ctx context.Context, id string, apply func(v *visit.Visit) error) (*visit.Visit, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()

	current, ok := s.visits[id]
	if !ok {
		s.mu.Unlock()
		return nil, xerrors.ErrNotFound
	}
	next := cloneVisit(current)
	if err := apply(&next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next.UpdatedAt = s.tick()
	s.visits[id] = next
	ev := s.eventLocked(visit.EventUpdate, next)
	err := s.ack()
	s.mu.Unlock()

	s.publish(ev)
	if err != nil {
		return nil, err
	}
	out := cloneVisit(next)
	return &out, nil
}

func (s *Store) entryLocked(v visit.Visit) visit.QueueEntry {
	e := visit.QueueEntry{Visit: cloneVisit(v)}
	if c, ok := s.customers[v.CustomerID]; ok {
		e.CustomerName = c.Name
		e.CustomerPhone = c.Phone
	}
	if v.ConsultantID != nil {
		if c, ok := s.consultants[*v.ConsultantID]; ok {
			name := c.Name
			e.ConsultantName = &name
		}
	}
	return e
}

func cloneVisit(v visit.Visit) visit.Visit {
	out := v
	if v.ConsultantID != nil {
		id := *v.ConsultantID
		out.ConsultantID = &id
	}
	if v.Notes != nil {
		n := *v.Notes
		out.Notes = &n
	}
	out.VehicleInterest = cloneRaw(v.VehicleInterest)
	out.Score = cloneRaw(v.Score)
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
