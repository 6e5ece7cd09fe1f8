// Package queue keeps an in-memory projection of open visits in step with the
// backing store's change feed.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"frontdesk-service/internal/domain/visit"

	"go.uber.org/zap"
)

type Source interface {
	ListOpenVisits(ctx context.Context) ([]visit.QueueEntry, error)
	SubscribeVisits(ctx context.Context) (<-chan visit.ChangeEvent, error)
}

// Change describes one applied mutation of the projection. Entry is nil after
// a full refresh.
type Change struct {
	Type  visit.EventType
	Entry *visit.QueueEntry
	// Removed is set when the visit left the projection.
	Removed bool
}

type Observer func(Change)

type Store struct {
	source Source
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]visit.QueueEntry
	// last known updated_at of visits that left the projection
	tombstones map[string]time.Time
	ready      bool

	obsMu     sync.RWMutex
	observers []Observer

	resync  chan struct{}
	retry   time.Duration
	timeout time.Duration
}

func NewStore(source Source, logger *zap.Logger) *Store {
	return &Store{
		source:     source,
		logger:     logger,
		entries:    make(map[string]visit.QueueEntry),
		tombstones: make(map[string]time.Time),
		resync:     make(chan struct{}, 1),
		retry:      2 * time.Second,
		timeout:    5 * time.Second,
	}
}

// SetTimeout bounds each full refetch. Call before Run.
func (s *Store) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *Store) Subscribe(fn Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

// Run subscribes to the change feed, loads the initial snapshot and applies
// events one at a time until ctx ends.
func (s *Store) Run(ctx context.Context) error {
	for {
		events, err := s.source.SubscribeVisits(ctx)
		if err != nil {
			s.logger.Warn("change feed subscribe failed", zap.Error(err))
			if !sleep(ctx, s.retry) {
				return ctx.Err()
			}
			continue
		}

		s.requestResync()
		if done := s.consume(ctx, events); done {
			return ctx.Err()
		}
		s.logger.Warn("change feed closed, resubscribing")
	}
}

func (s *Store) consume(ctx context.Context, events <-chan visit.ChangeEvent) bool {
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() != nil
			}
			if !ev.Trusted() {
				s.requestResync()
				continue
			}
			s.Apply(ev)
		case <-s.resync:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("queue refresh failed", zap.Error(err))
				retry = time.After(s.retry)
			} else {
				retry = nil
			}
		case <-retry:
			retry = nil
			s.requestResync()
		}
	}
}

func (s *Store) requestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Refresh replaces the projection with a full fetch of open visits. Visits
// that dropped out of the snapshot are tombstoned at their last known
// updated_at, and existing tombstones survive, so a late event cannot bring a
// closed visit back.
func (s *Store) Refresh(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	list, err := s.source.ListOpenVisits(fetchCtx)
	cancel()
	if err != nil {
		return err
	}

	fresh := make(map[string]visit.QueueEntry, len(list))
	for _, e := range list {
		fresh[e.ID] = e
	}

	s.mu.Lock()
	for id, held := range s.entries {
		f, ok := fresh[id]
		switch {
		case !ok:
			if gone, seen := s.tombstones[id]; !seen || held.UpdatedAt.After(gone) {
				s.tombstones[id] = held.UpdatedAt
			}
		case held.UpdatedAt.After(f.UpdatedAt):
			fresh[id] = held
		}
	}
	for id, e := range fresh {
		gone, ok := s.tombstones[id]
		if !ok {
			continue
		}
		if e.UpdatedAt.After(gone) {
			delete(s.tombstones, id)
		} else {
			// snapshot read before the close landed
			delete(fresh, id)
		}
	}
	s.entries = fresh
	s.ready = true
	n := len(fresh)
	s.mu.Unlock()

	s.logger.Info("queue refreshed", zap.Int("open_visits", n))
	s.notify(Change{Type: visit.EventResync})
	return nil
}

// Apply folds one change event into the projection. Events older than what is
// held for the visit are dropped. It returns whether the projection changed.
// Untrusted events are never applied; Run answers them with a refresh.
func (s *Store) Apply(ev visit.ChangeEvent) bool {
	if !ev.Trusted() {
		return false
	}
	rec := *ev.Record

	s.mu.Lock()
	held, have := s.entries[rec.ID]
	if have && rec.UpdatedAt.Before(held.UpdatedAt) {
		s.mu.Unlock()
		return false
	}
	if gone, ok := s.tombstones[rec.ID]; ok && rec.UpdatedAt.Before(gone) {
		s.mu.Unlock()
		return false
	}

	removed := ev.Type == visit.EventDelete || rec.Status.IsTerminal()
	if removed {
		delete(s.entries, rec.ID)
		s.tombstones[rec.ID] = rec.UpdatedAt
	} else {
		if have && rec.CustomerName == "" {
			// keep display fields when the event carried a bare row
			rec.CustomerName, rec.CustomerPhone = held.CustomerName, held.CustomerPhone
		}
		s.entries[rec.ID] = rec
		delete(s.tombstones, rec.ID)
	}
	s.mu.Unlock()

	if removed && !have {
		return false
	}
	s.notify(Change{Type: ev.Type, Entry: &rec, Removed: removed})
	return true
}

func (s *Store) notify(c Change) {
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(c)
	}
}

// Ready reports whether the initial snapshot has been loaded.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Store) Get(id string) (visit.QueueEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// All returns every open visit, oldest first.
func (s *Store) All() []visit.QueueEntry {
	return s.filter(func(visit.QueueEntry) bool { return true })
}

// Pending returns unassigned visits in new or contacted.
func (s *Store) Pending() []visit.QueueEntry {
	return s.filter(func(e visit.QueueEntry) bool { return e.IsPending() })
}

// Active returns assigned visits in assigned or in_progress.
func (s *Store) Active() []visit.QueueEntry {
	return s.filter(func(e visit.QueueEntry) bool {
		return e.IsAssigned() && e.Status.IsActiveStatus()
	})
}

func (s *Store) ByStatus(status visit.Status) []visit.QueueEntry {
	return s.filter(func(e visit.QueueEntry) bool { return e.Status == status })
}

// Counts returns the sizes of the pending and active views.
func (s *Store) Counts() (pending, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		switch {
		case e.IsPending():
			pending++
		case e.IsAssigned() && e.Status.IsActiveStatus():
			active++
		}
	}
	return pending, active
}

func (s *Store) filter(keep func(visit.QueueEntry) bool) []visit.QueueEntry {
	s.mu.RLock()
	out := make([]visit.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
