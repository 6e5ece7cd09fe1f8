package memory

import (
	"context"
	"sync"
	"time"

	"frontdesk-service/internal/domain/visit"
)

const subscriberBuffer = 256

type subscriber struct {
	mu     sync.Mutex
	ch     chan visit.ChangeEvent
	closed bool
	// overflowed is set when an event was dropped; the next delivery is a resync.
	overflowed bool
}

func (sub *subscriber) send(ev visit.ChangeEvent) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	if sub.overflowed {
		select {
		case sub.ch <- visit.ChangeEvent{Type: visit.EventResync, ReceivedAt: time.Now()}:
			sub.overflowed = false
		default:
			return
		}
	}
	select {
	case sub.ch <- ev:
	default:
		sub.overflowed = true
	}
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// SubscribeVisits registers a feed subscriber. The channel is closed when ctx ends.
func (s *Store) SubscribeVisits(ctx context.Context) (<-chan visit.ChangeEvent, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}

	sub := &subscriber{ch: make(chan visit.ChangeEvent, subscriberBuffer)}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

// EmitResync pushes a resync event to every subscriber, as a reconnecting
// remote feed would.
func (s *Store) EmitResync() {
	s.publish(visit.ChangeEvent{Type: visit.EventResync, ReceivedAt: time.Now()})
}

// eventLocked builds a feed event for v. Must be called with s.mu held.
func (s *Store) eventLocked(typ visit.EventType, v visit.Visit) visit.ChangeEvent {
	var entry visit.QueueEntry
	if typ == visit.EventDelete {
		entry = visit.QueueEntry{Visit: cloneVisit(v)}
	} else {
		entry = s.entryLocked(v)
	}
	return visit.ChangeEvent{Type: typ, Record: &entry, ReceivedAt: time.Now()}
}

func (s *Store) publish(ev visit.ChangeEvent) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.send(ev)
	}
}
