// internal/repository/postgres/change_feed.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const visitChangesChannel = "visit_changes"

// notifyPayload is what the visits_notify_change trigger publishes. It is kept
// small to stay under the NOTIFY payload limit; full rows are fetched on receipt.
type notifyPayload struct {
	EventType    string    `json:"event_type"`
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	ConsultantID *string   `json:"consultant_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChangeFeed listens on the visit_changes channel and turns notifications into
// visit.ChangeEvent values.
type ChangeFeed struct {
	dsn    string
	visits *VisitRepository
	logger *zap.Logger

	minReconnect time.Duration
	maxReconnect time.Duration
	buffer       int
	// timeout bounds the read that hydrates each notification
	timeout time.Duration

	mu       sync.RWMutex
	watchers []func(up bool)
}

func NewChangeFeed(dsn string, visits *VisitRepository, timeout time.Duration, logger *zap.Logger) *ChangeFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChangeFeed{
		dsn:          dsn,
		visits:       visits,
		logger:       logger,
		minReconnect: 500 * time.Millisecond,
		maxReconnect: 30 * time.Second,
		buffer:       256,
		timeout:      timeout,
	}
}

// OnNetworkChange registers fn to hear when the LISTEN connection drops or
// comes back.
func (f *ChangeFeed) OnNetworkChange(fn func(up bool)) {
	f.mu.Lock()
	f.watchers = append(f.watchers, fn)
	f.mu.Unlock()
}

func (f *ChangeFeed) networkChanged(up bool) {
	f.mu.RLock()
	watchers := append([]func(bool){}, f.watchers...)
	f.mu.RUnlock()
	for _, fn := range watchers {
		fn(up)
	}
}

// SubscribeVisits starts a dedicated LISTEN connection. Reconnects and
// undecodable payloads are surfaced as resync events, since notifications sent
// while disconnected are lost.
func (f *ChangeFeed) SubscribeVisits(ctx context.Context) (<-chan visit.ChangeEvent, error) {
	listener := pq.NewListener(f.dsn, f.minReconnect, f.maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			f.logger.Warn("change feed connection attempt failed", zap.Error(err))
		case pq.ListenerEventDisconnected:
			f.logger.Warn("change feed disconnected", zap.Error(err))
			f.networkChanged(false)
		case pq.ListenerEventReconnected:
			f.logger.Info("change feed reconnected")
			f.networkChanged(true)
		}
	})

	if err := listener.Listen(visitChangesChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("%w: listen %s: %v", xerrors.ErrStoreUnavailable, visitChangesChannel, err)
	}

	out := make(chan visit.ChangeEvent, f.buffer)
	go f.run(ctx, listener, out)
	return out, nil
}

func (f *ChangeFeed) run(ctx context.Context, listener *pq.Listener, out chan<- visit.ChangeEvent) {
	defer close(out)
	defer listener.Close()

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			// nil means the connection was re-established
			var ev visit.ChangeEvent
			if n == nil {
				ev = resyncEvent()
			} else {
				ev = f.decode(ctx, n.Extra)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					f.logger.Warn("change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (f *ChangeFeed) decode(ctx context.Context, raw string) visit.ChangeEvent {
	var p notifyPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.ID == "" {
		f.logger.Warn("malformed change notification", zap.String("payload", raw), zap.Error(err))
		return resyncEvent()
	}

	typ := visit.EventType(p.EventType)
	if typ == visit.EventDelete {
		return visit.ChangeEvent{
			Type: visit.EventDelete,
			Record: &visit.QueueEntry{Visit: visit.Visit{
				ID:           p.ID,
				CustomerID:   p.CustomerID,
				ConsultantID: p.ConsultantID,
				Status:       visit.Status(p.Status),
				CreatedAt:    p.CreatedAt,
				UpdatedAt:    p.UpdatedAt,
			}},
			ReceivedAt: time.Now(),
		}
	}
	if typ != visit.EventInsert && typ != visit.EventUpdate {
		return resyncEvent()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	entry, err := f.visits.GetQueueEntry(fetchCtx, p.ID)
	cancel()
	if errors.Is(err, xerrors.ErrNotFound) {
		// deleted between notify and fetch; the delete notification follows
		return visit.ChangeEvent{Type: visit.EventResync, ReceivedAt: time.Now()}
	}
	if err != nil {
		f.logger.Warn("failed to hydrate change notification", zap.String("visit_id", p.ID), zap.Error(err))
		return resyncEvent()
	}
	return visit.ChangeEvent{Type: typ, Record: entry, ReceivedAt: time.Now()}
}

func resyncEvent() visit.ChangeEvent {
	return visit.ChangeEvent{Type: visit.EventResync, ReceivedAt: time.Now()}
}
