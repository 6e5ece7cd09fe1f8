// Package connectivity tracks whether the backing store is reachable and
// publishes online/offline transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"frontdesk-service/internal/store"

	"go.uber.org/zap"
)

type Transition string

const (
	WentOnline  Transition = "went_online"
	WentOffline Transition = "went_offline"
)

type Event struct {
	Transition Transition
	At         time.Time
}

type Options struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	// StableProbes is the number of consecutive successful probes required
	// before an offline monitor declares itself online.
	StableProbes int
}

func DefaultOptions() Options {
	return Options{
		ProbeInterval: 5 * time.Second,
		ProbeTimeout:  2 * time.Second,
		StableProbes:  2,
	}
}

type Monitor struct {
	prober store.Prober
	opts   Options
	logger *zap.Logger

	mu     sync.RWMutex
	online bool
	streak int
	subs   []chan Event

	wake chan struct{}
}

func NewMonitor(prober store.Prober, opts Options, logger *zap.Logger) *Monitor {
	def := DefaultOptions()
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = def.ProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = def.ProbeTimeout
	}
	if opts.StableProbes <= 0 {
		opts.StableProbes = def.StableProbes
	}
	return &Monitor{
		prober: prober,
		opts:   opts,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Online reports the current connectivity signal.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe returns a channel of transitions. Slow subscribers miss events
// rather than stall the monitor.
func (m *Monitor) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run probes on every interval until ctx ends, then closes subscriber channels.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.ProbeInterval)
	defer ticker.Stop()
	defer m.closeSubscribers()

	m.logger.Info("connectivity monitor started",
		zap.Duration("interval", m.opts.ProbeInterval),
		zap.Int("stable_probes", m.opts.StableProbes),
	)

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		case <-m.wake:
			m.Probe(ctx)
		}
	}
}

// Probe runs a single reachability check and folds it into the state.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	err := m.prober.Ping(probeCtx)
	if err != nil && ctx.Err() == nil {
		m.logger.Debug("connectivity probe failed", zap.Error(err))
	}
	m.observe(err == nil)
	return err == nil
}

// NotifyNetworkChange takes a platform network hint. Loss is applied at once;
// a restored network only schedules a probe, so the stability rule still holds.
func (m *Monitor) NotifyNetworkChange(up bool) {
	if !up {
		m.observe(false)
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) observe(ok bool) {
	m.mu.Lock()
	var ev *Event
	switch {
	case ok && !m.online:
		m.streak++
		if m.streak >= m.opts.StableProbes {
			m.online = true
			m.streak = 0
			ev = &Event{Transition: WentOnline, At: time.Now()}
		}
	case ok:
		m.streak = 0
	case m.online:
		m.online = false
		m.streak = 0
		ev = &Event{Transition: WentOffline, At: time.Now()}
	default:
		m.streak = 0
	}
	subs := append([]chan Event(nil), m.subs...)
	m.mu.Unlock()

	if ev == nil {
		return
	}
	m.logger.Info("connectivity changed", zap.String("transition", string(ev.Transition)))
	for _, ch := range subs {
		select {
		case ch <- *ev:
		default:
			m.logger.Warn("connectivity subscriber lagging, event dropped")
		}
	}
}

func (m *Monitor) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}
