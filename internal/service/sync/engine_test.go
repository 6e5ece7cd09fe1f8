package sync

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"frontdesk-service/internal/domain/visit"
	"frontdesk-service/internal/pendinglog"
	"frontdesk-service/internal/repository/memory"
	"frontdesk-service/internal/service/connectivity"
	customersvc "frontdesk-service/internal/service/customer"
	"frontdesk-service/internal/service/intake"

	"go.uber.org/zap"
)

type switchConn struct {
	online atomic.Bool
}

func (c *switchConn) Online() bool { return c.online.Load() }

type countingReplayer struct {
	Replayer
	calls atomic.Int32
}

func (r *countingReplayer) Confirm(ctx context.Context, clientRef string, req visit.SubmitRequest) (*visit.Visit, error) {
	r.calls.Add(1)
	return r.Replayer.Confirm(ctx, clientRef, req)
}

type harness struct {
	store    *memory.Store
	log      *pendinglog.Log
	conn     *switchConn
	intake   *intake.IntakeService
	replayer *countingReplayer
	engine   *Engine
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.NewStore()
	log, err := pendinglog.Open(":memory:")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	conn := &switchConn{}
	resolver := customersvc.NewIdentityResolver(st, "254", zap.NewNop())
	in := intake.NewIntakeService(resolver, st, log, conn, time.Second, zap.NewNop())
	replayer := &countingReplayer{Replayer: in}

	h := &harness{store: st, log: log, conn: conn, intake: in, replayer: replayer, clock: time.Now()}
	h.engine = NewEngine(replayer, st, log, Options{
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		MaxAttempts: 3,
		Interval:    time.Hour,
		Timeout:     time.Second,
	}, zap.NewNop())
	h.engine.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) submitOffline(t *testing.T, name, phone string) string {
	t.Helper()
	res, err := h.intake.Submit(context.Background(), visit.SubmitRequest{Name: name, Phone: phone})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Confirmed {
		t.Fatalf("expected offline submission")
	}
	// entries become eligible at their enqueue time
	if now := time.Now(); now.After(h.clock) {
		h.clock = now
	}
	return res.LocalID
}

func TestBackoff(t *testing.T) {
	e := NewEngine(nil, nil, nil, Options{BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}, zap.NewNop())
	cases := map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
		4: 10 * time.Second,
		9: 10 * time.Second,
	}
	for attempt, want := range cases {
		if got := e.Backoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestSamePhoneOfflineDrainsToOneCustomer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.submitOffline(t, "Wanjiru", "0791234567")
	second := h.submitOffline(t, "W. Kamau", "0791234567")

	outstanding, _, _ := h.log.Counts(ctx)
	if outstanding != 2 {
		t.Fatalf("expected 2 pending entries, got %d", outstanding)
	}

	h.conn.online.Store(true)
	res, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(res.Succeeded) != 2 || res.Succeeded[0] != first || res.Succeeded[1] != second {
		t.Fatalf("expected FIFO success, got %+v", res)
	}
	if h.store.CustomerCount() != 1 {
		t.Fatalf("expected 1 customer, got %d", h.store.CustomerCount())
	}

	a, _ := h.store.FindVisitByClientRef(ctx, first)
	b, _ := h.store.FindVisitByClientRef(ctx, second)
	if a.CustomerID != b.CustomerID {
		t.Fatalf("visits reference different customers")
	}
	if res.Outstanding != 0 {
		t.Fatalf("expected empty log, got %d", res.Outstanding)
	}
}

func TestReplayAfterLostAckCreatesOneVisit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	localID := h.submitOffline(t, "Wanjiru", "0791234567")

	h.store.LoseNextAck() // customer create
	res, _ := h.engine.Drain(ctx)
	if len(res.Failed) != 1 {
		t.Fatalf("expected a failed attempt, got %+v", res)
	}

	h.advance(time.Minute)
	h.store.LoseNextAck() // visit create
	res, _ = h.engine.Drain(ctx)
	if len(res.Failed) != 1 {
		t.Fatalf("expected a second failed attempt, got %+v", res)
	}

	h.advance(time.Minute)
	res, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != localID {
		t.Fatalf("expected success, got %+v", res)
	}

	open, _ := h.store.ListOpenVisits(ctx)
	if len(open) != 1 {
		t.Fatalf("expected exactly one visit, got %d", len(open))
	}
	if h.store.CustomerCount() != 1 {
		t.Fatalf("expected exactly one customer, got %d", h.store.CustomerCount())
	}
}

func TestExhaustedEntriesAreKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	localID := h.submitOffline(t, "Wanjiru", "0791234567")
	h.store.SetUnavailable(true)

	for i := 0; i < 3; i++ {
		if _, err := h.engine.Drain(ctx); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		h.advance(time.Hour)
	}

	e, err := h.log.Get(ctx, localID)
	if err != nil {
		t.Fatalf("entry was dropped: %v", err)
	}
	if !e.NeedsReview || e.AttemptCount != 3 || e.LastError == nil {
		t.Fatalf("unexpected entry after exhaustion: %+v", e)
	}

	// no further automatic attempts
	h.store.SetUnavailable(false)
	res, _ := h.engine.Drain(ctx)
	if len(res.Succeeded)+len(res.Failed) != 0 {
		t.Fatalf("needs-review entry was replayed: %+v", res)
	}
	if res.NeedsAttention != 1 {
		t.Fatalf("expected needs attention count 1, got %d", res.NeedsAttention)
	}
}

func TestBackingOffEntryIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.submitOffline(t, "Wanjiru", "0791234567")

	h.store.FailNext(1)
	if res, _ := h.engine.Drain(ctx); len(res.Failed) != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}

	res, _ := h.engine.Drain(ctx)
	if len(res.Succeeded)+len(res.Failed) != 0 {
		t.Fatalf("entry replayed during backoff: %+v", res)
	}

	h.advance(2 * time.Second)
	res, _ = h.engine.Drain(ctx)
	if len(res.Succeeded) != 1 {
		t.Fatalf("expected replay after backoff, got %+v", res)
	}
}

func TestBackingOffEntryHoldsLaterEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.submitOffline(t, "Alice First", "0791234567")
	second := h.submitOffline(t, "Bob Second", "0791234567")

	h.store.FailNext(1)
	if res, _ := h.engine.Drain(ctx); len(res.Failed) != 1 || res.Failed[0] != first {
		t.Fatalf("expected first entry to fail, got %+v", res)
	}

	// a wentOnline drain right after must not overtake the backing-off entry
	res, _ := h.engine.Drain(ctx)
	if len(res.Succeeded)+len(res.Failed) != 0 {
		t.Fatalf("later entry replayed ahead of the first: %+v", res)
	}
	if h.store.CustomerCount() != 0 {
		t.Fatalf("customer created out of order")
	}

	h.advance(2 * time.Second)
	res, _ = h.engine.Drain(ctx)
	if len(res.Succeeded) != 2 || res.Succeeded[0] != first || res.Succeeded[1] != second {
		t.Fatalf("expected FIFO replay, got %+v", res)
	}
	c, err := h.store.FindCustomerByPhone(ctx, "0791234567")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if c.Name != "Alice First" {
		t.Fatalf("expected first submission's name, got %q", c.Name)
	}
}

func TestInvalidEntryGoesToReviewAndDrainContinues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.log.Append(ctx, pendinglog.Entry{LocalID: "bad", Request: visit.SubmitRequest{Name: "X", Phone: "123"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	good := h.submitOffline(t, "Wanjiru", "0791234567")

	res, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "bad" {
		t.Fatalf("expected bad entry to fail, got %+v", res)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != good {
		t.Fatalf("expected good entry to drain, got %+v", res)
	}

	e, _ := h.log.Get(ctx, "bad")
	if !e.NeedsReview || e.AttemptCount != 1 {
		t.Fatalf("expected immediate review, got %+v", e)
	}
}

func TestStoreFailureStopsPass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.submitOffline(t, "Wanjiru", "0791234567")
	second := h.submitOffline(t, "Otieno", "0722000111")

	h.store.FailNext(1)
	res, _ := h.engine.Drain(ctx)
	if len(res.Failed) != 1 || res.Failed[0] != first || len(res.Succeeded) != 0 {
		t.Fatalf("expected pass to stop at first entry, got %+v", res)
	}

	e, _ := h.log.Get(ctx, second)
	if e.AttemptCount != 0 {
		t.Fatalf("second entry was charged an attempt")
	}
}

func TestConcurrentDrainsShareOnePass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.submitOffline(t, "Wanjiru", "0791234567")
	h.store.SetLatency(20 * time.Millisecond)

	var wg stdsync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.Drain(ctx); err != nil {
				t.Errorf("drain: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := h.replayer.calls.Load(); calls != 1 {
		t.Fatalf("expected one replay, got %d", calls)
	}
	open, _ := h.store.ListOpenVisits(ctx)
	if len(open) != 1 {
		t.Fatalf("expected one visit, got %d", len(open))
	}
}

func TestDrainOnWentOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)
	h.engine.now = time.Now

	// the store stalls past the intake timeout: the submission is saved locally
	h.conn.online.Store(true)
	h.store.SetLatency(1500 * time.Millisecond)
	res, err := h.intake.Submit(ctx, visit.SubmitRequest{Name: "Wanjiru", Phone: "0791234567"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Confirmed {
		t.Fatalf("expected unconfirmed result")
	}
	h.store.SetLatency(0)

	confirmed := make(chan Confirmation, 1)
	h.engine.OnDrain(func(r Result) {
		for _, c := range r.Confirmed {
			confirmed <- c
		}
	})

	transitions := make(chan connectivity.Event, 1)
	go h.engine.Run(ctx, h.conn, transitions)
	transitions <- connectivity.Event{Transition: connectivity.WentOnline, At: time.Now()}

	select {
	case c := <-confirmed:
		if c.LocalID != res.LocalID || c.VisitID == "" {
			t.Fatalf("unexpected confirmation %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("entry not confirmed after wentOnline")
	}
}
