package assignment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/domain/customer"
	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/repository/memory"
	"frontdesk-service/internal/service/queue"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fixture struct {
	store  *memory.Store
	queue  *queue.Store
	engine *Engine
	cust   *customer.Customer
	seq    int
}

func newFixture(t *testing.T, capacity int, consultants ...consultant.Consultant) *fixture {
	t.Helper()
	st := memory.NewStore()
	for _, c := range consultants {
		st.AddConsultant(c)
	}
	cust := &customer.Customer{Name: "Wanjiru", Phone: "0791234567"}
	if err := st.CreateCustomer(context.Background(), cust); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	q := queue.NewStore(st, zap.NewNop())
	loads := NewLoadTracker(q, st, capacity)
	engine := NewEngine(st, st, q, loads, NewLocalClaims(), time.Second, zap.NewNop())
	return &fixture{store: st, queue: q, engine: engine, cust: cust}
}

func active(ids ...string) []consultant.Consultant {
	out := make([]consultant.Consultant, 0, len(ids))
	for _, id := range ids {
		out = append(out, consultant.Consultant{ID: id, Name: "Consultant " + id, IsActive: true})
	}
	return out
}

func (f *fixture) newVisit(t *testing.T) string {
	t.Helper()
	f.seq++
	v, _, err := f.store.CreateVisit(context.Background(), visit.CreateInput{
		ClientRef:  fmt.Sprintf("ref-%d", f.seq),
		CustomerID: f.cust.ID,
	})
	if err != nil {
		t.Fatalf("create visit: %v", err)
	}
	return v.ID
}

func (f *fixture) assignDirect(t *testing.T, consultantID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := f.store.AssignVisit(context.Background(), f.newVisit(t), consultantID); err != nil {
			t.Fatalf("seed assignment: %v", err)
		}
	}
}

func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	if err := f.queue.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}

func TestLeastLoadedPicksIdleConsultant(t *testing.T) {
	f := newFixture(t, 3, active("c1", "c2", "c3")...)
	f.assignDirect(t, "c1", 2)
	f.assignDirect(t, "c3", 1)
	id := f.newVisit(t)
	f.refresh(t)

	v, err := f.engine.AssignLeastLoaded(context.Background(), id)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if *v.ConsultantID != "c2" {
		t.Fatalf("expected c2, got %s", *v.ConsultantID)
	}
	if n := f.engine.Loads().LoadOf("c2"); n != 1 {
		t.Fatalf("expected c2 load 1 right after assignment, got %d", n)
	}
}

func TestLeastLoadedTieBreakByID(t *testing.T) {
	f := newFixture(t, 3, active("c3", "c1", "c2")...)
	id := f.newVisit(t)
	f.refresh(t)

	v, err := f.engine.AssignLeastLoaded(context.Background(), id)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if *v.ConsultantID != "c1" {
		t.Fatalf("expected c1, got %s", *v.ConsultantID)
	}
}

func TestLeastLoadedSkipsFullAndInactive(t *testing.T) {
	consultants := append(active("c1", "c2"), consultant.Consultant{ID: "c0", Name: "Off shift", IsActive: false})
	f := newFixture(t, 2, consultants...)
	f.assignDirect(t, "c1", 2)
	f.assignDirect(t, "c2", 1)
	id := f.newVisit(t)
	f.refresh(t)

	v, err := f.engine.AssignLeastLoaded(context.Background(), id)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if *v.ConsultantID != "c2" {
		t.Fatalf("expected c2, got %s", *v.ConsultantID)
	}

	next := f.newVisit(t)
	f.refresh(t)
	if _, err := f.engine.AssignLeastLoaded(context.Background(), next); !errors.Is(err, xerrors.ErrNoAvailableConsultant) {
		t.Fatalf("expected no available consultant, got %v", err)
	}
}

func TestAssignRejectsNonPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, active("c1", "c2")...)
	id := f.newVisit(t)
	f.refresh(t)

	if _, err := f.engine.Assign(ctx, id, "c1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.engine.Assign(ctx, id, "c2"); !errors.Is(err, xerrors.ErrAlreadyAssigned) {
		t.Fatalf("expected already assigned, got %v", err)
	}

	lost := f.newVisit(t)
	if _, err := f.store.UpdateVisitStatus(ctx, lost, visit.StatusNew, visit.StatusLost); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := f.engine.Assign(ctx, lost, "c1"); !errors.Is(err, xerrors.ErrVisitNotPending) {
		t.Fatalf("expected visit not pending, got %v", err)
	}
}

func TestAssignRejectsInactiveConsultant(t *testing.T) {
	f := newFixture(t, 3, consultant.Consultant{ID: "c0", Name: "Off shift"})
	id := f.newVisit(t)

	if _, err := f.engine.Assign(context.Background(), id, "c0"); !xerrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentLeastLoadedSameVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, active("c1", "c2", "c3")...)
	id := f.newVisit(t)
	f.refresh(t)
	f.store.SetLatency(10 * time.Millisecond)

	const callers = 6
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.AssignLeastLoaded(ctx, id)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, xerrors.ErrAlreadyAssigned), errors.Is(err, xerrors.ErrAssignmentInProgress):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestConcurrentAssignAcrossEnginesOneConsultantWritten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, active("c1", "c2", "c3", "c4")...)
	id := f.newVisit(t)
	f.refresh(t)

	// separate claim tables model separate processes; only the store arbitrates
	engines := make([]*Engine, 4)
	for i := range engines {
		engines[i] = NewEngine(f.store, f.store, f.queue, f.engine.Loads(), NewLocalClaims(), time.Second, zap.NewNop())
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winner string
	wins := 0
	for i, e := range engines {
		wg.Add(1)
		go func(e *Engine, consultantID string) {
			defer wg.Done()
			v, err := e.Assign(ctx, id, consultantID)
			if err != nil {
				if !xerrors.IsConcurrency(err) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			wins++
			winner = *v.ConsultantID
			mu.Unlock()
		}(e, fmt.Sprintf("c%d", i+1))
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	stored, _ := f.store.GetVisit(ctx, id)
	if *stored.ConsultantID != winner {
		t.Fatalf("stored consultant %s differs from winner %s", *stored.ConsultantID, winner)
	}
}

func TestLocalClaims(t *testing.T) {
	ctx := context.Background()
	c := NewLocalClaims()

	release, err := c.Acquire(ctx, "v1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := c.Acquire(ctx, "v1"); !errors.Is(err, xerrors.ErrAssignmentInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
	if _, err := c.Acquire(ctx, "v2"); err != nil {
		t.Fatalf("other visit should not contend: %v", err)
	}

	release()
	release()
	if c.Held("v1") {
		t.Fatalf("claim still held after release")
	}
	if _, err := c.Acquire(ctx, "v1"); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func TestRedisClaims(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is required for redis claim tests")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	a := NewRedisClaims(NewLocalClaims(), rdb, time.Second, zap.NewNop())
	b := NewRedisClaims(NewLocalClaims(), rdb, time.Second, zap.NewNop())
	visitID := fmt.Sprintf("test-%d", time.Now().UnixNano())

	release, err := a.Acquire(ctx, visitID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := b.Acquire(ctx, visitID); !errors.Is(err, xerrors.ErrAssignmentInProgress) {
		t.Fatalf("expected in progress across instances, got %v", err)
	}
	release()

	releaseB, err := b.Acquire(ctx, visitID)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	releaseB()
}
