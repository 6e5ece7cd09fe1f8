package customer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"frontdesk-service/internal/domain/customer"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/repository/memory"

	"go.uber.org/zap"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{"0791234567", "0791234567", nil},
		{"0791 234 567", "0791234567", nil},
		{"+254 791-234-567", "0791234567", nil},
		{"254111234567", "0111234567", nil},
		{"(079) 123 4567", "0791234567", nil},
		{"0591234567", "", xerrors.ErrInvalidPhone},
		{"079123456", "", xerrors.ErrInvalidPhone},
		{"07912345678", "", xerrors.ErrInvalidPhone},
		{"07x9y1234567", "", xerrors.ErrInvalidPhone},
		{"0791+234567", "", xerrors.ErrInvalidPhone},
		{"abc", "", xerrors.ErrInvalidPhone},
		{"+", "", xerrors.ErrInvalidPhone},
		{"   ", "", xerrors.ErrMissingRequiredField},
		{"", "", xerrors.ErrMissingRequiredField},
	}

	for _, tt := range cases {
		got, err := NormalizePhone(tt.raw, "254")
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%q: expected %v, got %v", tt.raw, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("%q: expected %s, got %s", tt.raw, tt.want, got)
		}
	}
}

func TestResolveFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	r := NewIdentityResolver(st, "254", zap.NewNop())

	first, err := r.Resolve(ctx, customer.ResolveRequest{Name: "Wanjiru", Phone: "0791234567"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, customer.ResolveRequest{Name: "Someone Else", Phone: "+254791234567", Email: "x@example.com"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected same customer, got %s and %s", first, second)
	}

	c, _ := st.FindCustomerByPhone(ctx, "0791234567")
	if c.Name != "Wanjiru" || c.Email != nil {
		t.Fatalf("existing identity was overwritten: %+v", c)
	}
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	r := NewIdentityResolver(memory.NewStore(), "254", zap.NewNop())

	if _, err := r.Resolve(context.Background(), customer.ResolveRequest{Phone: "0791234567"}); !errors.Is(err, xerrors.ErrMissingRequiredField) {
		t.Fatalf("expected missing field, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), customer.ResolveRequest{Name: "A", Phone: "12"}); !errors.Is(err, xerrors.ErrInvalidPhone) {
		t.Fatalf("expected invalid phone, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), customer.ResolveRequest{Name: "A", Phone: "0791234567", Language: "klingon"}); !xerrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// raceStore holds the first lookup of every caller until all callers have
// looked up, then reports a miss, so every caller attempts the create.
type raceStore struct {
	*memory.Store
	mu      sync.Mutex
	pending int
	release chan struct{}
}

func newRaceStore(callers int) *raceStore {
	return &raceStore{Store: memory.NewStore(), pending: callers, release: make(chan struct{})}
}

func (s *raceStore) FindCustomerByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return s.Store.FindCustomerByPhone(ctx, phone)
	}
	s.pending--
	if s.pending == 0 {
		close(s.release)
	}
	s.mu.Unlock()

	<-s.release
	return nil, xerrors.ErrNotFound
}

func TestResolveConcurrentCreatesDedup(t *testing.T) {
	ctx := context.Background()
	const callers = 8
	st := newRaceStore(callers)
	r := NewIdentityResolver(st, "254", zap.NewNop())

	var wg sync.WaitGroup
	ids := make(chan string, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Resolve(ctx, customer.ResolveRequest{Name: "Wanjiru", Phone: "0791234567"})
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Fatalf("resolve: %v", err)
	}
	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected a single customer id, got %v", seen)
	}
	if st.CustomerCount() != 1 {
		t.Fatalf("expected 1 customer, got %d", st.CustomerCount())
	}
}
