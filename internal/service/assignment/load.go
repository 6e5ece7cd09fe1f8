package assignment

import (
	"context"
	"fmt"
	"sort"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/domain/visit"
	"frontdesk-service/internal/store"
)

type ActiveView interface {
	Active() []visit.QueueEntry
}

// LoadTracker derives consultant load from the queue's active view on every
// call. It holds no state of its own.
type LoadTracker struct {
	queue       ActiveView
	consultants store.ConsultantStore
	capacity    int
}

func NewLoadTracker(queue ActiveView, consultants store.ConsultantStore, capacity int) *LoadTracker {
	if capacity <= 0 {
		capacity = 3
	}
	return &LoadTracker{queue: queue, consultants: consultants, capacity: capacity}
}

func (t *LoadTracker) Capacity() int {
	return t.capacity
}

// LoadOf returns the number of active visits owned by consultantID.
func (t *LoadTracker) LoadOf(consultantID string) int {
	return t.counts()[consultantID]
}

func (t *LoadTracker) IsAvailable(consultantID string) bool {
	return t.LoadOf(consultantID) < t.capacity
}

// Loads returns the load of every active consultant, ordered by id.
func (t *LoadTracker) Loads(ctx context.Context) ([]consultant.Load, error) {
	all, err := t.consultants.ListConsultants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultants: %w", err)
	}

	counts := t.counts()
	loads := make([]consultant.Load, 0, len(all))
	for _, c := range all {
		if !c.IsActive {
			continue
		}
		n := counts[c.ID]
		loads = append(loads, consultant.Load{
			ConsultantID: c.ID,
			Name:         c.Name,
			ActiveCount:  n,
			Available:    n < t.capacity,
		})
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].ConsultantID < loads[j].ConsultantID })
	return loads, nil
}

func (t *LoadTracker) counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range t.queue.Active() {
		if e.ConsultantID != nil {
			counts[*e.ConsultantID]++
		}
	}
	return counts
}

// leastLoaded picks the available consultant with the fewest active visits,
// breaking ties by id. loads must be ordered by id.
func leastLoaded(loads []consultant.Load) (consultant.Load, bool) {
	var best consultant.Load
	found := false
	for _, l := range loads {
		if !l.Available {
			continue
		}
		if !found || l.ActiveCount < best.ActiveCount {
			best, found = l, true
		}
	}
	return best, found
}
