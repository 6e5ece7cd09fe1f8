// Package store defines the contract of the authoritative backing store the
// intake, sync and assignment services run against.
package store

import (
	"context"
	"encoding/json"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/domain/customer"
	"frontdesk-service/internal/domain/visit"
)

type CustomerStore interface {
	// FindCustomerByPhone returns xerrors.ErrNotFound when no customer owns phone.
	FindCustomerByPhone(ctx context.Context, phone string) (*customer.Customer, error)
	// CreateCustomer assigns c.ID and timestamps. A phone uniqueness conflict is
	// reported as xerrors.ErrDuplicateEntry.
	CreateCustomer(ctx context.Context, c *customer.Customer) error
}

type VisitStore interface {
	// CreateVisit is idempotent on input.ClientRef: a repeated call returns the
	// existing visit with created=false.
	CreateVisit(ctx context.Context, input visit.CreateInput) (v *visit.Visit, created bool, err error)
	FindVisitByClientRef(ctx context.Context, clientRef string) (*visit.Visit, error)
	GetVisit(ctx context.Context, id string) (*visit.Visit, error)
	GetQueueEntry(ctx context.Context, id string) (*visit.QueueEntry, error)
	// ListOpenVisits returns every non-terminal visit with display fields.
	ListOpenVisits(ctx context.Context) ([]visit.QueueEntry, error)
	// AssignVisit sets the consultant and moves the visit to assigned only if it is
	// still pending and unassigned. Otherwise it fails with ErrAlreadyAssigned or
	// ErrVisitNotPending.
	AssignVisit(ctx context.Context, id, consultantID string) (*visit.Visit, error)
	// UpdateVisitStatus moves the visit from -> to, failing with
	// ErrInvalidTransition when the stored status is no longer from.
	UpdateVisitStatus(ctx context.Context, id string, from, to visit.Status) (*visit.Visit, error)
	SaveScore(ctx context.Context, id string, payload json.RawMessage) (*visit.Visit, error)
}

type ConsultantStore interface {
	ListConsultants(ctx context.Context) ([]consultant.Consultant, error)
	GetConsultant(ctx context.Context, id string) (*consultant.Consultant, error)
}

// ChangeFeed pushes visit record changes. The channel is closed when ctx ends.
type ChangeFeed interface {
	SubscribeVisits(ctx context.Context) (<-chan visit.ChangeEvent, error)
}

// NetworkNotifier is implemented by stores that learn of connection loss
// before a probe would, such as a dropped LISTEN connection.
type NetworkNotifier interface {
	OnNetworkChange(fn func(up bool))
}

// Prober is the lightweight reachability check used by the connectivity monitor.
type Prober interface {
	Ping(ctx context.Context) error
}

type BackingStore interface {
	CustomerStore
	VisitStore
	ConsultantStore
	ChangeFeed
	Prober
}
