// internal/domain/visit/entity.go
package visit

import (
	"encoding/json"
	"time"
)

// Visit is a single customer interaction tracked through the status pipeline.
// ClientRef is the correlation id generated at intake; it is unique in the backing
// store and makes creation safe to replay.
type Visit struct {
	ID              string          `json:"id" db:"id"`
	ClientRef       string          `json:"client_ref" db:"client_ref"`
	CustomerID      string          `json:"customer_id" db:"customer_id"`
	ConsultantID    *string         `json:"consultant_id,omitempty" db:"consultant_id"`
	Status          Status          `json:"status" db:"status"`
	VehicleInterest json.RawMessage `json:"vehicle_interest,omitempty" db:"vehicle_interest"`
	Notes           *string         `json:"notes,omitempty" db:"notes"`
	Score           json.RawMessage `json:"score,omitempty" db:"score"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAssigned reports whether a consultant owns the visit.
func (v *Visit) IsAssigned() bool {
	return v.ConsultantID != nil && *v.ConsultantID != ""
}

// IsPending reports whether the visit is waiting for a consultant.
func (v *Visit) IsPending() bool {
	return !v.IsAssigned() && v.Status.IsPendingStatus()
}

// QueueEntry is a non-terminal visit with denormalized display fields.
type QueueEntry struct {
	Visit
	CustomerName   string  `json:"customer_name"`
	CustomerPhone  string  `json:"customer_phone"`
	ConsultantName *string `json:"consultant_name,omitempty"`
}
