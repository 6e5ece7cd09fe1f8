// internal/domain/visit/dto.go
package visit

import (
	"encoding/json"

	"frontdesk-service/internal/domain/customer"
)

// SubmitRequest is the front-desk intake form.
type SubmitRequest struct {
	Name            string            `json:"name"`
	Phone           string            `json:"phone"`
	Email           string            `json:"email,omitempty"`
	Language        customer.Language `json:"language"`
	VehicleInterest json.RawMessage   `json:"vehicle_interest,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// SubmitResult acknowledges an intake. Exactly one of VisitID / LocalID is set.
type SubmitResult struct {
	Confirmed bool   `json:"confirmed"`
	VisitID   string `json:"visit_id,omitempty"`
	LocalID   string `json:"local_id,omitempty"`
}

// CreateInput is what the backing store needs to create a visit.
type CreateInput struct {
	ClientRef       string
	CustomerID      string
	VehicleInterest json.RawMessage
	Notes           *string
}

type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

type AssignRequest struct {
	ConsultantID string `json:"consultant_id" binding:"required"`
}
