// internal/domain/customer/dto.go
package customer

// ResolveRequest carries the identity fields captured at intake.
type ResolveRequest struct {
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Email    string   `json:"email,omitempty"`
	Language Language `json:"language"`
}
