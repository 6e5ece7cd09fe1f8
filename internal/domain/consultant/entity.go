// internal/domain/consultant/entity.go
package consultant

// Consultant is a sales consultant visits can be assigned to.
type Consultant struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Load is the derived workload view of a consultant.
type Load struct {
	ConsultantID string `json:"consultant_id"`
	Name         string `json:"name"`
	ActiveCount  int    `json:"active_count"`
	Available    bool   `json:"available"`
}
