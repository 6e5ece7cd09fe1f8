// internal/domain/customer/entity.go
package customer

import "time"

// Language is the customer's preferred language for front-desk communication.
type Language string

const (
	LanguagePrimary   Language = "primary"
	LanguageSecondary Language = "secondary"
)

// Valid reports whether l is one of the supported preferences.
func (l Language) Valid() bool {
	return l == LanguagePrimary || l == LanguageSecondary
}

// Customer is keyed by its canonical phone number: at most one record per phone.
type Customer struct {
	ID       string   `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Phone    string   `json:"phone" db:"phone"`
	Email    *string  `json:"email,omitempty" db:"email"`
	Language Language `json:"language" db:"language"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
