// internal/repository/postgres/customer_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frontdesk-service/internal/domain/customer"
	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CustomerRepository struct {
	db *pgxpool.Pool
}

func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// CreateCustomer inserts a new customer. A phone conflict is reported as
// xerrors.ErrDuplicateEntry so callers can fall back to a lookup.
func (r *CustomerRepository) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (id, name, phone, email, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING created_at, updated_at
	`

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	err := r.db.QueryRow(
		ctx, query,
		c.ID, c.Name, c.Phone, c.Email, string(c.Language), time.Now().UTC(),
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if isUniqueViolation(err, "customers_phone_key") {
		return fmt.Errorf("customer phone %s: %w", c.Phone, xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// FindCustomerByPhone retrieves a customer by canonical phone number
func (r *CustomerRepository) FindCustomerByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	query := `
		SELECT id, name, phone, email, language, created_at, updated_at
		FROM customers
		WHERE phone = $1
	`

	var c customer.Customer
	var language string

	err := r.db.QueryRow(ctx, query, phone).Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &language, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	c.Language = customer.Language(language)

	return &c, nil
}
