// internal/repository/postgres/consultant_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"frontdesk-service/internal/domain/consultant"
	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConsultantRepository struct {
	db *pgxpool.Pool
}

func NewConsultantRepository(db *pgxpool.Pool) *ConsultantRepository {
	return &ConsultantRepository{db: db}
}

// ListConsultants returns every consultant ordered by id.
func (r *ConsultantRepository) ListConsultants(ctx context.Context) ([]consultant.Consultant, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_active FROM consultants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultants: %w", err)
	}
	defer rows.Close()

	consultants := []consultant.Consultant{}
	for rows.Next() {
		var c consultant.Consultant
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan consultant: %w", err)
		}
		consultants = append(consultants, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return consultants, nil
}

func (r *ConsultantRepository) GetConsultant(ctx context.Context, id string) (*consultant.Consultant, error) {
	var c consultant.Consultant
	err := r.db.QueryRow(ctx, `SELECT id, name, is_active FROM consultants WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultant: %w", err)
	}
	return &c, nil
}

// UpsertConsultant creates c or refreshes its name and active flag.
func (r *ConsultantRepository) UpsertConsultant(ctx context.Context, c consultant.Consultant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO consultants (id, name, is_active) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active`,
		c.ID, c.Name, c.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert consultant %s: %w", c.ID, err)
	}
	return nil
}
