// internal/repository/postgres/visit_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VisitRepository struct {
	db *pgxpool.Pool
}

func NewVisitRepository(db *pgxpool.Pool) *VisitRepository {
	return &VisitRepository{db: db}
}

const visitColumns = `
	v.id, v.client_ref, v.customer_id, v.consultant_id, v.status,
	v.vehicle_interest, v.notes, v.score, v.created_at, v.updated_at
`

const queueEntryQuery = `
	SELECT ` + visitColumns + `, c.name, c.phone, k.name
	FROM visits v
	JOIN customers c ON c.id = v.customer_id
	LEFT JOIN consultants k ON k.id = v.consultant_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner, extra ...any) (*visit.Visit, error) {
	var v visit.Visit
	var status string
	var vehicle, score []byte

	dest := []any{
		&v.ID, &v.ClientRef, &v.CustomerID, &v.ConsultantID, &status,
		&vehicle, &v.Notes, &score, &v.CreatedAt, &v.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	v.Status = visit.Status(status)
	if len(vehicle) > 0 {
		v.VehicleInterest = json.RawMessage(vehicle)
	}
	if len(score) > 0 {
		v.Score = json.RawMessage(score)
	}
	return &v, nil
}

func scanQueueEntry(row rowScanner) (*visit.QueueEntry, error) {
	var e visit.QueueEntry
	v, err := scanVisit(row, &e.CustomerName, &e.CustomerPhone, &e.ConsultantName)
	if err != nil {
		return nil, err
	}
	e.Visit = *v
	return &e, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// CreateVisit inserts a new visit in status new. A replay with the same
// client_ref returns the stored row instead of a duplicate.
func (r *VisitRepository) CreateVisit(ctx context.Context, input visit.CreateInput) (*visit.Visit, bool, error) {
	query := `
		INSERT INTO visits AS v (id, client_ref, customer_id, status, vehicle_interest, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_ref) DO NOTHING
		RETURNING ` + visitColumns

	v, err := scanVisit(r.db.QueryRow(
		ctx, query,
		uuid.NewString(), input.ClientRef, input.CustomerID, string(visit.StatusNew),
		nullableJSON(input.VehicleInterest), input.Notes,
	))
	if err == nil {
		return v, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create visit: %w", err)
	}

	existing, err := r.FindVisitByClientRef(ctx, input.ClientRef)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *VisitRepository) FindVisitByClientRef(ctx context.Context, clientRef string) (*visit.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits v WHERE v.client_ref = $1`

	v, err := scanVisit(r.db.QueryRow(ctx, query, clientRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find visit by client ref: %w", err)
	}
	return v, nil
}

func (r *VisitRepository) GetVisit(ctx context.Context, id string) (*visit.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits v WHERE v.id = $1`

	v, err := scanVisit(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return v, nil
}

func (r *VisitRepository) GetQueueEntry(ctx context.Context, id string) (*visit.QueueEntry, error) {
	e, err := scanQueueEntry(r.db.QueryRow(ctx, queueEntryQuery+` WHERE v.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return e, nil
}

// ListOpenVisits returns every non-terminal visit, oldest first.
func (r *VisitRepository) ListOpenVisits(ctx context.Context) ([]visit.QueueEntry, error) {
	query := queueEntryQuery + `
		WHERE v.status NOT IN ('completed', 'lost')
		ORDER BY v.created_at ASC, v.id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open visits: %w", err)
	}
	defer rows.Close()

	entries := []visit.QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// AssignVisit sets consultant_id and moves the visit to assigned, but only
// while the row is still pending and unowned. The row lock serializes
// concurrent assigners across service instances.
func (r *VisitRepository) AssignVisit(ctx context.Context, id, consultantID string) (*visit.Visit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockVisit(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.IsAssigned() {
		return nil, xerrors.ErrAlreadyAssigned
	}
	if !current.Status.IsPendingStatus() {
		return nil, xerrors.ErrVisitNotPending
	}

	query := `
		UPDATE visits AS v
		SET consultant_id = $2, status = $3
		WHERE v.id = $1
		RETURNING ` + visitColumns

	updated, err := scanVisit(tx.QueryRow(ctx, query, id, consultantID, string(visit.StatusAssigned)))
	if err != nil {
		return nil, fmt.Errorf("failed to assign visit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}
	return updated, nil
}

// UpdateVisitStatus is a compare-and-set on status: it only applies when the
// stored status still equals from.
func (r *VisitRepository) UpdateVisitStatus(ctx context.Context, id string, from, to visit.Status) (*visit.Visit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockVisit(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, fmt.Errorf("visit %s is %s, not %s: %w", id, current.Status, from, xerrors.ErrInvalidTransition)
	}

	query := `
		UPDATE visits AS v
		SET status = $2
		WHERE v.id = $1
		RETURNING ` + visitColumns

	updated, err := scanVisit(tx.QueryRow(ctx, query, id, string(to)))
	if err != nil {
		return nil, fmt.Errorf("failed to update visit status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return updated, nil
}

func (r *VisitRepository) SaveScore(ctx context.Context, id string, payload json.RawMessage) (*visit.Visit, error) {
	query := `
		UPDATE visits AS v
		SET score = $2
		WHERE v.id = $1
		RETURNING ` + visitColumns

	v, err := scanVisit(r.db.QueryRow(ctx, query, id, []byte(payload)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}
	return v, nil
}

func lockVisit(ctx context.Context, tx pgx.Tx, id string) (*visit.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits v WHERE v.id = $1 FOR UPDATE`

	v, err := scanVisit(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock visit: %w", err)
	}
	return v, nil
}
