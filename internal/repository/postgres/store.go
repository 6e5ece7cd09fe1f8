// internal/repository/postgres/store.go
package postgres

import (
	"time"

	"go.uber.org/zap"
)

// Store is the Postgres implementation of store.BackingStore.
type Store struct {
	*DB
	*CustomerRepository
	*VisitRepository
	*ConsultantRepository
	*ChangeFeed
}

// NewStore composes the repositories. timeout bounds the change feed's reads.
func NewStore(db *DB, dsn string, timeout time.Duration, logger *zap.Logger) *Store {
	visits := NewVisitRepository(db.Pool())
	return &Store{
		DB:                   db,
		CustomerRepository:   NewCustomerRepository(db.Pool()),
		VisitRepository:      visits,
		ConsultantRepository: NewConsultantRepository(db.Pool()),
		ChangeFeed:           NewChangeFeed(dsn, visits, timeout, logger),
	}
}
