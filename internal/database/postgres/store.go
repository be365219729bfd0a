package postgres

import (
	"github.com/kozaktomas/face-registry/internal/database"
)

// Store combines the record and edge repositories into the full
// database.Store contract consumed by the matching engine.
type Store struct {
	*RecordRepository
	*EdgeRepository
}

var _ database.Store = (*Store)(nil)

// NewStore creates a Store over the connection pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		RecordRepository: NewRecordRepository(pool),
		EdgeRepository:   NewEdgeRepository(pool),
	}
}
