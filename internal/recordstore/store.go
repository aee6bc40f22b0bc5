// Package recordstore persists memory records, one JSON document per file,
// and answers point lookups and filtered, recency-ordered listings.
package recordstore

import (
	"context"
	"sort"

	"github.com/starford/lettamem/internal/models"
)

// Store is implemented by every record store backend.
type Store interface {
	// Create assigns an id and timestamp, persists the record and returns the id.
	Create(ctx context.Context, nr models.NewRecord) (string, error)
	// Get returns the record with the given id or apperr.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Record, error)
	// List returns records matching f, most recent first.
	List(ctx context.Context, f Filter) ([]models.Record, error)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*Indexed)(nil)
)

// sortByRecency orders records by timestamp descending. Ties keep scan order.
func sortByRecency(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
