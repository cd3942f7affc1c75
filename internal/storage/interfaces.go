// Package storage defines the persistence contract for long-term memory
// facts. Backends live in subpackages (sqlite, postgres) and are selected
// by configuration.
package storage

import (
	"context"
	"errors"

	"github.com/tanutb/AnanBot/pkg/types"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a requested fact does not exist.
	ErrNotFound = errors.New("fact not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Hit is one vector-search result: the stored fact plus its cosine distance
// from the query vector (0 = identical, 2 = opposite).
type Hit struct {
	Fact     types.Fact
	Distance float64
}

// FactStore persists memory facts with their embeddings and supports
// per-user nearest-neighbor search.
type FactStore interface {
	// Has reports whether a fact with the given id exists.
	Has(ctx context.Context, id string) (bool, error)

	// Insert stores a fact. Inserting an id that already exists is a no-op;
	// fact ids are content-derived, so a duplicate insert carries the same
	// payload by construction.
	Insert(ctx context.Context, fact types.Fact) error

	// Search returns up to limit facts belonging to userID, nearest to the
	// query vector first.
	Search(ctx context.Context, userID string, query []float64, limit int) ([]Hit, error)

	// Count returns the number of stored facts, optionally restricted to a
	// user (empty userID counts everything).
	Count(ctx context.Context, userID string) (int, error)

	// Close releases the backend's resources.
	Close() error
}
