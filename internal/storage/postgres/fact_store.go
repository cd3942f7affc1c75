// Package postgres implements the fact store on PostgreSQL with the pgvector
// extension. Nearest-neighbor search runs in the database via the cosine
// distance operator, so it scales past the sqlite backend's in-process scan.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/tanutb/AnanBot/internal/storage"
	"github.com/tanutb/AnanBot/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	content    TEXT NOT NULL,
	embedding  vector NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
`

// FactStore implements storage.FactStore backed by PostgreSQL + pgvector.
type FactStore struct {
	db *sql.DB
}

var _ storage.FactStore = (*FactStore)(nil)

// NewFactStore connects with the given DSN and applies the schema. The
// pgvector extension is required; connecting to a server without it fails.
func NewFactStore(dsn string) (*FactStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: pgvector extension is required: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return &FactStore{db: db}, nil
}

// Has reports whether a fact id exists.
func (s *FactStore) Has(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: fact id is required", storage.ErrInvalidInput)
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM facts WHERE id = $1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check fact %s: %w", id, err)
	}
	return true, nil
}

// Insert stores a fact. Duplicate ids are ignored.
func (s *FactStore) Insert(ctx context.Context, fact types.Fact) error {
	if fact.ID == "" || fact.UserID == "" {
		return fmt.Errorf("%w: fact id and user id are required", storage.ErrInvalidInput)
	}
	if len(fact.Embedding) == 0 {
		return fmt.Errorf("%w: embedding cannot be empty", storage.ErrInvalidInput)
	}
	if fact.Timestamp.IsZero() {
		fact.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, user_id, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		fact.ID, fact.UserID, fact.Text, toVector(fact.Embedding), fact.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert fact %s: %w", fact.ID, err)
	}
	return nil
}

// Search returns the user's facts nearest to the query vector, using
// pgvector's cosine distance operator.
func (s *FactStore) Search(ctx context.Context, userID string, query []float64, limit int) ([]storage.Hit, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, created_at, embedding <=> $1 AS distance
		FROM facts
		WHERE user_id = $2
		ORDER BY distance
		LIMIT $3`, toVector(query), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.Hit
	for rows.Next() {
		var hit storage.Hit
		if err := rows.Scan(&hit.Fact.ID, &hit.Fact.UserID, &hit.Fact.Text, &hit.Fact.Timestamp, &hit.Distance); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan search row: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: error iterating search rows: %w", err)
	}
	return hits, nil
}

// Count returns the number of facts, optionally restricted to one user.
func (s *FactStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	var err error
	if userID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE user_id = $1`, userID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count facts: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *FactStore) Close() error {
	return s.db.Close()
}

// toVector converts a float64 embedding to pgvector's float32 wire type.
func toVector(embedding []float64) pgvector.Vector {
	f32 := make([]float32, len(embedding))
	for i, v := range embedding {
		f32[i] = float32(v)
	}
	return pgvector.NewVector(f32)
}
