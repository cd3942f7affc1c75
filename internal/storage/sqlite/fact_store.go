// Package sqlite implements the fact store on an embedded SQLite database.
// Embeddings are stored as little-endian float64 BLOBs and ranked by cosine
// distance in Go; for datasets beyond a few thousand facts per user the
// postgres backend with pgvector is the better fit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tanutb/AnanBot/internal/storage"
	"github.com/tanutb/AnanBot/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	content    TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at);
`

// searchMaxCandidates caps how many embeddings one search loads into memory.
// Candidates are selected newest first, so recent facts are always ranked.
const searchMaxCandidates = 10_000

// FactStore implements storage.FactStore backed by SQLite.
type FactStore struct {
	db *sql.DB
}

var _ storage.FactStore = (*FactStore)(nil)

// NewFactStore opens (or creates) the database at path and applies the schema.
func NewFactStore(path string) (*FactStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}
	return &FactStore{db: db}, nil
}

// Has reports whether a fact id exists.
func (s *FactStore) Has(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: fact id is required", storage.ErrInvalidInput)
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM facts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check fact %s: %w", id, err)
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

	blob := serializeEmbedding(fact.Embedding)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, user_id, content, embedding, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		fact.ID, fact.UserID, fact.Text, blob, len(fact.Embedding), fact.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert fact %s: %w", fact.ID, err)
	}
	return nil
}

// Search ranks the user's facts by cosine distance to the query vector.
func (s *FactStore) Search(ctx context.Context, userID string, query []float64, limit int) ([]storage.Hit, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, embedding, dimension, created_at
		FROM facts
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, searchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.Hit
	for rows.Next() {
		var fact types.Fact
		var blob []byte
		var dim int
		if err := rows.Scan(&fact.ID, &fact.UserID, &fact.Text, &blob, &dim, &fact.Timestamp); err != nil {
			continue
		}
		embedding, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		fact.Embedding = embedding
		hits = append(hits, storage.Hit{Fact: fact, Distance: 1 - cosineSimilarity(query, embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating embeddings: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
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
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE user_id = ?`, userID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count facts: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *FactStore) Close() error {
	return s.db.Close()
}

// serializeEmbedding converts a float64 slice to little-endian bytes.
func serializeEmbedding(embedding []float64) []byte {
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding converts little-endian bytes back to a float64 slice,
// validating the buffer against the stored dimension.
func deserializeEmbedding(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}
	embedding := make([]float64, dimension)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return embedding, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
