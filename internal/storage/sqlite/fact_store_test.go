package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanutb/AnanBot/pkg/types"
)

func newTestStore(t *testing.T) *FactStore {
	t.Helper()
	s, err := NewFactStore(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fact(id, userID, text string, embedding []float64) types.Fact {
	return types.Fact{
		ID:        id,
		UserID:    userID,
		Text:      text,
		Embedding: embedding,
		Timestamp: time.Now().UTC(),
	}
}

func TestInsertAndHas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Has(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Insert(ctx, fact("f1", "u1", "likes go", []float64{1, 0})))

	ok, err = s.Has(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertDuplicateIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, fact("f1", "u1", "first", []float64{1, 0})))
	require.NoError(t, s.Insert(ctx, fact("f1", "u1", "first", []float64{1, 0})))

	n, err := s.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Insert(ctx, fact("", "u1", "x", []float64{1})))
	assert.Error(t, s.Insert(ctx, fact("f1", "", "x", []float64{1})))
	assert.Error(t, s.Insert(ctx, fact("f1", "u1", "x", nil)))
}

func TestSearchRanksByDistanceAndScopesToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, fact("near", "u1", "close match", []float64{1, 0.1})))
	require.NoError(t, s.Insert(ctx, fact("far", "u1", "weak match", []float64{0, 1})))
	require.NoError(t, s.Insert(ctx, fact("other", "u2", "someone else", []float64{1, 0})))

	hits, err := s.Search(ctx, "u1", []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Fact.ID)
	assert.Equal(t, "far", hits[1].Fact.ID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestSearchLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, fact(id, "u1", id, []float64{1, 0})))
	}

	hits, err := s.Search(ctx, "u1", []float64{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, fact("f1", "u1", "x", []float64{1, 0})))

	hits, err := s.Search(ctx, "u1", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.db")
	s, err := NewFactStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, fact("f1", "u1", "durable", []float64{1, 0})))
	require.NoError(t, s.Close())

	reopened, err := NewFactStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	ok, err := reopened.Has(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	embedding := []float64{0.25, -1.5, 3.14159, 0}
	blob := serializeEmbedding(embedding)
	got, err := deserializeEmbedding(blob, len(embedding))
	require.NoError(t, err)
	assert.Equal(t, embedding, got)

	_, err = deserializeEmbedding(blob, 3)
	assert.Error(t, err)
}
