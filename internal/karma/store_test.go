package karma

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "karma.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	return s, path
}

func TestGetUnseenUserDefaults(t *testing.T) {
	s, _ := newTestStore(t)

	rec := s.Get("nobody")
	assert.Equal(t, 0, rec.Score)
	assert.Empty(t, rec.Summary)
	assert.Empty(t, rec.DisplayName)
}

func TestAdjustAndSet(t *testing.T) {
	s, _ := newTestStore(t)

	score, err := s.Adjust("u1", 1, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, score)

	score, err = s.Adjust("u1", -3, "")
	require.NoError(t, err)
	assert.Equal(t, -2, score)

	rec := s.Get("u1")
	assert.Equal(t, "Alice", rec.DisplayName)

	score, err = s.Set("u1", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, score)

	rec = s.Get("u1")
	assert.Equal(t, 42, rec.Score)
	assert.Equal(t, "Alice", rec.DisplayName, "set must preserve display name")
}

func TestPersistenceAcrossReopen(t *testing.T) {
	s, path := newTestStore(t)

	_, err := s.Adjust("u1", 7, "Bob")
	require.NoError(t, err)

	reopened, err := NewStore(path)
	require.NoError(t, err)
	rec := reopened.Get("u1")
	assert.Equal(t, 7, rec.Score)
	assert.Equal(t, "Bob", rec.DisplayName)
}

func TestConcurrentAdjustsDoNotLoseUpdates(t *testing.T) {
	s, _ := newTestStore(t)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.Adjust("u1", 1, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Get("u1").Score)
}

func TestRefreshSummarySkipsTrivialInput(t *testing.T) {
	s, _ := newTestStore(t)

	called := false
	s.RefreshSummary(context.Background(), "u1", "hi", "hello", func(ctx context.Context, cur, userText, reply string) (string, error) {
		called = true
		return "should not be stored", nil
	})
	assert.False(t, called, "summarizer must not run for trivial input")
	assert.Empty(t, s.Get("u1").Summary)
}

func TestRefreshSummaryStoresMaterialChange(t *testing.T) {
	s, _ := newTestStore(t)

	s.RefreshSummary(context.Background(), "u1", "I love hiking in the mountains", "Nice!", func(ctx context.Context, cur, userText, reply string) (string, error) {
		assert.Empty(t, cur)
		return "Enjoys hiking in the mountains.", nil
	})
	assert.Equal(t, "Enjoys hiking in the mountains.", s.Get("u1").Summary)
	assert.NotZero(t, s.Get("u1").LastInteraction, "a summary write counts as an interaction")

	// An identical regeneration leaves the summary in place.
	s.RefreshSummary(context.Background(), "u1", "still about hiking", "ok", func(ctx context.Context, cur, userText, reply string) (string, error) {
		assert.Equal(t, "Enjoys hiking in the mountains.", cur)
		return "Enjoys hiking in the mountains.", nil
	})
	assert.Equal(t, "Enjoys hiking in the mountains.", s.Get("u1").Summary)
}

func TestRefreshSummaryIgnoresShortOrFailedGeneration(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Adjust("u1", 0, "Cara")
	require.NoError(t, err)

	s.RefreshSummary(context.Background(), "u1", "a perfectly fine message", "reply", func(ctx context.Context, cur, userText, reply string) (string, error) {
		return "", errors.New("backend down")
	})
	assert.Empty(t, s.Get("u1").Summary)

	s.RefreshSummary(context.Background(), "u1", "a perfectly fine message", "reply", func(ctx context.Context, cur, userText, reply string) (string, error) {
		return "meh", nil
	})
	assert.Empty(t, s.Get("u1").Summary, "too-short summaries are discarded")
}
