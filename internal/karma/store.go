// Package karma tracks per-user reputation scores and rolling persona
// summaries. Records persist as a single JSON document keyed by user id.
package karma

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tanutb/AnanBot/internal/kvstore"
	"github.com/tanutb/AnanBot/pkg/types"
)

// minSummaryInputLen is the shortest user message worth summarizing.
const minSummaryInputLen = 5

// SummarizeFunc produces an updated persona summary from the current summary
// and the latest exchange.
type SummarizeFunc func(ctx context.Context, currentSummary, userText, reply string) (string, error)

// Store manages user records. All operations take the store lock, so
// concurrent adjustments on the same user never lose updates.
type Store struct {
	mu    sync.Mutex
	kv    *kvstore.Store
	users map[string]*types.UserRecord
}

// NewStore loads the karma document from path, starting empty if the file
// does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{
		kv:    kvstore.New(path),
		users: make(map[string]*types.UserRecord),
	}
	if err := s.kv.Load(&s.users); err != nil {
		return nil, fmt.Errorf("karma: failed to load store: %w", err)
	}
	return s, nil
}

// Get returns the record for userID, or a zero-valued record if unseen.
// The returned record is a copy.
func (s *Store) Get(userID string) types.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.users[userID]; ok {
		return *rec
	}
	return types.UserRecord{}
}

// Adjust adds delta to the user's score and returns the new score. A
// non-empty displayName also refreshes the cached name.
func (s *Store) Adjust(userID string, delta int, displayName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(userID)
	rec.Score += delta
	if displayName != "" {
		rec.DisplayName = displayName
	}
	rec.LastInteraction = float64(time.Now().UnixMilli()) / 1000.0

	if err := s.persistLocked(); err != nil {
		return rec.Score, err
	}
	return rec.Score, nil
}

// Set overwrites the user's score, preserving summary and display name.
func (s *Store) Set(userID string, score int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(userID)
	rec.Score = score

	if err := s.persistLocked(); err != nil {
		return rec.Score, err
	}
	return rec.Score, nil
}

// SetDisplayName updates the cached display name without touching the score.
func (s *Store) SetDisplayName(userID, displayName string) {
	if displayName == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(userID)
	if rec.DisplayName == displayName {
		return
	}
	rec.DisplayName = displayName
	if err := s.persistLocked(); err != nil {
		log.Printf("karma: failed to persist display name for %s: %v", userID, err)
	}
}

// RefreshSummary regenerates the user's persona summary from the latest
// exchange. Trivial turns are skipped, and a failed or unchanged generation
// leaves the stored summary as-is. Errors are logged, never fatal.
func (s *Store) RefreshSummary(ctx context.Context, userID, userText, reply string, summarize SummarizeFunc) {
	if len(strings.TrimSpace(userText)) < minSummaryInputLen {
		return
	}

	current := s.Get(userID).Summary

	newSummary, err := summarize(ctx, current, userText, reply)
	if err != nil {
		log.Printf("karma: summary refresh failed for %s: %v", userID, err)
		return
	}
	newSummary = strings.TrimSpace(newSummary)
	if len(newSummary) <= minSummaryInputLen || newSummary == current {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(userID)
	rec.Summary = newSummary
	rec.LastInteraction = float64(time.Now().UnixMilli()) / 1000.0
	if err := s.persistLocked(); err != nil {
		log.Printf("karma: failed to persist summary for %s: %v", userID, err)
	}
}

// All returns a snapshot of every user record, keyed by user id.
func (s *Store) All() map[string]types.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.UserRecord, len(s.users))
	for id, rec := range s.users {
		out[id] = *rec
	}
	return out
}

// record returns the live record for userID, creating it if absent.
// Caller must hold the lock.
func (s *Store) record(userID string) *types.UserRecord {
	rec, ok := s.users[userID]
	if !ok {
		rec = &types.UserRecord{}
		s.users[userID] = rec
	}
	return rec
}

// persistLocked writes the full document. Caller must hold the lock.
func (s *Store) persistLocked() error {
	if err := s.kv.Save(s.users); err != nil {
		return fmt.Errorf("karma: failed to persist store: %w", err)
	}
	return nil
}
