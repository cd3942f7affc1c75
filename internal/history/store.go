// Package history keeps per-context conversation rings: a bounded message
// list, a small ring of recently seen image paths, and a display-name cache.
// The whole store snapshots to a single JSON document.
package history

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/tanutb/AnanBot/internal/kvstore"
	"github.com/tanutb/AnanBot/pkg/types"
)

// contextState is the persisted per-context document entry.
type contextState struct {
	Username   string          `json:"username"`
	Messages   []types.Message `json:"messages"`
	LastImages []string        `json:"last_images"`
}

// Store manages conversation state for every context. A single lock covers
// the whole store; the read-modify-write-persist cycle for a context never
// interleaves with another writer.
type Store struct {
	mu       sync.Mutex
	kv       *kvstore.Store
	maxLen   int
	imageLen int
	contexts map[string]*contextState
}

// NewStore loads the history document from path. Messages beyond maxLen and
// image paths beyond imageLen are evicted oldest-first on append.
func NewStore(path string, maxLen, imageLen int) (*Store, error) {
	s := &Store{
		kv:       kvstore.New(path),
		maxLen:   maxLen,
		imageLen: imageLen,
		contexts: make(map[string]*contextState),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the snapshot, upgrading legacy per-context shapes: a bare
// message list (pre display-name cache) and an entry whose image field is a
// single string rather than a ring.
func (s *Store) load() error {
	var raw map[string]json.RawMessage
	if err := s.kv.Load(&raw); err != nil {
		return fmt.Errorf("history: failed to load store: %w", err)
	}

	for contextID, entry := range raw {
		state, err := decodeContext(entry)
		if err != nil {
			// One rotten entry should not take the whole store down.
			log.Printf("history: skipping malformed entry for context %s: %v", contextID, err)
			continue
		}
		s.trim(state)
		s.contexts[contextID] = state
	}
	return nil
}

func decodeContext(raw json.RawMessage) (*contextState, error) {
	// Oldest shape: a bare list of messages, username unknown.
	var bare []types.Message
	if err := json.Unmarshal(raw, &bare); err == nil {
		return &contextState{Username: "Unknown", Messages: bare}, nil
	}

	var modern struct {
		Username   string          `json:"username"`
		Messages   []types.Message `json:"messages"`
		LastImages json.RawMessage `json:"last_images"`
		LastImage  json.RawMessage `json:"last_image"`
	}
	if err := json.Unmarshal(raw, &modern); err != nil {
		return nil, err
	}

	state := &contextState{Username: modern.Username, Messages: modern.Messages}
	if state.Username == "" {
		state.Username = "Unknown"
	}

	// The ring may sit under either key, and either key may hold a list or
	// a single path depending on which writer produced the document.
	ring := modern.LastImages
	if len(ring) == 0 {
		ring = modern.LastImage
	}
	if len(ring) > 0 {
		paths, err := decodeImageRing(ring)
		if err != nil {
			return nil, err
		}
		state.LastImages = paths
	}
	return state, nil
}

func decodeImageRing(raw json.RawMessage) ([]string, error) {
	var paths []string
	if err := json.Unmarshal(raw, &paths); err == nil {
		return paths, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	if single == "" {
		return nil, nil
	}
	return []string{single}, nil
}

// Messages returns a copy of the context's message list, oldest first. A
// first access creates an empty context.
func (s *Store) Messages(contextID string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.context(contextID)
	out := make([]types.Message, len(state.Messages))
	copy(out, state.Messages)
	return out
}

// Window returns up to n of the context's most recent messages, oldest first.
func (s *Store) Window(contextID string, n int) []types.Message {
	msgs := s.Messages(contextID)
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// Append pushes a message onto the context's ring, evicting the oldest entry
// once capacity is exceeded.
func (s *Store) Append(contextID string, msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.context(contextID)
	state.Messages = append(state.Messages, msg)
	s.trim(state)
}

// RecordRecentImage pushes an image path onto the context's image ring.
func (s *Store) RecordRecentImage(contextID, path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.context(contextID)
	state.LastImages = append(state.LastImages, path)
	s.trim(state)
}

// RecentImages returns the context's image ring, most recent last.
func (s *Store) RecentImages(contextID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.context(contextID)
	out := make([]string, len(state.LastImages))
	copy(out, state.LastImages)
	return out
}

// SetDisplayName refreshes the cached display name for a context.
func (s *Store) SetDisplayName(contextID, name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context(contextID).Username = name
}

// DisplayName returns the cached display name, "Unknown" when never set.
func (s *Store) DisplayName(contextID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context(contextID).Username
}

// Persist writes the whole store snapshot to durable storage.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Save(s.contexts); err != nil {
		return fmt.Errorf("history: failed to persist store: %w", err)
	}
	return nil
}

// ContextIDs lists the known context ids.
func (s *Store) ContextIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}

// context returns the live state for contextID, creating it if absent.
// Caller must hold the lock.
func (s *Store) context(contextID string) *contextState {
	state, ok := s.contexts[contextID]
	if !ok {
		state = &contextState{Username: "Unknown"}
		s.contexts[contextID] = state
	}
	return state
}

// trim enforces ring capacities. Caller must hold the lock.
func (s *Store) trim(state *contextState) {
	if s.maxLen > 0 && len(state.Messages) > s.maxLen {
		state.Messages = state.Messages[len(state.Messages)-s.maxLen:]
	}
	if s.imageLen > 0 && len(state.LastImages) > s.imageLen {
		state.LastImages = state.LastImages[len(state.LastImages)-s.imageLen:]
	}
}
