// Package memoryindex implements long-term semantic memory: a conversation
// turn is distilled into question/answer facts by a generative call, embedded,
// and stored per user; retrieval embeds the query, filters candidates by a
// cosine-distance threshold, and renders the survivors newest first.
package memoryindex

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/tanutb/AnanBot/internal/llm"
	"github.com/tanutb/AnanBot/internal/storage"
	"github.com/tanutb/AnanBot/pkg/types"
)

// minExtractInputLen is the shortest user message worth the extraction call.
const minExtractInputLen = 3

// noMemorySentinel is the literal the extraction model emits when the turn
// contains nothing worth remembering.
const noMemorySentinel = "NO_MEMORY"

const (
	pairMarker   = "{qa}"
	answerMarker = "{answer}"
)

// extractionPrompt asks the model to distill a turn into marker-delimited
// question/answer pairs, or the sentinel when there is nothing to keep.
const extractionPrompt = `
Given only the information above, what are the most salient high level questions we can answer about the subjects in the conversation? Separate each question and answer pair with "{qa}", "{answer}" respectively.
For example, DO NOT COPY THESE EXAMPLES
- "{qa}What is the meaning of life? {answer}The meaning of life is 42"
- "{qa}What's the capital of Thailand? {answer}Bangkok"
Only output the question and answer pairs, no explanations. If there is nothing worth remembering, output exactly NO_MEMORY.`

// Config holds the index tunables.
type Config struct {
	BotName     string  // attribution name in rendered context
	RecallCount int     // candidates fetched per query
	Threshold   float64 // cosine-distance acceptance threshold, strict
	MaxTokens   int     // budget for the extraction call
}

// Index ties the fact store to the embedding and extraction capabilities.
type Index struct {
	cfg      Config
	facts    storage.FactStore
	embedder llm.EmbeddingGenerator
}

// New builds an Index over the given store and embedder.
func New(cfg Config, facts storage.FactStore, embedder llm.EmbeddingGenerator) *Index {
	if cfg.BotName == "" {
		cfg.BotName = "Anan"
	}
	if cfg.RecallCount <= 0 {
		cfg.RecallCount = 5
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	return &Index{cfg: cfg, facts: facts, embedder: embedder}
}

// Retrieve returns a formatted memory snippet for the query, or "" when
// nothing relevant is stored. Failures degrade to an empty snippet; recall
// is never worth failing the request over.
func (ix *Index) Retrieve(ctx context.Context, query, userID string) string {
	vec, err := ix.embed(ctx, query)
	if err != nil {
		log.Printf("memory: query embedding failed: %v", err)
		return ""
	}

	hits, err := ix.facts.Search(ctx, userID, vec, ix.cfg.RecallCount)
	if err != nil {
		log.Printf("memory: search failed for %s: %v", userID, err)
		return ""
	}

	var accepted []types.Fact
	for _, h := range hits {
		if h.Distance < ix.cfg.Threshold {
			accepted = append(accepted, h.Fact)
		}
	}
	if len(accepted) == 0 {
		return ""
	}

	// Similarity found the candidates; recency decides the order, so fresher
	// facts outrank stale ones the model scored equally relevant.
	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].Timestamp.After(accepted[j].Timestamp)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s remembers about you (recent first):\n", ix.cfg.BotName)
	for _, f := range accepted {
		fmt.Fprintf(&b, "- [%s] %s\n", f.Timestamp.Format("2006-01-02"), f.Text)
	}
	b.WriteString("\n")
	return b.String()
}

// ExtractAndStore distills the turn into facts and persists any new ones.
// It is best-effort: every failure is logged and swallowed.
func (ix *Index) ExtractAndStore(ctx context.Context, gen llm.TextGenerator, userID, userText, reply string) {
	if len(strings.TrimSpace(userText)) < minExtractInputLen {
		return
	}

	prompt := fmt.Sprintf("Participating User ID: %s\nUSER: %s\n%s: %s\n%s",
		userID, userText, ix.cfg.BotName, reply, extractionPrompt)

	extracted, err := gen.Complete(ctx, prompt, ix.cfg.MaxTokens)
	if err != nil {
		log.Printf("memory: extraction failed for %s: %v", userID, err)
		return
	}
	if extracted == "" || strings.Contains(extracted, noMemorySentinel) {
		return
	}

	stored := 0
	for _, text := range ParsePairs(extracted) {
		id := factID(text, userID)

		exists, err := ix.facts.Has(ctx, id)
		if err != nil {
			log.Printf("memory: existence check failed for %s: %v", id, err)
			continue
		}
		if exists {
			continue
		}

		vec, err := ix.embed(ctx, text)
		if err != nil {
			log.Printf("memory: fact embedding failed: %v", err)
			continue
		}
		fact := types.Fact{
			ID:        id,
			UserID:    userID,
			Text:      text,
			Embedding: vec,
			Timestamp: time.Now().UTC(),
		}
		if err := ix.facts.Insert(ctx, fact); err != nil {
			log.Printf("memory: insert failed for %s: %v", id, err)
			continue
		}
		stored++
	}
	if stored > 0 {
		log.Printf("memory: stored %d new facts for %s", stored, userID)
	}
}

// ParsePairs splits marker-delimited extraction output into "Q: ... A: ..."
// fact strings. Malformed segments are dropped, never fatal.
func ParsePairs(text string) []string {
	var out []string
	for _, part := range strings.Split(text, pairMarker) {
		q, a, ok := strings.Cut(part, answerMarker)
		if !ok {
			continue
		}
		q = strings.TrimSpace(q)
		a = strings.TrimSpace(a)
		if q == "" || a == "" {
			continue
		}
		out = append(out, fmt.Sprintf("Q: %s A: %s", q, a))
	}
	return out
}

// factID derives a deterministic id from the fact text and owning user, so
// re-extracting the same turn dedups on insert.
func factID(text, userID string) string {
	sum := md5.Sum([]byte(text + userID))
	return hex.EncodeToString(sum[:])
}

// embed runs the embedder and widens its output for storage.
func (ix *Index) embed(ctx context.Context, text string) ([]float64, error) {
	f32, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(f32) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	out := make([]float64, len(f32))
	for i, v := range f32 {
		out[i] = float64(v)
	}
	return out, nil
}
