// Package types defines the shared data model for the AnanBot core:
// chat requests and responses, conversation messages, user records, and
// long-term memory facts. These types cross package boundaries and define
// the persisted JSON layouts, so changes here are compatibility-sensitive.
package types

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind discriminates the content variants of a message part.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one element of a message's heterogeneous content list.
// Image parts carry a vault path handle, never inline binary — binary is
// resolved lazily when the message window is rebuilt for a model call.
type Part struct {
	Kind      PartKind `json:"kind"`
	Text      string   `json:"text,omitempty"`
	ImagePath string   `json:"image_path,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart builds an image-reference part.
func ImagePart(path string) Part {
	return Part{Kind: PartImage, ImagePath: path}
}

// Message is a single conversation entry. Messages are append-only: once
// recorded in a context's history they are never edited.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ImagePaths returns the vault paths referenced by the message's image parts.
func (m Message) ImagePaths() []string {
	var paths []string
	for _, p := range m.Parts {
		if p.Kind == PartImage && p.ImagePath != "" {
			paths = append(paths, p.ImagePath)
		}
	}
	return paths
}

// UnmarshalJSON accepts both the modern part-list shape and the legacy shape
// where content was a bare string. The union exists only at this boundary;
// in memory a message always has a normalized part list.
func (m *Message) UnmarshalJSON(data []byte) error {
	type modern struct {
		Role    Role            `json:"role"`
		Parts   []Part          `json:"parts"`
		Content json.RawMessage `json:"content"`
	}
	var raw modern
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Parts = raw.Parts
	if len(m.Parts) == 0 && len(raw.Content) > 0 {
		var text string
		if err := json.Unmarshal(raw.Content, &text); err == nil {
			m.Parts = []Part{TextPart(text)}
		}
	}
	return nil
}

// ChatRequest is the core-facing request contract. The surrounding adapter
// layer (Discord bot, HTTP API, CLI) supplies already-decoded inputs.
type ChatRequest struct {
	Text        string   `json:"text"`
	Images      [][]byte `json:"-"`
	UserID      string   `json:"user_id"`
	ContextID   string   `json:"context_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	IsMentioned bool     `json:"is_mentioned,omitempty"`
}

// ChatResponse is what the adapter layer renders back to the user.
// ImageB64 is set when a reply action produced an image.
type ChatResponse struct {
	Text     string `json:"response"`
	ImageB64 string `json:"img,omitempty"`
}

// TurnTask describes the deferred work for a completed turn: long-term
// memory extraction and persona-summary refresh. It is processed by the
// agent's background workers, never inline, because each costs an extra
// model call and must not add latency to the user-visible reply.
type TurnTask struct {
	UserID             string   `json:"user_id"`
	ContextID          string   `json:"context_id"`
	Text               string   `json:"text"`
	Reply              string   `json:"reply"`
	UploadedImagePaths []string `json:"uploaded_image_paths,omitempty"`
}

// UserRecord is a user's social state as stored by the karma store.
type UserRecord struct {
	Score           int     `json:"score"`
	Summary         string  `json:"summary,omitempty"`
	DisplayName     string  `json:"username,omitempty"`
	LastInteraction float64 `json:"last_interaction,omitempty"`
}

// Fact is one long-term semantic memory unit. The ID is derived from the
// fact text plus the owning user, so re-extracting the same turn yields the
// same ID and insertion is naturally idempotent. Facts are never cross-user.
type Fact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}
