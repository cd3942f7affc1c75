package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/tanutb/AnanBot/internal/karma"
	"github.com/tanutb/AnanBot/pkg/types"
)

// ChatCore is the orchestration entry point the handlers call into;
// *agent.Assembler is the production implementation.
type ChatCore interface {
	HandleMessage(ctx context.Context, req types.ChatRequest) (types.ChatResponse, types.TurnTask)
}

// TaskScheduler accepts deferred-turn descriptors; *agent.Worker is the
// production implementation.
type TaskScheduler interface {
	Enqueue(task types.TurnTask)
}

// APIHandlers serves the chat and administration endpoints.
type APIHandlers struct {
	core  ChatCore
	tasks TaskScheduler
	karma *karma.Store
	hub   *WebSocketHub
	debug atomic.Bool
}

// NewAPIHandlers wires the handler set. hub may be nil when no websocket
// feed is running.
func NewAPIHandlers(core ChatCore, tasks TaskScheduler, karmaStore *karma.Store, hub *WebSocketHub) *APIHandlers {
	return &APIHandlers{core: core, tasks: tasks, karma: karmaStore, hub: hub}
}

// chatPayload is the wire shape of a chat request. Images arrive as
// standard base64 strings, order preserved.
type chatPayload struct {
	Text        string   `json:"text"`
	Images      []string `json:"images,omitempty"`
	UserID      string   `json:"user_id"`
	ContextID   string   `json:"context_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	IsMentioned bool     `json:"is_mentioned,omitempty"`
}

// HandleChat processes POST /api/chat: one full conversational turn.
func (h *APIHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	req := types.ChatRequest{
		Text:        payload.Text,
		UserID:      payload.UserID,
		ContextID:   payload.ContextID,
		DisplayName: payload.DisplayName,
		IsMentioned: payload.IsMentioned,
	}
	for _, encoded := range payload.Images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid base64 image")
			return
		}
		req.Images = append(req.Images, data)
	}

	if h.debug.Load() {
		log.Printf("api: chat from %s (context %s, %d images): %q",
			req.UserID, req.ContextID, len(req.Images), req.Text)
	}

	resp, task := h.core.HandleMessage(r.Context(), req)
	h.tasks.Enqueue(task)

	if h.hub != nil {
		eventType := "turn"
		if resp.ImageB64 != "" {
			eventType = "image"
		}
		h.hub.Broadcast(TurnEvent{
			Type:      eventType,
			UserID:    task.UserID,
			ContextID: task.ContextID,
			Text:      task.Text,
			Reply:     task.Reply,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUser serves GET /api/users/{id}: the full user record.
func (h *APIHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	writeJSON(w, http.StatusOK, h.karma.Get(userID))
}

// ListUsers serves GET /api/users: every known user record.
func (h *APIHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.karma.All())
}

// SetUserScore serves PUT /api/users/{id}/score: direct score overwrite.
func (h *APIHandlers) SetUserScore(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	var body struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	score, err := h.karma.Set(userID, body.Score)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist score")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"score": score})
}

// ToggleDebug serves POST /api/debug: flips or sets the verbosity flag.
func (h *APIHandlers) ToggleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Debug *bool `json:"debug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !strings.Contains(err.Error(), "EOF") {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var next bool
	if body.Debug != nil {
		next = *body.Debug
	} else {
		next = !h.debug.Load()
	}
	h.debug.Store(next)
	writeJSON(w, http.StatusOK, map[string]bool{"debug": next})
}

// Debug reports the current verbosity flag.
func (h *APIHandlers) Debug() bool {
	return h.debug.Load()
}

// SetDebug sets the verbosity flag, used to seed it from configuration.
func (h *APIHandlers) SetDebug(on bool) {
	h.debug.Store(on)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
