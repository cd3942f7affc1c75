package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tanutb/AnanBot/internal/karma"
	"github.com/tanutb/AnanBot/pkg/types"
)

// MockChatCore is a mock implementation of ChatCore for testing.
type MockChatCore struct {
	mock.Mock
}

func (m *MockChatCore) HandleMessage(ctx context.Context, req types.ChatRequest) (types.ChatResponse, types.TurnTask) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.ChatResponse), args.Get(1).(types.TurnTask)
}

// MockScheduler is a mock implementation of TaskScheduler for testing.
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Enqueue(task types.TurnTask) {
	m.Called(task)
}

func newTestKarmaStore(t *testing.T) *karma.Store {
	t.Helper()
	store, err := karma.NewStore(filepath.Join(t.TempDir(), "karma.json"))
	require.NoError(t, err)
	return store
}

func TestHandleChat_Success(t *testing.T) {
	core := new(MockChatCore)
	sched := new(MockScheduler)
	h := NewAPIHandlers(core, sched, newTestKarmaStore(t), nil)

	task := types.TurnTask{UserID: "u1", ContextID: "c1", Text: "hello", Reply: "hi there"}
	core.On("HandleMessage", mock.Anything, mock.MatchedBy(func(req types.ChatRequest) bool {
		return req.UserID == "u1" && req.Text == "hello" && req.DisplayName == "Alice"
	})).Return(types.ChatResponse{Text: "hi there"}, task)
	sched.On("Enqueue", task).Return()

	body, _ := json.Marshal(map[string]interface{}{
		"text":         "hello",
		"user_id":      "u1",
		"context_id":   "c1",
		"display_name": "Alice",
	})
	req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hi there", resp.Text)
	core.AssertExpectations(t)
	sched.AssertExpectations(t)
}

func TestHandleChat_DecodesImages(t *testing.T) {
	core := new(MockChatCore)
	sched := new(MockScheduler)
	h := NewAPIHandlers(core, sched, newTestKarmaStore(t), nil)

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	core.On("HandleMessage", mock.Anything, mock.MatchedBy(func(req types.ChatRequest) bool {
		return len(req.Images) == 1 && bytes.Equal(req.Images[0], raw)
	})).Return(types.ChatResponse{Text: "nice picture"}, types.TurnTask{UserID: "u1"})
	sched.On("Enqueue", mock.Anything).Return()

	body, _ := json.Marshal(map[string]interface{}{
		"text":    "look",
		"user_id": "u1",
		"images":  []string{base64.StdEncoding.EncodeToString(raw)},
	})
	req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	core.AssertExpectations(t)
}

func TestHandleChat_RejectsInvalidBase64(t *testing.T) {
	core := new(MockChatCore)
	sched := new(MockScheduler)
	h := NewAPIHandlers(core, sched, newTestKarmaStore(t), nil)

	body, _ := json.Marshal(map[string]interface{}{
		"text":    "look",
		"user_id": "u1",
		"images":  []string{"not-base64!!!"},
	})
	req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid base64 image")
	core.AssertNotCalled(t, "HandleMessage")
}

func TestHandleChat_RejectsMissingUserID(t *testing.T) {
	core := new(MockChatCore)
	sched := new(MockScheduler)
	h := NewAPIHandlers(core, sched, newTestKarmaStore(t), nil)

	req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader([]byte(`{"text":"hi"}`)))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id is required")
}

func TestHandleChat_RejectsInvalidJSON(t *testing.T) {
	core := new(MockChatCore)
	sched := new(MockScheduler)
	h := NewAPIHandlers(core, sched, newTestKarmaStore(t), nil)

	req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	h := NewAPIHandlers(new(MockChatCore), new(MockScheduler), newTestKarmaStore(t), nil)

	req := httptest.NewRequest("GET", "/api/chat", nil)
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGetUser_ReturnsRecord(t *testing.T) {
	store := newTestKarmaStore(t)
	_, err := store.Adjust("u1", 3, "Alice")
	require.NoError(t, err)
	h := NewAPIHandlers(new(MockChatCore), new(MockScheduler), store, nil)

	req := httptest.NewRequest("GET", "/api/users/u1", nil)
	req.SetPathValue("id", "u1")
	w := httptest.NewRecorder()

	h.GetUser(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var rec types.UserRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 3, rec.Score)
	assert.Equal(t, "Alice", rec.DisplayName)
}

func TestGetUser_UnknownUserZeroRecord(t *testing.T) {
	h := NewAPIHandlers(new(MockChatCore), new(MockScheduler), newTestKarmaStore(t), nil)

	req := httptest.NewRequest("GET", "/api/users/nobody", nil)
	req.SetPathValue("id", "nobody")
	w := httptest.NewRecorder()

	h.GetUser(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var rec types.UserRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 0, rec.Score)
}

func TestSetUserScore_Overwrites(t *testing.T) {
	store := newTestKarmaStore(t)
	_, err := store.Adjust("u1", 2, "Alice")
	require.NoError(t, err)
	h := NewAPIHandlers(new(MockChatCore), new(MockScheduler), store, nil)

	req := httptest.NewRequest("PUT", "/api/users/u1/score", bytes.NewReader([]byte(`{"score":-7}`)))
	req.SetPathValue("id", "u1")
	w := httptest.NewRecorder()

	h.SetUserScore(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, -7, store.Get("u1").Score)
	assert.Equal(t, "Alice", store.Get("u1").DisplayName)
}

func TestToggleDebug_FlipsWithoutBody(t *testing.T) {
	h := NewAPIHandlers(new(MockChatCore), new(MockScheduler), newTestKarmaStore(t), nil)

	req := httptest.NewRequest("POST", "/api/debug", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	h.ToggleDebug(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.Debug())

	req = httptest.NewRequest("POST", "/api/debug", bytes.NewReader(nil))
	w = httptest.NewRecorder()
	h.ToggleDebug(w, req)
	assert.False(t, h.Debug())
}

func TestToggleDebug_ExplicitValue(t *testing.T) {
	h := NewAPIHandlers(new(MockChatCore), new(MockScheduler), newTestKarmaStore(t), nil)

	req := httptest.NewRequest("POST", "/api/debug", bytes.NewReader([]byte(`{"debug":true}`)))
	w := httptest.NewRecorder()
	h.ToggleDebug(w, req)
	assert.True(t, h.Debug())

	req = httptest.NewRequest("POST", "/api/debug", bytes.NewReader([]byte(`{"debug":false}`)))
	w = httptest.NewRecorder()
	h.ToggleDebug(w, req)
	assert.False(t, h.Debug())
}
