package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanutb/AnanBot/pkg/types"
)

type fakeText struct {
	reply     string
	err       error
	maxTokens int
}

func (f *fakeText) Complete(_ context.Context, _ string, maxTokens int) (string, error) {
	f.maxTokens = maxTokens
	return f.reply, f.err
}

func (f *fakeText) GetModel() string { return "fake-text" }

func TestWorkerProcessesDeferredTurn(t *testing.T) {
	rig := newTestRig(t)
	text := &fakeText{reply: "Enjoys long walks and complaining about compilers."}
	w := NewWorker(rig.assembler, text, 1, 8, 128)
	w.Start()

	w.Enqueue(types.TurnTask{
		UserID:    "u1",
		ContextID: "u1",
		Text:      "I walk a lot and complain about compilers",
		Reply:     "noted",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))

	assert.Equal(t, 1, rig.memory.extracts)
	assert.Equal(t, "Enjoys long walks and complaining about compilers.", rig.karma.Get("u1").Summary)
	assert.Equal(t, 128, text.maxTokens, "summary refresh must carry its token cap")
}

func TestWorkerTaskFailuresAreIsolated(t *testing.T) {
	rig := newTestRig(t)
	// Summarizer fails; memory extraction must still run.
	w := NewWorker(rig.assembler, &fakeText{err: assert.AnError}, 1, 8, 0)
	w.Start()

	w.Enqueue(types.TurnTask{UserID: "u1", ContextID: "u1", Text: "a real message", Reply: "ok"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))

	assert.Equal(t, 1, rig.memory.extracts)
	assert.Empty(t, rig.karma.Get("u1").Summary)
}

func TestWorkerDropsWhenQueueFull(t *testing.T) {
	rig := newTestRig(t)
	w := NewWorker(rig.assembler, &fakeText{reply: "x"}, 1, 1, 0)
	// Not started: the queue holds one task, the second is dropped.
	w.Enqueue(types.TurnTask{UserID: "u1"})
	w.Enqueue(types.TurnTask{UserID: "u2"})

	assert.Equal(t, 1, len(w.queue))
}
