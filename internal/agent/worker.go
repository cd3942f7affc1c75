package agent

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tanutb/AnanBot/internal/llm"
	"github.com/tanutb/AnanBot/pkg/types"
)

// taskTimeout bounds the model calls one deferred turn may spend.
const taskTimeout = 2 * time.Minute

// Worker drains the deferred-turn queue: each completed turn costs two extra
// model calls (memory extraction, summary refresh) that must not add latency
// to the user-visible reply. The two jobs are independently best-effort.
type Worker struct {
	assembler     *Assembler
	text          llm.TextGenerator
	queue         chan types.TurnTask
	wg            sync.WaitGroup
	workers       int
	summaryTokens int
}

// NewWorker builds a worker pool over the assembler's stores. summaryTokens
// caps the summary-refresh completion.
func NewWorker(assembler *Assembler, text llm.TextGenerator, workers, queueSize, summaryTokens int) *Worker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	if summaryTokens <= 0 {
		summaryTokens = 200
	}
	return &Worker{
		assembler:     assembler,
		text:          text,
		queue:         make(chan types.TurnTask, queueSize),
		workers:       workers,
		summaryTokens: summaryTokens,
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
	log.Printf("agent: started %d deferred-turn workers", w.workers)
}

// Enqueue schedules a turn for deferred processing. When the queue is full
// the task is dropped with a log line; deferred work is best-effort.
func (w *Worker) Enqueue(task types.TurnTask) {
	select {
	case w.queue <- task:
	default:
		log.Printf("agent: deferred queue full, dropping turn for %s", task.UserID)
	}
}

// Shutdown closes the queue and waits for in-flight tasks to drain, bounded
// by the context.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.queue)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("agent: all deferred-turn workers finished")
		return nil
	case <-ctx.Done():
		log.Printf("agent: shutdown timed out, %d deferred turns may be dropped", len(w.queue))
		return ctx.Err()
	}
}

func (w *Worker) run(id int) {
	defer w.wg.Done()
	for task := range w.queue {
		w.process(id, task)
	}
}

// process runs the deferred work for one turn. Each job is isolated: a
// panic or failure in one must not stop the others.
func (w *Worker) process(id int, task types.TurnTask) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	// Redundant safety flush; the assembler already flushed synchronously.
	if err := w.assembler.history.Persist(); err != nil {
		log.Printf("agent: worker %d history flush failed: %v", id, err)
	}

	w.guarded(id, "memory extraction", func() {
		w.assembler.memory.ExtractAndStore(ctx, w.text, task.UserID, task.Text, task.Reply)
	})
	w.guarded(id, "summary refresh", func() {
		w.assembler.karma.RefreshSummary(ctx, task.UserID, task.Text, task.Reply, w.summarize)
	})
}

func (w *Worker) guarded(id int, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("agent: worker %d %s panicked: %v", id, name, r)
		}
	}()
	fn()
}

// summarize adapts the text generator to the karma store's refresh hook.
func (w *Worker) summarize(ctx context.Context, currentSummary, userText, reply string) (string, error) {
	return w.text.Complete(ctx, buildSummaryPrompt(currentSummary, userText, reply), w.summaryTokens)
}
