// ============================================================================
// ARTG Worker - Gate-in Event Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that runs the gate-in handler, each Worker runs in an independent goroutine
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes the following loop:
//   1. Receive task from taskCh (blocking wait)
//   2. Run the handler (with timeout control, panics recovered)
//   3. Send result to resultCh (dropped when the consumer falls behind)
//   4. Repeat until taskCh is closed and drained
//
// Timeout Control:
//   Each task gets an independent Context derived from the pool's base
//   context; Timeout == 0 means no deadline.
//
// Error Handling:
//   - Handler error and panics are both reported as a failed Result
//   - A panicking handler never takes the worker down
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Worker represents a work execution unit
type Worker struct {
	id       int           // Worker unique identifier, used for logging
	taskCh   <-chan Task   // Task channel (read-only)
	resultCh chan<- Result // Result channel (write-only)
	handler  Handler
	log      *slog.Logger
	stats    *counters
}

type counters struct {
	processed atomic.Int64
	failed    atomic.Int64
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Task, resultCh chan<- Result, handler Handler, log *slog.Logger, stats *counters) *Worker {
	return &Worker{
		id:       id,
		taskCh:   taskCh,
		resultCh: resultCh,
		handler:  handler,
		log:      log.With("worker_id", id),
		stats:    stats,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run(base context.Context) {
	for task := range w.taskCh {
		start := time.Now()
		var wait time.Duration
		if !task.ReceivedAt.IsZero() {
			wait = start.Sub(task.ReceivedAt)
		}

		ctx, cancel := base, context.CancelFunc(func() {})
		if task.Timeout > 0 {
			ctx, cancel = context.WithTimeout(base, task.Timeout)
		}
		err := w.execute(ctx, task.Payload)
		cancel()

		w.stats.processed.Add(1)
		if err != nil {
			w.stats.failed.Add(1)
			w.log.Warn("Task failed", "task_id", task.ID, "error", err)
		}

		result := Result{
			TaskID:   task.ID,
			Success:  err == nil,
			Error:    err,
			Duration: time.Since(start),
			Wait:     wait,
		}

		select {
		case w.resultCh <- result:
		default:
			// 結果消費者落後時丟棄，計數仍在 stats 中
		}
	}
}

// execute runs the handler, converting panics into errors
func (w *Worker) execute(ctx context.Context, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return w.handler(ctx, payload)
}
