// ============================================================================
// Roadcrew Worker - 批次模擬執行單元
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: 每個 Worker 在獨立 goroutine 中建立全新的模擬並以腳本驅動
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes the following loop:
//   1. Receive task from taskCh (blocking wait)
//   2. Build a Simulation from task.Config and drive task.Scenario (with timeout control)
//   3. Send result to resultCh
//   4. Repeat above process until taskCh is closed
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ Context with timeout    │   │
//   │  │   ├─ execute(task)           │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// 模擬之間不共享世界狀態；唯一共享的是 metrics.Collector（本身並發安全）。
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/roadcrew/internal/controller"
	"github.com/ChuLiYu/roadcrew/internal/metrics"
)

// ErrNoScenario is reported for a task without a scenario.
var ErrNoScenario = errors.New("task has no scenario")

// Worker represents a work execution unit
type Worker struct {
	id       int                // Worker unique identifier, used for logging
	taskCh   <-chan Task        // Task channel (read-only)
	resultCh chan<- Result      // Result channel (write-only)
	stopCh   <-chan struct{}    // closed when the pool stops
	metrics  *metrics.Collector // may be nil
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Task, resultCh chan<- Result, stopCh <-chan struct{}, m *metrics.Collector) *Worker {
	return &Worker{
		id:       id,
		taskCh:   taskCh,
		resultCh: resultCh,
		stopCh:   stopCh,
		metrics:  m,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run() {
	for task := range w.taskCh {
		start := time.Now()

		ctx := context.Background()
		cancel := func() {}
		if task.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		}
		result := w.execute(ctx, task)
		cancel()

		result.ID = task.ID
		result.Seed = task.Config.Seed
		result.Success = result.Error == nil
		result.Duration = time.Since(start)

		slog.Debug("Worker finished task",
			"worker", w.id,
			"task", task.ID,
			"ticks", result.Outcome.Ticks,
			"success", result.Success,
			"duration", result.Duration)

		select {
		case w.resultCh <- result:
		case <-w.stopCh:
			return
		}
	}
}

// execute builds a fresh simulation and drives the task's scenario on it
func (w *Worker) execute(ctx context.Context, task Task) Result {
	if task.Scenario == nil {
		return Result{Error: ErrNoScenario}
	}

	sim, err := controller.New(task.Config, controller.Deps{Metrics: w.metrics})
	if err != nil {
		return Result{Error: fmt.Errorf("create simulation: %w", err)}
	}
	defer sim.Stop()

	outcome, err := task.Scenario.Run(ctx, sim)
	return Result{
		Outcome: outcome,
		Report:  sim.Report(),
		Error:   err,
	}
}
