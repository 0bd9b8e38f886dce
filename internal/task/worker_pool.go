package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WorkerPool manages worker goroutines that consume tasks from a Queue.
// Each worker loop dequeues in FIFO order and hands every dequeued task to
// its own goroutine, so one slow task never starves the ones behind it.
// A task failure (error or panic) is recorded on the queue's status table
// and never terminates the loop.
type WorkerPool struct {
	queue       *Queue
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger

	// errorHandler is called when a task execution fails.
	// If nil, errors are only logged.
	errorHandler func(task Task, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker loops to start.
	// If zero or negative, defaults to 1.
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
	}
}

// NewWorkerPool creates a new worker pool consuming the given queue.
func NewWorkerPool(queue *Queue, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// SetErrorHandler allows setting a custom error handler for task execution failures.
func (p *WorkerPool) SetErrorHandler(handler func(task Task, err error)) {
	p.errorHandler = handler
}

// Start launches the worker loops.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "worker_count", p.workerCount)
}

// Stop cancels in-flight work and waits for all workers to exit. Callers
// that want queued tasks to finish should drain the queue before stopping.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker dequeues tasks and starts one processing goroutine per task.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-p.queue.Chan():
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			p.wg.Add(1)
			go p.runTask(task, id)
		}
	}
}

// runTask handles execution of a single task, recording status transitions
// on the queue. It is the isolation boundary: nothing a task does may take
// down the pool.
func (p *WorkerPool) runTask(task Task, workerID int) {
	defer p.wg.Done()

	logger := p.logger.With(
		"task_id", task.ID(),
		"task_kind", task.Kind(),
		"worker_id", workerID,
	)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task panicked: %v", r)
			logger.Error("task execution panicked", "panic", r)
			p.queue.markFailed(task.ID(), err.Error())
			if p.errorHandler != nil {
				p.errorHandler(task, err)
			}
		}
	}()

	p.queue.markProcessing(task.ID())
	logger.Info("processing task")

	result, err := task.Execute(p.ctx)
	if err != nil {
		logger.Error("task execution failed", "error", err)
		p.queue.markFailed(task.ID(), err.Error())
		if p.errorHandler != nil {
			p.errorHandler(task, err)
		}
		return
	}

	logger.Info("task completed successfully")
	p.queue.markCompleted(task.ID(), result)
}
