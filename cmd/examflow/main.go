// Command examflow ingests scanned exam answer sheets, recognizes them, and
// grades them through the async task pipeline. It exits once every dispatched
// grading task has finished or the process is interrupted.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aveledo/examflow/internal/config"
	"github.com/aveledo/examflow/internal/events"
	"github.com/aveledo/examflow/internal/ingest"
	"github.com/aveledo/examflow/internal/platform/gemini"
	"github.com/aveledo/examflow/internal/platform/logger"
	"github.com/aveledo/examflow/internal/platform/postgres"
	"github.com/aveledo/examflow/internal/quality"
	"github.com/aveledo/examflow/internal/task"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "examflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		examIDFlag = flag.String("exam", "", "exam ID (UUID) the sheets belong to (required)")
		dirFlag    = flag.String("dir", "", "directory to scan for sheet files")
	)
	flag.Parse()

	examID, err := uuid.Parse(*examIDFlag)
	if err != nil {
		return fmt.Errorf("invalid -exam value %q: %w", *examIDFlag, err)
	}

	files := flag.Args()
	if *dirFlag != "" {
		dirFiles, err := ingest.ListSheetFiles(*dirFlag)
		if err != nil {
			return err
		}
		files = append(files, dirFiles...)
	}
	if len(files) == 0 {
		return errors.New("no sheet files given: pass file paths or -dir")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database", slog.String("error", closeErr.Error()))
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	sheetStore := postgres.NewPostgresSheetStore(db, log)

	recognizer, err := gemini.NewGeminiRecognizer(ctx, log, cfg.Recognition)
	if err != nil {
		return fmt.Errorf("creating recognizer: %w", err)
	}
	grader, err := gemini.NewGeminiGrader(ctx, log, cfg.Recognition, cfg.Grading)
	if err != nil {
		return fmt.Errorf("creating grader: %w", err)
	}

	queue := task.NewQueue(cfg.Pipeline.QueueSize, log)
	pool := task.NewWorkerPool(queue, task.WorkerPoolConfig{WorkerCount: cfg.Pipeline.WorkerCount}, log)

	retryPolicy := task.RetryPolicy{
		MaxAttempts: cfg.Grading.MaxAttempts,
		Backoff:     time.Duration(cfg.Grading.BackoffSeconds) * time.Second,
	}
	dispatcher, err := task.NewDispatcher(queue, sheetStore, grader, retryPolicy, log)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(dispatcher)

	orchestrator, err := ingest.NewOrchestrator(
		sheetStore,
		recognizer,
		quality.NewAssessor(quality.Config{}),
		emitter,
		ingest.Config{
			MaxConcurrent:      cfg.Pipeline.MaxConcurrent,
			RecognitionTimeout: time.Duration(cfg.Recognition.TimeoutSeconds) * time.Second,
		},
		log,
	)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	pool.Start()

	// Pick up grading work left unfinished by a previous run before adding
	// new sheets to the queue.
	if err := dispatcher.Recover(ctx); err != nil {
		log.Error("failed to recover unfinished grading work", slog.String("error", err.Error()))
	}

	result, err := orchestrator.IngestBatch(ctx, examID, files)
	if err != nil {
		pool.Stop()
		return fmt.Errorf("ingesting batch: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		log.Error("failed to print batch result", slog.String("error", err.Error()))
	}

	if err := drainQueue(ctx, queue, log); err != nil {
		log.Warn("exiting before grading finished", slog.String("reason", err.Error()))
	}

	queue.Close()
	pool.Stop()
	return nil
}

// drainQueue waits until the queue holds no pending or processing tasks, or
// the context is cancelled.
func drainQueue(ctx context.Context, queue *task.Queue, log *slog.Logger) error {
	if !queue.HasUnfinished() {
		return nil
	}

	log.Info("waiting for grading tasks to finish")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !queue.HasUnfinished() {
				log.Info("all grading tasks finished")
				return nil
			}
		}
	}
}
