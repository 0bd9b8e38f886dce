// Package task implements the asynchronous grading execution model: an
// in-process FIFO queue with per-task status tracking, a worker pool that
// isolates task failures, a fixed-backoff retrier, and the grading task
// itself. Producers and consumers share only the Queue; everything else is
// wired explicitly at startup.
package task
