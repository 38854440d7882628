// Package queue provides the Redis-backed job queue, the worker pool that
// drains it, and the runner that executes one job with retry bookkeeping.
package queue

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no job is ready on the queue.
	ErrNoJobsAvailable = errors.New("no jobs available")
)

// Job is one queue entry. The job id equals the event's idempotency key,
// which enforces at most one non-terminal job per fingerprint.
type Job struct {
	JobID      string    `json:"job_id"`
	EventID    string    `json:"event_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobRunner executes one claimed job end to end: idempotency check,
// handler dispatch, status writes, retry scheduling, and failure alerts.
// The worker only handles claiming, timeout, and health tracking.
type JobRunner interface {
	Process(ctx context.Context, job Job) error
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	StoreReachable bool           `json:"store_reachable"`
	StoreError     string         `json:"store_error,omitempty"`
	PodID          string         `json:"pod_id"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	QueueDepth     int64          `json:"queue_depth"`
	ScheduledJobs  int64          `json:"scheduled_jobs"`
	FailedJobs     int64          `json:"failed_jobs"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}

// FailureRecord is one entry in the failure sink, read only by operators.
type FailureRecord struct {
	JobID    string    `json:"job_id"`
	EventID  string    `json:"event_id"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
