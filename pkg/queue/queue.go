package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/revcrew/leadflow/pkg/store"
)

// Key layout of the queue namespace.
const (
	keyPending        = "queue:events"    // list, LPUSH head / RPOPLPUSH tail (FIFO)
	keyScheduled      = "queue:scheduled" // zset scored by due unix time
	keyFailed         = "queue:failed"    // list of FailureRecord JSON
	keyJobPrefix      = "queue:job:"      // SETNX marker, one per non-terminal job
	keyInflightPrefix = "queue:inflight:" // per-pod list of claimed, unacknowledged jobs
)

// Queue is the FIFO job queue over the K/V store's queue namespace.
// Delayed retries park in a sorted set and are promoted to the pending
// list by the next Claim once due.
type Queue struct {
	kv     *store.Store
	jobTTL time.Duration
	logger *slog.Logger
}

// New creates a queue. jobTTL bounds the dedup marker of a job that never
// reaches a terminal state (matches the idempotency TTL).
func New(kv *store.Store, jobTTL time.Duration) *Queue {
	return &Queue{
		kv:     kv,
		jobTTL: jobTTL,
		logger: slog.Default().With("component", "queue"),
	}
}

// Enqueue adds a job identified by jobID. If a job with the same id is
// already in a non-terminal state the call is a no-op and returns false.
func (q *Queue) Enqueue(ctx context.Context, jobID, eventID string) (bool, error) {
	won, err := q.kv.SetNX(ctx, keyJobPrefix+jobID, eventID, q.jobTTL)
	if err != nil {
		return false, fmt.Errorf("marking job: %w", err)
	}
	if !won {
		q.logger.Info("Job already queued, skipping enqueue", "job_id", jobID)
		return false, nil
	}

	job := Job{JobID: jobID, EventID: eventID, EnqueuedAt: time.Now().UTC()}
	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("encoding job: %w", err)
	}
	if err := q.kv.LPush(ctx, keyPending, string(raw)); err != nil {
		// Roll the marker back so upstream retries can enqueue again.
		if delErr := q.kv.Del(ctx, keyJobPrefix+jobID); delErr != nil {
			q.logger.Error("Failed to roll back job marker", "job_id", jobID, "error", delErr)
		}
		return false, fmt.Errorf("pushing job: %w", err)
	}

	q.logger.Info("Job enqueued", "job_id", jobID, "event_id", eventID)
	return true, nil
}

// inflightKey names the per-pod list holding claimed jobs. Entries survive
// a crash and are requeued by RecoverInflight on the next pool start.
func inflightKey(podID string) string { return keyInflightPrefix + podID }

// Claim promotes due scheduled jobs and atomically moves the oldest
// pending job onto the pod's in-flight list. The job stays there until Ack
// or Requeue, so a worker that dies mid-job never loses it. Returns
// ErrNoJobsAvailable when the queue is empty.
func (q *Queue) Claim(ctx context.Context, podID string) (Job, error) {
	if err := q.promoteDue(ctx); err != nil {
		return Job{}, err
	}

	raw, err := q.kv.RPopLPush(ctx, keyPending, inflightKey(podID))
	if errors.Is(err, store.ErrNotFound) {
		return Job{}, ErrNoJobsAvailable
	}
	if err != nil {
		return Job{}, fmt.Errorf("claiming job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, fmt.Errorf("decoding job: %w", err)
	}
	return job, nil
}

// Ack drops a claimed job from the pod's in-flight list once its outcome
// is recorded. Job's JSON encoding round-trips byte for byte, so the
// in-flight entry is matched by value.
func (q *Queue) Ack(ctx context.Context, podID string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	return q.kv.LRem(ctx, inflightKey(podID), 1, string(raw))
}

// Requeue returns a claimed job to the pending list after a run that never
// reached the runner's bookkeeping. Push before remove: a crash between
// the two leaves a duplicate, which the runner's processed check absorbs,
// rather than a lost job.
func (q *Queue) Requeue(ctx context.Context, podID string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := q.kv.LPush(ctx, keyPending, string(raw)); err != nil {
		return fmt.Errorf("requeueing job: %w", err)
	}
	if err := q.kv.LRem(ctx, inflightKey(podID), 1, string(raw)); err != nil {
		return fmt.Errorf("clearing claimed entry: %w", err)
	}
	q.logger.Warn("Job returned to the queue", "job_id", job.JobID)
	return nil
}

// RecoverInflight moves every job left on the pod's in-flight list back to
// the pending list and reports how many there were. Called once on pool
// start; anything found was claimed by a previous run of this pod that
// died before acknowledging.
func (q *Queue) RecoverInflight(ctx context.Context, podID string) (int, error) {
	recovered := 0
	for {
		_, err := q.kv.RPopLPush(ctx, inflightKey(podID), keyPending)
		if errors.Is(err, store.ErrNotFound) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("recovering claimed jobs: %w", err)
		}
		recovered++
	}
}

// ScheduleRetry parks the job until now+delay, preserving its id.
func (q *Queue) ScheduleRetry(ctx context.Context, job Job, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	due := float64(time.Now().Add(delay).Unix())
	if err := q.kv.ZAdd(ctx, keyScheduled, due, string(raw)); err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	q.logger.Info("Job scheduled for retry", "job_id", job.JobID, "delay", delay)
	return nil
}

// Complete marks the job terminal, clearing its dedup marker.
func (q *Queue) Complete(ctx context.Context, job Job) error {
	return q.kv.Del(ctx, keyJobPrefix+job.JobID)
}

// Fail moves the job to the failure sink and clears its dedup marker.
func (q *Queue) Fail(ctx context.Context, job Job, cause string) error {
	rec := FailureRecord{
		JobID:    job.JobID,
		EventID:  job.EventID,
		Error:    cause,
		FailedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding failure record: %w", err)
	}
	if err := q.kv.LPush(ctx, keyFailed, string(raw)); err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	q.logger.Warn("Job moved to failure sink", "job_id", job.JobID, "event_id", job.EventID, "error", cause)
	return q.kv.Del(ctx, keyJobPrefix+job.JobID)
}

// promoteDue moves scheduled jobs whose due time has passed onto the
// pending list.
func (q *Queue) promoteDue(ctx context.Context) error {
	members, err := q.kv.ZPopDue(ctx, keyScheduled, float64(time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("promoting scheduled jobs: %w", err)
	}
	for _, m := range members {
		if err := q.kv.LPush(ctx, keyPending, m); err != nil {
			return fmt.Errorf("requeueing scheduled job: %w", err)
		}
	}
	return nil
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.kv.LLen(ctx, keyPending)
}

// ScheduledCount returns the number of jobs waiting on a retry timer.
func (q *Queue) ScheduledCount(ctx context.Context) (int64, error) {
	return q.kv.ZCard(ctx, keyScheduled)
}

// FailedCount returns the size of the failure sink.
func (q *Queue) FailedCount(ctx context.Context) (int64, error) {
	return q.kv.LLen(ctx, keyFailed)
}

// RecentFailures returns up to limit of the newest failure records.
func (q *Queue) RecentFailures(ctx context.Context, limit int64) ([]FailureRecord, error) {
	raws, err := q.kv.LRange(ctx, keyFailed, 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}
	records := make([]FailureRecord, 0, len(raws))
	for _, raw := range raws {
		var rec FailureRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			q.logger.Warn("Skipping malformed failure record", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
