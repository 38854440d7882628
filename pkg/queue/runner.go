package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/revcrew/leadflow/pkg/events"
	"github.com/revcrew/leadflow/pkg/idempotency"
	"github.com/revcrew/leadflow/pkg/pipeline"
)

// Dispatch resolves and runs the handler for an event. A nil return means
// success; IgnoredError, TransientError and PermanentError drive the
// runner's bookkeeping. An unknown (source, event_type) pair must surface
// as a PermanentError.
type Dispatch func(ctx context.Context, ev *pipeline.Event) error

// Notifier is the best-effort alert sink for terminal failures.
// Implementations must never return an error to the runner.
type Notifier interface {
	Notify(ctx context.Context, title, body, severity string)
}

// RetryPolicy caps transient retries and spaces them out.
type RetryPolicy struct {
	MaxRetries int
	Intervals  []time.Duration
}

// DelayFor returns the wait before the retry following retriesUsed failed
// attempts. Past the end of the table the last interval repeats.
func (p RetryPolicy) DelayFor(retriesUsed int) time.Duration {
	if len(p.Intervals) == 0 {
		return 0
	}
	if retriesUsed >= len(p.Intervals) {
		return p.Intervals[len(p.Intervals)-1]
	}
	return p.Intervals[retriesUsed]
}

// Runner is the execution wrapper around a handler invocation: it loads the
// event, applies idempotency, increments attempts, classifies the handler's
// error, writes status back, and routes retries and failure alerts.
type Runner struct {
	events   *events.Store
	guard    *idempotency.Guard
	queue    *Queue
	dispatch Dispatch
	notifier Notifier
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewRunner wires the execution wrapper. notifier may be nil.
func NewRunner(ev *events.Store, guard *idempotency.Guard, q *Queue, dispatch Dispatch, notifier Notifier, policy RetryPolicy) *Runner {
	return &Runner{
		events:   ev,
		guard:    guard,
		queue:    q,
		dispatch: dispatch,
		notifier: notifier,
		policy:   policy,
		logger:   slog.Default().With("component", "runner"),
	}
}

// Process executes one job. Errors returned here are infrastructure
// failures (store unreachable); handler failures are fully absorbed into
// event status, retry scheduling and the failure sink.
func (r *Runner) Process(ctx context.Context, job Job) error {
	log := r.logger.With("job_id", job.JobID, "event_id", job.EventID)

	ev, err := r.events.Load(ctx, job.EventID)
	if errors.Is(err, events.ErrNotFound) {
		// TTL reclaimed the event; nothing to do.
		log.Info("Event expired before execution, skipping")
		return r.queue.Complete(ctx, job)
	}
	if err != nil {
		return fmt.Errorf("loading event: %w", err)
	}

	if ev.Status == pipeline.StatusProcessed {
		log.Info("Event already processed, skipping")
		return r.queue.Complete(ctx, job)
	}
	processed, err := r.guard.IsProcessed(ctx, ev.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("checking processed marker: %w", err)
	}
	if processed {
		log.Info("Fingerprint already processed, skipping", "idempotency_key", ev.IdempotencyKey)
		return r.queue.Complete(ctx, job)
	}

	attempts, err := r.events.IncrementAttempts(ctx, ev.ID)
	if err != nil {
		return err
	}
	ev.Attempts = attempts
	if err := r.events.SetStatus(ctx, ev.ID, pipeline.StatusProcessing, ""); err != nil {
		return err
	}

	log.Info("Executing handler",
		"source", ev.Source,
		"event_type", ev.EventType,
		"attempt", attempts)

	handlerErr := r.dispatch(ctx, ev)

	switch {
	case handlerErr == nil:
		return r.succeed(ctx, job, ev, log)
	default:
		var ignored *pipeline.IgnoredError
		if errors.As(handlerErr, &ignored) {
			return r.ignore(ctx, job, ev, ignored.Reason, log)
		}
		if pipeline.IsTransient(handlerErr) {
			return r.retryOrExhaust(ctx, job, ev, handlerErr, log)
		}
		return r.failPermanently(ctx, job, ev, handlerErr, log)
	}
}

func (r *Runner) succeed(ctx context.Context, job Job, ev *pipeline.Event, log *slog.Logger) error {
	if err := r.guard.MarkProcessed(ctx, ev.IdempotencyKey); err != nil {
		return err
	}
	if err := r.events.SetStatus(ctx, ev.ID, pipeline.StatusProcessed, ""); err != nil {
		return err
	}
	log.Info("Handler completed", "status", pipeline.StatusProcessed)
	return r.queue.Complete(ctx, job)
}

// ignore marks the event terminally ignored. The processed marker is still
// set so replays of the same fingerprint do not re-run, but no alert fires.
func (r *Runner) ignore(ctx context.Context, job Job, ev *pipeline.Event, reason string, log *slog.Logger) error {
	if err := r.events.SetStatus(ctx, ev.ID, pipeline.StatusIgnored, reason); err != nil {
		return err
	}
	if err := r.guard.MarkProcessed(ctx, ev.IdempotencyKey); err != nil {
		return err
	}
	log.Info("Handler ignored event", "reason", reason)
	return r.queue.Complete(ctx, job)
}

func (r *Runner) retryOrExhaust(ctx context.Context, job Job, ev *pipeline.Event, cause error, log *slog.Logger) error {
	retriesUsed := ev.Attempts - 1
	if retriesUsed < r.policy.MaxRetries {
		if err := r.events.SetStatus(ctx, ev.ID, pipeline.StatusQueued, cause.Error()); err != nil {
			return err
		}
		delay := r.policy.DelayFor(retriesUsed)
		log.Warn("Transient failure, scheduling retry",
			"attempt", ev.Attempts,
			"delay", delay,
			"error", cause)
		return r.queue.ScheduleRetry(ctx, job, delay)
	}

	// Retries exhausted: terminal failure.
	if err := r.events.SetStatus(ctx, ev.ID, pipeline.StatusFailed, cause.Error()); err != nil {
		return err
	}
	log.Error("Retries exhausted, job failed", "attempts", ev.Attempts, "error", cause)
	r.notify(ctx, ev, cause, "retries exhausted")
	return r.queue.Fail(ctx, job, cause.Error())
}

func (r *Runner) failPermanently(ctx context.Context, job Job, ev *pipeline.Event, cause error, log *slog.Logger) error {
	if err := r.events.SetStatus(ctx, ev.ID, pipeline.StatusFailed, cause.Error()); err != nil {
		return err
	}
	log.Error("Permanent failure", "error", cause)
	r.notify(ctx, ev, cause, "permanent error")
	return r.queue.Fail(ctx, job, cause.Error())
}

// notify fires the terminal-failure alert. Best-effort: the notifier
// swallows its own errors and a nil notifier is a no-op.
func (r *Runner) notify(ctx context.Context, ev *pipeline.Event, cause error, kind string) {
	if r.notifier == nil {
		return
	}
	title := fmt.Sprintf("Event processing failed (%s)", kind)
	body := fmt.Sprintf("source=%s event_type=%s event_id=%s attempts=%d\n%v",
		ev.Source, ev.EventType, ev.ID, ev.Attempts, cause)
	r.notifier.Notify(ctx, title, body, "error")
}
