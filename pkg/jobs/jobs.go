// Package jobs holds the background handlers the worker pool dispatches to:
// one handler per (source, event_type) pair. Handlers load nothing from the
// store themselves; the runner hands them the staged event and classifies
// the error they return.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/revcrew/leadflow/pkg/config"
	"github.com/revcrew/leadflow/pkg/crm"
	"github.com/revcrew/leadflow/pkg/enrich"
	"github.com/revcrew/leadflow/pkg/events"
	"github.com/revcrew/leadflow/pkg/idempotency"
	"github.com/revcrew/leadflow/pkg/llm"
	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/queue"
	"github.com/revcrew/leadflow/pkg/scraper"
	"github.com/revcrew/leadflow/pkg/signals"
)

// Handler processes one staged event. The returned error drives the
// runner's bookkeeping per the pipeline error taxonomy.
type Handler func(ctx context.Context, ev *pipeline.Event) error

// Deps bundles everything the handlers touch. Events, Guard and Queue are
// only used for follow-on staging (auto-enrichment); the runner owns the
// lifecycle of the event being processed.
type Deps struct {
	Config     *config.Config
	Events     *events.Store
	Guard      *idempotency.Guard
	Queue      *queue.Queue
	CRM        *crm.Client
	LLM        *llm.Client
	Apollo     *enrich.ApolloClient
	Brandfetch *enrich.BrandfetchClient
	Scraper    *scraper.Scraper
	Detector   *signals.Detector
	Notifier   queue.Notifier

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// notify fires a best-effort chat message. A nil notifier is a no-op.
func (d *Deps) notify(ctx context.Context, title, body, severity string) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Notify(ctx, title, body, severity)
}

// Registry is the static dispatch table keyed by (source, event_type).
type Registry struct {
	deps     *Deps
	handlers map[string]Handler
	logger   *slog.Logger
}

func handlerKey(source pipeline.Source, eventType string) string {
	return string(source) + ":" + eventType
}

// NewRegistry wires the full handler set.
func NewRegistry(deps *Deps) *Registry {
	r := &Registry{
		deps:     deps,
		handlers: make(map[string]Handler),
		logger:   slog.Default().With("component", "jobs"),
	}
	r.register(pipeline.SourceCalendar, "booked", deps.handleDemoBooked)
	r.register(pipeline.SourceCalendar, "canceled", deps.handleDemoCanceled)
	r.register(pipeline.SourceCalendar, "rescheduled", deps.handleDemoRescheduled)
	r.register(pipeline.SourceMeeting, "completed", deps.handleMeetingCompleted)
	r.register(pipeline.SourceSupportTag, "tag_added", deps.handleTagAdded)
	r.register(pipeline.SourceSupportCo, "company_updated", deps.handleCompanyUpdated)
	r.register(pipeline.SourceManualEnrich, "enrich_request", deps.handleEnrichRequest)
	return r
}

func (r *Registry) register(source pipeline.Source, eventType string, h Handler) {
	r.handlers[handlerKey(source, eventType)] = h
}

// Dispatch routes an event to its handler. Unknown pairs are a permanent
// failure: retrying cannot make a handler appear.
func (r *Registry) Dispatch(ctx context.Context, ev *pipeline.Event) error {
	h, ok := r.handlers[handlerKey(ev.Source, ev.EventType)]
	if !ok {
		return pipeline.Permanentf("no handler registered for %s:%s", ev.Source, ev.EventType)
	}
	return h(ctx, ev)
}

// stageEnrichment stages a follow-on enrichment event for a lead that was
// just created or updated. Best-effort: a duplicate fingerprint or a
// staging failure never fails the calling handler.
func (d *Deps) stageEnrichment(ctx context.Context, email string) {
	log := slog.Default().With("component", "jobs", "email", email)
	if d.Events == nil || d.Guard == nil || d.Queue == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		log.Warn("Skipping auto-enrichment, payload encoding failed", "error", err)
		return
	}

	key := pipeline.IdempotencyKey(pipeline.SourceManualEnrich, "enrich_request", email)
	ev, err := d.Events.Create(ctx, pipeline.SourceManualEnrich, "enrich_request", email, payload, key)
	if err != nil {
		log.Warn("Skipping auto-enrichment, staging failed", "error", err)
		return
	}

	res, err := d.Guard.TryAcquire(ctx, key, ev.ID)
	if err != nil {
		log.Warn("Skipping auto-enrichment, fingerprint acquire failed", "error", err)
		return
	}
	if !res.Acquired {
		// An enrichment for this email is already staged or done.
		if err := d.Events.Delete(ctx, ev.ID); err != nil {
			log.Warn("Failed to drop duplicate enrichment event", "error", err)
		}
		return
	}

	if _, err := d.Queue.Enqueue(ctx, key, ev.ID); err != nil {
		log.Warn("Skipping auto-enrichment, enqueue failed", "error", err)
		return
	}
	log.Info("Auto-enrichment staged", "event_id", ev.ID)
}

// decodePayload unmarshals the staged payload. Malformed JSON in a staged
// event is permanent: the bytes never change between attempts.
func decodePayload(ev *pipeline.Event, out any) error {
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		return pipeline.Permanent(fmt.Sprintf("decoding %s payload", ev.Source), err)
	}
	return nil
}
