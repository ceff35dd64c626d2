// Package ingest orchestrates the ingestion pipeline: fixed-interval ticks
// that fan out to all source feeds, merge the results, and run each event
// through dedup, persistence, and notification strictly in order.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/tectonica/quakewatch/internal/dedup"
	"github.com/tectonica/quakewatch/internal/feed"
	"github.com/tectonica/quakewatch/internal/logger"
	"github.com/tectonica/quakewatch/internal/models"
	"github.com/tectonica/quakewatch/internal/notify"
	"github.com/tectonica/quakewatch/internal/observability"
)

// Store is the persistence gate the pipeline writes through.
type Store interface {
	Exists(id string) bool
	Save(id string, event models.Event) error
}

// EventID derives the deterministic persistence id for an event. Injected
// so pipeline tests can observe id derivation without a real store.
type EventID func(models.Event) string

// Pipeline owns the dedup window and drives one ingestion pass per tick.
//
// Single-active-poller precondition: the exists-then-save sequence is not
// transactional, so exactly one Pipeline instance may write to a given
// store. Running multiple pollers against the same store can produce
// duplicate writes on the same id race.
type Pipeline struct {
	sources  []feed.Source
	window   *dedup.Window
	store    Store
	eventID  EventID
	notifier notify.Notifier
	topic    string
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// New assembles a Pipeline. notifier may be nil to disable alert hand-off.
func New(
	sources []feed.Source,
	window *dedup.Window,
	store Store,
	eventID EventID,
	notifier notify.Notifier,
	topic string,
	metrics *observability.Metrics,
	clock clockwork.Clock,
) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		sources:  sources,
		window:   window,
		store:    store,
		eventID:  eventID,
		notifier: notifier,
		topic:    topic,
		metrics:  metrics,
		clock:    clock,
	}
}

// Run executes an initial tick and then one tick per interval until the
// context is cancelled. Ticks are invoked synchronously from this loop, so
// they can never overlap; an overrunning tick delays the next fire.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	logger.Info("Pipeline started (interval: %v, sources: %d)", interval, len(p.sources))

	p.RunTick(ctx)

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Pipeline stopped")
			return
		case <-ticker.Chan():
			p.RunTick(ctx)
		}
	}
}

// RunTick performs one full pipeline pass: concurrent fetch of all sources,
// fan-in, then a strictly sequential dedup → persist → notify walk over the
// merged events in configured source order.
func (p *Pipeline) RunTick(ctx context.Context) {
	tickID := uuid.NewString()[:8]
	start := p.clock.Now()

	merged := p.fetchAll(ctx, tickID)
	if len(merged) == 0 {
		logger.Warn("[%s] No events received from any source", tickID)
		return
	}

	newEvents := 0
	for _, event := range merged {
		if p.processEvent(ctx, tickID, event) {
			newEvents++
		}
	}

	if p.metrics != nil {
		p.metrics.TickDuration.Observe(p.clock.Since(start).Seconds())
		p.metrics.WindowSize.Set(float64(p.window.Len()))
	}
	logger.Info("[%s] Tick completed in %v: %d events processed, %d new",
		tickID, p.clock.Since(start), len(merged), newEvents)
}

// fetchAll fans out one goroutine per source and fans back in preserving
// the configured source order. A failed source contributes an empty slice;
// sibling fetches are never aborted by one failure.
func (p *Pipeline) fetchAll(ctx context.Context, tickID string) []models.Event {
	results := make([][]models.Event, len(p.sources))

	var wg sync.WaitGroup
	for i, src := range p.sources {
		wg.Add(1)
		go func(i int, src feed.Source) {
			defer wg.Done()
			events, err := src.Fetch(ctx)
			if err != nil {
				logger.Error("[%s] [%s] Fetch failed: %v", tickID, src.Name(), err)
				if p.metrics != nil {
					p.metrics.FetchErrors.WithLabelValues(src.Name()).Inc()
				}
				return
			}
			logger.Info("[%s] [%s] Received %d events", tickID, src.Name(), len(events))
			if p.metrics != nil {
				p.metrics.EventsFetched.WithLabelValues(src.Name()).Add(float64(len(events)))
			}
			results[i] = events
		}(i, src)
	}
	wg.Wait()

	var merged []models.Event
	for _, events := range results {
		merged = append(merged, events...)
	}
	return merged
}

// processEvent runs the sequential phase for one event. Returns true when
// the event was newly persisted.
func (p *Pipeline) processEvent(ctx context.Context, tickID string, event models.Event) bool {
	if p.window.IsDuplicate(event) {
		logger.Debug("[%s] Duplicate suppressed: %s (%s)", tickID, event.Location, event.Source)
		if p.metrics != nil {
			p.metrics.DuplicatesSuppressed.Inc()
		}
		return false
	}

	// Admission is unconditional, even if the event turns out to already be
	// in durable storage: the window serves cross-feed suppression within
	// this run, not truth-of-record.
	p.window.Admit(event)

	id := p.eventID(event)
	if p.store.Exists(id) {
		logger.Debug("[%s] Already persisted, skipped: %s", tickID, id)
		return false
	}

	// Range violations are worth a log line, but the record is still
	// persisted as the feed reported it.
	if err := event.Validate(); err != nil {
		logger.Warn("[%s] Event failed validation, persisting as reported: %v", tickID, err)
	}

	if err := p.store.Save(id, event); err != nil {
		logger.Error("[%s] Save failed for %s: %v", tickID, id, err)
		if p.metrics != nil {
			p.metrics.PersistErrors.Inc()
		}
		return false
	}
	if p.metrics != nil {
		p.metrics.EventsPersisted.Inc()
	}

	logger.Info("[%s] New event persisted: %s | %s | mag %.1f | %.4f,%.4f | depth %.1f km",
		tickID, event.Source, event.Location, event.Magnitude,
		event.Latitude, event.Longitude, event.DepthKm)

	p.sendAlert(ctx, tickID, event)
	return true
}

// sendAlert hands the alert to the delivery collaborator. Delivery errors
// are logged and never affect the already-committed record.
func (p *Pipeline) sendAlert(ctx context.Context, tickID string, event models.Event) {
	if p.notifier == nil {
		return
	}
	alert := notify.BuildAlert(event, p.topic)
	if err := p.notifier.Send(ctx, alert); err != nil {
		logger.Error("[%s] Alert delivery failed: %v", tickID, err)
		if p.metrics != nil {
			p.metrics.NotificationErrors.Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.NotificationsSent.Inc()
	}
}
