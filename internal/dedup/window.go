// Package dedup suppresses near-duplicate reports of the same physical
// earthquake arriving from different feeds within a short time window.
package dedup

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tectonica/quakewatch/internal/models"
)

// entry is an admitted event stamped with its admission time. Entries live
// at most the window width and exist only for cross-feed comparison; they
// are not a record of what reached persistence.
type entry struct {
	event      models.Event
	admittedAt time.Time
}

// Window holds the recently admitted events and answers duplicate queries
// with a time+distance rule: a candidate is a duplicate when some admitted
// entry is within the time tolerance AND the distance radius simultaneously.
//
// The window is insertion-ordered and scanned linearly; at feed scale
// (tens of events per tick, minutes of retention) an index buys nothing.
// Each check is O(window size).
//
// A Window is not safe for concurrent use. The orchestrator owns it and
// only touches it from the strictly sequential per-event phase of a tick.
type Window struct {
	entries   []entry
	width     time.Duration
	tolerance time.Duration
	radiusKm  float64
	clock     clockwork.Clock
}

// New creates a Window. A nil clock defaults to the real clock; tests pass
// a clockwork fake to drive pruning deterministically.
func New(width, tolerance time.Duration, radiusKm float64, clock clockwork.Clock) *Window {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Window{
		width:     width,
		tolerance: tolerance,
		radiusKm:  radiusKm,
		clock:     clock,
	}
}

// Prune drops every entry whose admission time is older than the window
// width. It runs before every duplicate check so the window never grows
// unbounded and never contains stale comparanda.
func (w *Window) Prune() {
	cutoff := w.clock.Now().Add(-w.width)
	kept := w.entries[:0]
	for _, e := range w.entries {
		if !e.admittedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	w.entries = kept
}

// IsDuplicate reports whether the candidate matches any admitted entry.
// First match wins; the engine does not cluster or pick a best match.
func (w *Window) IsDuplicate(candidate models.Event) bool {
	w.Prune()

	for _, e := range w.entries {
		dt := candidate.OccurredAt.Sub(e.event.OccurredAt)
		if dt < 0 {
			dt = -dt
		}
		if dt > w.tolerance {
			continue
		}
		d := Haversine(candidate.Latitude, candidate.Longitude, e.event.Latitude, e.event.Longitude)
		if d <= w.radiusKm {
			return true
		}
	}
	return false
}

// Admit inserts the candidate stamped with the current time. Admission is
// unconditional: an event later found to already exist in durable storage
// still stays in the window, because the window's only job is cross-feed
// suppression within this run, not truth-of-record.
func (w *Window) Admit(candidate models.Event) {
	w.entries = append(w.entries, entry{event: candidate, admittedAt: w.clock.Now()})
}

// Len returns the number of entries currently held.
func (w *Window) Len() int {
	return len(w.entries)
}
