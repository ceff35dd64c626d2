// Package models defines the core domain entities: events, records, and alerts.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Feed source tags. Each tag identifies the originating public feed.
const (
	SourceKandilli = "Kandilli"
	SourceUSGS     = "USGS"
	SourceEMSC     = "EMSC"
)

// Event is the normalized representation of a single seismic report from any
// feed. Many Events from different feeds may describe the same physical
// earthquake; the dedup window and the deterministic record ID collapse them.
//
// Latitude/longitude are best-effort: a missing coordinate is carried as 0,0
// rather than absent, so a (0,0) event can be a parsing artifact rather than
// a report from the Gulf of Guinea. Callers must not treat 0,0 as validated.
type Event struct {
	Source     string          `json:"source"`
	Location   string          `json:"location"`
	Magnitude  float64         `json:"mag"`
	OccurredAt time.Time       `json:"date"`
	Latitude   float64         `json:"lat"`
	Longitude  float64         `json:"lng"`
	DepthKm    float64         `json:"depth"`
	RawPayload json.RawMessage `json:"-"`
}

// Validate checks event field constraints.
func (e *Event) Validate() error {
	if e.Source == "" {
		return errors.New("event source must not be empty")
	}
	if e.Location == "" {
		return errors.New("event location must not be empty")
	}
	if e.Latitude < -90 || e.Latitude > 90 {
		return errors.New("latitude must be between -90 and 90")
	}
	if e.Longitude < -180 || e.Longitude > 180 {
		return errors.New("longitude must be between -180 and 180")
	}
	if e.DepthKm < 0 {
		return errors.New("depth must not be negative")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("event time must be set")
	}
	return nil
}

// Record is an Event as persisted in the durable store, keyed by its
// deterministic ID. IngestedAt is store-assigned and distinct from the
// feed-reported event time. Records are never mutated after the first write.
type Record struct {
	ID         string    `json:"id"`
	Event      Event     `json:"event"`
	IngestedAt time.Time `json:"ingested_at"`
}
