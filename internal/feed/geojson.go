package feed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/tectonica/quakewatch/internal/models"
)

// geoJSONResponse is the shared FDSN-style GeoJSON envelope used by both the
// USGS and EMSC feeds: features carrying properties plus a
// [lng, lat, depth] coordinate triple.
type geoJSONResponse struct {
	Features []json.RawMessage `json:"features"`
}

type geoJSONFeature struct {
	Properties struct {
		Mag         flexFloat `json:"mag"`
		Place       string    `json:"place"`
		FlynnRegion string    `json:"flynn_region"`
		Region      string    `json:"region"`
		Time        geoTime   `json:"time"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lng, lat, depth]
	} `json:"geometry"`
}

// USGS fetches the USGS earthquake summary GeoJSON feed. Depth arrives in
// kilometers as the third coordinate, typically negative (below datum), so
// its absolute value is taken.
type USGS struct {
	url    string
	client *http.Client
}

// NewUSGS creates the USGS source adapter.
func NewUSGS(url string, timeout time.Duration) *USGS {
	return &USGS{url: url, client: newHTTPClient(timeout)}
}

func (u *USGS) Name() string { return models.SourceUSGS }

func (u *USGS) Fetch(ctx context.Context) ([]models.Event, error) {
	var resp geoJSONResponse
	if err := httpGetJSON(ctx, u.client, u.url, &resp); err != nil {
		return nil, err
	}
	return normalizeFeatures(resp.Features, models.SourceUSGS, func(depth float64) float64 {
		return math.Abs(depth)
	}), nil
}

// EMSC fetches the EMSC seismic portal feed. Same GeoJSON shape as USGS,
// except depth is reported in meters and the location falls back through
// flynn_region then region.
type EMSC struct {
	url    string
	client *http.Client
}

// NewEMSC creates the EMSC source adapter.
func NewEMSC(url string, timeout time.Duration) *EMSC {
	return &EMSC{url: url, client: newHTTPClient(timeout)}
}

func (e *EMSC) Name() string { return models.SourceEMSC }

func (e *EMSC) Fetch(ctx context.Context) ([]models.Event, error) {
	var resp geoJSONResponse
	if err := httpGetJSON(ctx, e.client, e.url, &resp); err != nil {
		return nil, err
	}
	return normalizeFeatures(resp.Features, models.SourceEMSC, func(depth float64) float64 {
		return math.Abs(depth) / 1000 // meters to kilometers
	}), nil
}

// normalizeFeatures maps GeoJSON features onto events record-by-record. A
// feature that fails to unmarshal is skipped without touching its siblings.
func normalizeFeatures(features []json.RawMessage, source string, normalizeDepth func(float64) float64) []models.Event {
	events := make([]models.Event, 0, len(features))
	for _, raw := range features {
		var f geoJSONFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}

		location := f.Properties.Place
		if location == "" {
			location = f.Properties.FlynnRegion
		}
		if location == "" {
			location = f.Properties.Region
		}
		if location == "" {
			location = UnknownLocation
		}

		var lat, lng, depth float64
		coords := f.Geometry.Coordinates
		if len(coords) >= 2 {
			lng = coords[0]
			lat = coords[1]
		}
		if len(coords) >= 3 {
			depth = normalizeDepth(coords[2])
		}

		occurredAt := time.Time(f.Properties.Time)
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}

		events = append(events, models.Event{
			Source:     source,
			Location:   location,
			Magnitude:  float64(f.Properties.Mag),
			OccurredAt: occurredAt,
			Latitude:   lat,
			Longitude:  lng,
			DepthKm:    depth,
			RawPayload: raw,
		})
	}
	return events
}

// geoTime decodes the feed timestamp, which USGS reports as epoch
// milliseconds and EMSC as an ISO-8601 string. Unparsable values decode to
// the zero time and are defaulted by the caller.
type geoTime time.Time

func (g *geoTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*g = geoTime(time.Time{})
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s[1:len(s)-1]); err == nil {
				*g = geoTime(t.UTC())
				return nil
			}
		}
		*g = geoTime(time.Time{})
		return nil
	}
	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		*g = geoTime(time.Time{})
		return nil
	}
	*g = geoTime(time.UnixMilli(millis).UTC())
	return nil
}
