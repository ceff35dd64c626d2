package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tectonica/quakewatch/internal/models"
)

// Kandilli fetches the custom aggregator feed of Kandilli observatory
// reports. The feed wraps records in {"result": [...]}; coordinates come as
// a nested GeoJSON-style [lng, lat] pair and magnitude/depth may arrive as
// numbers or strings depending on the upstream scrape.
type Kandilli struct {
	url    string
	client *http.Client
}

// NewKandilli creates the Kandilli source adapter.
func NewKandilli(url string, timeout time.Duration) *Kandilli {
	return &Kandilli{url: url, client: newHTTPClient(timeout)}
}

func (k *Kandilli) Name() string { return models.SourceKandilli }

// kandilliResponse mirrors the aggregator's top-level shape.
type kandilliResponse struct {
	Result []json.RawMessage `json:"result"`
}

type kandilliRecord struct {
	Title    string    `json:"title"`
	Mag      flexFloat `json:"mag"`
	Depth    flexFloat `json:"depth"`
	DateTime string    `json:"date_time"`
	Date     string    `json:"date"`
	GeoJSON  struct {
		Coordinates []float64 `json:"coordinates"` // [lng, lat]
	} `json:"geojson"`
}

// Fetch retrieves and normalizes the live Kandilli records.
func (k *Kandilli) Fetch(ctx context.Context) ([]models.Event, error) {
	var resp kandilliResponse
	if err := httpGetJSON(ctx, k.client, k.url, &resp); err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(resp.Result))
	for _, raw := range resp.Result {
		// Record-by-record: one malformed record must not drop the batch.
		var rec kandilliRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		events = append(events, k.normalize(rec, raw))
	}
	return events, nil
}

func (k *Kandilli) normalize(rec kandilliRecord, raw json.RawMessage) models.Event {
	location := rec.Title
	if location == "" {
		location = UnknownLocation
	}

	var lat, lng float64
	if len(rec.GeoJSON.Coordinates) >= 2 {
		lng = rec.GeoJSON.Coordinates[0]
		lat = rec.GeoJSON.Coordinates[1]
	}

	return models.Event{
		Source:     models.SourceKandilli,
		Location:   location,
		Magnitude:  float64(rec.Mag),
		OccurredAt: parseKandilliTime(rec.DateTime, rec.Date),
		Latitude:   lat,
		Longitude:  lng,
		DepthKm:    float64(rec.Depth),
		RawPayload: raw,
	}
}

// turkeyTime is the zone the observatory reports in. Turkey abolished DST
// in 2016, so a fixed UTC+3 offset is exact for current records.
var turkeyTime = time.FixedZone("TRT", 3*60*60)

// parseKandilliTime takes the primary date_time field, then the date
// fallback, and defaults to the current time when neither parses. The feed
// reports local Turkish observatory timestamps without a zone suffix, so
// zone-less layouts are interpreted as UTC+3 and converted; other feeds
// report epoch or zoned instants, and cross-feed time comparison depends on
// every adapter landing in UTC.
func parseKandilliTime(primary, fallback string) time.Time {
	localLayouts := []string{
		"2006-01-02 15:04:05",
		"2006.01.02 15:04:05",
	}
	for _, v := range []string{primary, fallback} {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, v, turkeyTime); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

// flexFloat decodes a JSON value that may be a number, a numeric string,
// or absent, defaulting to 0 instead of failing the record.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}
