package storage

import (
	"fmt"
	"strings"

	"github.com/tectonica/quakewatch/internal/models"
)

// EventID derives the deterministic persistence identifier for an event:
// millisecond epoch, normalized location, and each coordinate rounded to
// four decimal places, joined by underscores.
//
// This is a zero-tolerance identity, stricter than the fuzzy dedup window:
// it exists so that a second process re-fetching the same feed data after a
// restart maps the same physical record to the same id and the write stays
// idempotent.
func EventID(event models.Event) string {
	return fmt.Sprintf("%d_%s_%.4f_%.4f",
		event.OccurredAt.UnixMilli(),
		normalizeLocation(event.Location),
		event.Latitude,
		event.Longitude,
	)
}

// normalizeLocation lowercases the location and collapses every
// non-alphanumeric character to an underscore.
func normalizeLocation(location string) string {
	if location == "" {
		location = "unknown"
	}
	var b strings.Builder
	b.Grow(len(location))
	for _, c := range location {
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			b.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			b.WriteRune(c + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
