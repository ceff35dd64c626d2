package dedup

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/tectonica/quakewatch/internal/models"
)

func testEvent(lat, lng float64, at time.Time) models.Event {
	return models.Event{
		Source:     models.SourceUSGS,
		Location:   "test region",
		Magnitude:  4.0,
		OccurredAt: at,
		Latitude:   lat,
		Longitude:  lng,
	}
}

func newTestWindow(clock clockwork.Clock) *Window {
	return New(5*time.Minute, 2*time.Minute, 50, clock)
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantKm                 float64
		tolKm                  float64
	}{
		{"same point", 38.0, 27.0, 38.0, 27.0, 0, 0.001},
		{"istanbul to ankara", 41.0082, 28.9784, 39.9334, 32.8597, 351, 5},
		{"half a km apart", 38.0000, 27.0000, 38.0030, 27.0040, 0.48, 0.1},
		{"across the antimeridian", 10.0, 179.9, 10.0, -179.9, 21.9, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.wantKm, got, tt.tolKm)
		})
	}
}

func TestWindow_IsDuplicate_TimeAndDistanceBounds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		candidate models.Event
		want      bool
	}{
		{"close in time and space", testEvent(38.0030, 27.0040, base.Add(90*time.Second)), true},
		{"exactly at time tolerance", testEvent(38.0, 27.0, base.Add(2*time.Minute)), true},
		{"just past time tolerance", testEvent(38.0, 27.0, base.Add(2*time.Minute+time.Second)), false},
		{"earlier than admitted entry", testEvent(38.0, 27.0, base.Add(-90*time.Second)), true},
		{"within time but far away", testEvent(39.0, 28.0, base.Add(time.Minute)), false},
		{"same time roughly 40km away", testEvent(38.36, 27.0, base), true},
		{"same time roughly 60km away", testEvent(38.54, 27.0, base), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWindow(clock)
			w.Admit(testEvent(38.0, 27.0, base))
			assert.Equal(t, tt.want, w.IsDuplicate(tt.candidate))
		})
	}
}

func TestWindow_IsDuplicate_EmptyWindow(t *testing.T) {
	w := newTestWindow(clockwork.NewFakeClock())
	assert.False(t, w.IsDuplicate(testEvent(38.0, 27.0, time.Now())))
}

func TestWindow_Prune_DropsStaleEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := newTestWindow(clock)

	base := clock.Now()
	w.Admit(testEvent(38.0, 27.0, base))

	// An entry admitted at t0 must still match at t0+4m. The candidate time
	// must match the entry's occurred-at, only the wall clock advances.
	clock.Advance(4 * time.Minute)
	assert.True(t, w.IsDuplicate(testEvent(38.0, 27.0, base)))
	assert.Equal(t, 1, w.Len())

	// Past the 5m window width the entry is pruned and no longer matches.
	clock.Advance(time.Minute + time.Second)
	assert.False(t, w.IsDuplicate(testEvent(38.0, 27.0, base)))
	assert.Equal(t, 0, w.Len())
}

func TestWindow_Admit_Unconditional(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := newTestWindow(clock)

	e := testEvent(38.0, 27.0, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	w.Admit(e)
	w.Admit(e) // admitting a duplicate is allowed; the window does not police itself
	assert.Equal(t, 2, w.Len())
}

func TestWindow_FirstMatchShortCircuits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := newTestWindow(clock)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	w.Admit(testEvent(38.0, 27.0, base))
	w.Admit(testEvent(52.0, 13.0, base)) // unrelated event far away

	assert.True(t, w.IsDuplicate(testEvent(38.001, 27.001, base.Add(30*time.Second))))
}
