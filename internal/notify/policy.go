// Package notify classifies newly persisted events into severity tiers and
// hands structured alerts to the external delivery collaborator.
package notify

import (
	"context"
	"fmt"

	"github.com/tectonica/quakewatch/internal/models"
)

// Magnitude thresholds for the alert tiers.
const (
	criticalMagnitude = 5.0
	warningMagnitude  = 3.5
)

// Notifier is the external delivery collaborator boundary. Implementations
// own delivery; the pipeline logs a failed Send and moves on — the persisted
// record is never rolled back or retried because of a delivery error.
type Notifier interface {
	Send(ctx context.Context, alert models.Alert) error
}

// Classify maps a magnitude to its severity tier. Boundaries are inclusive
// at the lower bound of each tier: exactly 5.0 is critical, exactly 3.5 is
// warning.
func Classify(magnitude float64) models.Tier {
	switch {
	case magnitude >= criticalMagnitude:
		return models.TierCritical
	case magnitude >= warningMagnitude:
		return models.TierWarning
	default:
		return models.TierInfo
	}
}

// BuildAlert derives the alert payload for a newly persisted event. Pure
// function of the event; invoked only after a first-time successful save.
func BuildAlert(event models.Event, topic string) models.Alert {
	tier := Classify(event.Magnitude)

	var title, body string
	priority := models.PriorityNormal

	switch tier {
	case models.TierCritical:
		title = "EMERGENCY: Major earthquake!"
		body = fmt.Sprintf("Serious magnitude %.1f earthquake near %s. Move to a safe place.",
			event.Magnitude, event.Location)
		priority = models.PriorityHigh
	case models.TierWarning:
		title = "Earthquake warning"
		body = fmt.Sprintf("%s - magnitude %.1f. Likely felt in the area.",
			event.Location, event.Magnitude)
	default:
		title = "Minor tremor"
		body = fmt.Sprintf("%s - magnitude %.1f. No cause for concern.",
			event.Location, event.Magnitude)
	}

	return models.Alert{
		Title:    title,
		Body:     body,
		Topic:    topic,
		Tier:     tier,
		Priority: priority,
	}
}
