package models

// Tier classifies a persisted event by magnitude for alerting purposes.
type Tier string

const (
	TierCritical Tier = "critical"
	TierWarning  Tier = "warning"
	TierInfo     Tier = "informational"
)

// Priority is the delivery priority hint handed to the push collaborator.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Alert is the structured hand-off payload for the external delivery
// collaborator. The collaborator owns delivery; a failed send is logged by
// the caller and never rolls back the already-persisted record.
type Alert struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Topic    string   `json:"topic"`
	Tier     Tier     `json:"tier"`
	Priority Priority `json:"priorityHint"`
}
