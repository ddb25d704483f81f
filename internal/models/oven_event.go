package models

import "time"

// Event types written to the oven event log.
const (
	EventStart       = "START"
	EventAbort       = "ABORT"
	EventReset       = "RESET"
	EventStageChange = "STAGE_CHANGE"
	EventRunFinished = "RUN_FINISHED"
	EventFault       = "FAULT"
	EventCalibration = "CALIBRATION"
)

// OvenEvent is a single log entry.
type OvenEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	RunID       string    `json:"run_id,omitempty"`
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

// EventFilter narrows an event log query. Zero values mean no bound.
type EventFilter struct {
	From  time.Time
	To    time.Time
	Type  string
	RunID string
	Limit int
}
