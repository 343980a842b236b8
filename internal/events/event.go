// Package events records the lifecycle of a piece run as an append-only
// JSONL stream. Session-persistence and logging layers consume the stream
// after the fact; the engine itself never reads it back.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the category of a run event.
type EventType string

const (
	// EventMovementStart marks a movement entering its phase sequence.
	EventMovementStart EventType = "movement:start"
	// EventMovementComplete marks a movement's recorded rule match.
	EventMovementComplete EventType = "movement:complete"
	// EventReport marks one report-phase file write.
	EventReport EventType = "movement:report"
	// EventPhaseStart / EventPhaseComplete frame a report or judgment phase.
	EventPhaseStart    EventType = "phase:start"
	EventPhaseComplete EventType = "phase:complete"
	// EventRunComplete marks a run reaching its completed state.
	EventRunComplete EventType = "run:complete"
	// EventRunAbort marks a run aborting, with the reason in Detail.
	EventRunAbort EventType = "run:abort"
)

// Event is one lifecycle record of a piece run.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID identifies the engine run that produced the event.
	RunID string `json:"run_id"`

	// Piece is the piece name.
	Piece string `json:"piece"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Movement is the movement the event concerns, when applicable.
	Movement string `json:"movement,omitempty"`

	// Iteration is the engine iteration counter at event time.
	Iteration int `json:"iteration,omitempty"`

	// Phase names the report or judgment phase for phase events.
	Phase string `json:"phase,omitempty"`

	// RuleIndex is the matched rule's zero-based index for completion events.
	RuleIndex int `json:"rule_index,omitempty"`

	// RuleMethod is the strategy that matched the rule.
	RuleMethod string `json:"rule_method,omitempty"`

	// Next is the routing target for completion events.
	Next string `json:"next,omitempty"`

	// File is the report file name for report events.
	File string `json:"file,omitempty"`

	// Detail carries free-form context, e.g. the abort reason.
	Detail string `json:"detail,omitempty"`
}

// New creates an event with a fresh ID and the current time.
func New(runID, pieceName string, t EventType) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Piece:     pieceName,
		Type:      t,
	}
}

// ValidEventTypes returns all valid event type values.
func ValidEventTypes() []EventType {
	return []EventType{
		EventMovementStart,
		EventMovementComplete,
		EventReport,
		EventPhaseStart,
		EventPhaseComplete,
		EventRunComplete,
		EventRunAbort,
	}
}

// IsValidEventType checks if the given string is a valid event type.
func IsValidEventType(s string) bool {
	for _, t := range ValidEventTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}
