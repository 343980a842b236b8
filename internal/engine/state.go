package engine

import (
	"github.com/google/uuid"
)

// RunStatus is the terminal disposition of a piece run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusAborted   RunStatus = "aborted"
)

// MatchMethod identifies which rule-evaluation strategy produced a match.
type MatchMethod string

const (
	MatchAggregate       MatchMethod = "aggregate"
	MatchPhase1Tag       MatchMethod = "phase1_tag"
	MatchPhase3Tag       MatchMethod = "phase3_tag"
	MatchAIJudge         MatchMethod = "ai_judge"
	MatchAIJudgeFallback MatchMethod = "ai_judge_fallback"
)

// RuleMatch is the routing decision for one movement: the matched rule's
// index in declaration order and the strategy that found it.
type RuleMatch struct {
	Index  int
	Method MatchMethod
}

// MovementOutput records one finished movement (top-level or sub-movement).
// Entries are written exactly once, when the owning movement finishes judging.
type MovementOutput struct {
	Content           string
	MatchedRuleIndex  int
	MatchedRuleMethod MatchMethod
}

// State is the mutable run state, exclusively owned by one engine run. The
// parallel phase merges sub-movement results into it only at the join
// barrier, so no lock is needed.
type State struct {
	RunID     string
	Piece     string
	Current   string
	Iteration int
	Status    RunStatus

	// AbortReason is the human-readable reason when Status is StatusAborted.
	AbortReason string

	// Outputs maps movement name to its recorded outcome. Append-only
	// within a run.
	Outputs map[string]MovementOutput

	// Sessions maps a movement's session key (agent name, falling back to
	// movement name) to the provider session handle.
	Sessions map[string]string
}

// NewState creates the run state for a piece, positioned at the initial
// movement. An empty runID gets a generated one.
func NewState(runID, pieceName, initialMovement string) *State {
	if runID == "" {
		runID = uuid.New().String()
	}
	return &State{
		RunID:    runID,
		Piece:    pieceName,
		Current:  initialMovement,
		Status:   StatusRunning,
		Outputs:  make(map[string]MovementOutput),
		Sessions: make(map[string]string),
	}
}
