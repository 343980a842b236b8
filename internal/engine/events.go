package engine

// Hooks are the engine's typed lifecycle callbacks. Every field is optional;
// the engine checks for nil before invoking. Callbacks run synchronously on
// the engine goroutine (or a sub-movement goroutine during the parallel
// phase) and must not block for long.
type Hooks struct {
	// OnMovementStart fires when a movement is entered, before Phase 1.
	OnMovementStart func(movement string, iteration int)

	// OnMovementComplete fires after a movement's rule match is recorded.
	OnMovementComplete func(movement string, match RuleMatch, next string)

	// OnReport fires after each report-phase file write, with the result of
	// the file-exists check.
	OnReport func(movement, file string, exists bool)

	// OnPhaseStart / OnPhaseComplete frame each report or judgment phase
	// call so the caller can log or stream without the phase runner owning
	// presentation.
	OnPhaseStart    func(movement, phase string)
	OnPhaseComplete func(movement, phase string)

	// OnRunComplete fires once when the run reaches StatusCompleted.
	OnRunComplete func(st *State)

	// OnRunAbort fires once when the run reaches StatusAborted, with the
	// originating reason.
	OnRunAbort func(st *State, reason string)

	// OnUserInput is consulted when an agent call returns blocked status.
	// Returning an error cancels the run (aborted). When nil, blocked
	// status aborts immediately.
	OnUserInput func(prompt string) (string, error)

	// OnIterationLimit is consulted when the iteration budget is exhausted.
	// A positive return grants that many extra iterations; zero or nil
	// terminates the run.
	OnIterationLimit func(st *State) int
}

// Phase names passed to OnPhaseStart/OnPhaseComplete.
const (
	PhaseMain     = "main"
	PhaseReport   = "report"
	PhaseJudgment = "judgment"
)
