package engine

import "errors"

// Sentinel errors callers branch on. Everything else is a plain wrapped error
// that the orchestrator converts into an aborted state.
var (
	// ErrNoRuleMatched means every rule-evaluation strategy came up empty.
	// This is fail-fast by design: routing to a fabricated movement would
	// corrupt the piece graph.
	ErrNoRuleMatched = errors.New("no rule matched")

	// ErrMissingSession means a session-resuming phase ran for a movement
	// whose agent has no recorded session.
	ErrMissingSession = errors.New("no session recorded for movement agent")

	// ErrLoopDetected means the consecutive same-movement threshold was
	// exceeded with the abort action configured.
	ErrLoopDetected = errors.New("movement loop detected")

	// ErrUnresolvedPermission means no layer of the permission configuration
	// produced a mode for a movement.
	ErrUnresolvedPermission = errors.New("unable to resolve permission mode")

	// ErrAggregateMismatch is raised in strict mode when a multi-condition
	// aggregate's condition count differs from the sub-movement count.
	ErrAggregateMismatch = errors.New("aggregate condition count does not match sub-movement count")
)
