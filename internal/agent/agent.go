// Package agent defines the capability boundary between the movement engine
// and concrete agent providers. The engine only ever sees this contract:
// given a persona, an instruction, and options, a provider returns content,
// a status, and an optional session handle.
package agent

import "context"

// Status is the terminal status of one agent call.
type Status string

const (
	// StatusDone means the agent finished and the content is usable.
	StatusDone Status = "done"
	// StatusBlocked means the agent is waiting for user input.
	StatusBlocked Status = "blocked"
	// StatusError means the call failed; Err carries the provider message.
	StatusError Status = "error"
)

// StreamEventType categorizes streamed output from an in-flight agent call.
type StreamEventType string

const (
	StreamText       StreamEventType = "text"
	StreamReasoning  StreamEventType = "reasoning"
	StreamToolUse    StreamEventType = "tool_use"
	StreamToolResult StreamEventType = "tool_result"
	StreamInit       StreamEventType = "init"
	StreamResult     StreamEventType = "result"
	StreamError      StreamEventType = "error"
)

// IsLifecycle reports whether the event marks call lifecycle rather than
// content. Lifecycle events are passed through unprefixed by the parallel
// stream merger.
func (t StreamEventType) IsLifecycle() bool {
	return t == StreamInit || t == StreamResult || t == StreamError
}

// StreamEvent is one streamed item from an in-flight call.
type StreamEvent struct {
	Type     StreamEventType
	Text     string
	ToolName string
}

// CallOptions carries the per-call knobs the engine controls.
type CallOptions struct {
	WorkDir        string
	SessionID      string // resume this provider session when non-empty
	Model          string
	Provider       string
	PermissionMode string

	// AllowedTools restricts tool access for the call. Nil leaves the
	// provider's default tool set; an empty non-nil slice forbids tools.
	AllowedTools []string

	MaxTurns int
	OnStream       func(StreamEvent)
}

// CallResult is the outcome of one agent call.
type CallResult struct {
	Status    Status
	Content   string
	SessionID string // provider session handle, may rotate between calls
	Err       string // provider error message when Status is StatusError
}

// Caller is the opaque agent-call capability. Implementations own retry
// policy; the engine never retries.
type Caller interface {
	Call(ctx context.Context, persona, instruction string, opts CallOptions) (*CallResult, error)
}

// Condition is one candidate rule condition submitted to the AI judge,
// carrying the rule's original index in its movement.
type Condition struct {
	Index int
	Text  string
}

// JudgeOptions carries judge-call context.
type JudgeOptions struct {
	WorkDir string
}

// Judge decides which condition, if any, an agent output satisfies.
// It returns the matched Condition.Index, or -1 when none matches.
type Judge interface {
	Judge(ctx context.Context, output string, conditions []Condition, opts JudgeOptions) (int, error)
}
