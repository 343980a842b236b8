package claude

import (
	"encoding/json"

	"github.com/ensembleworks/ensemble/internal/agent"
)

// rawLine is the top-level structure of one stream-json NDJSON line.
type rawLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// rawMessage holds content blocks of an assistant/user message line.
type rawMessage struct {
	Content []rawBlock `json:"content"`
}

type rawBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Name     string `json:"name,omitempty"`
}

// lineResult is the decoded form of one NDJSON line: zero or more stream
// events, an optional session id, and the final result when the line closes
// the call.
type lineResult struct {
	events    []agent.StreamEvent
	sessionID string
	final     bool
	isError   bool
	errText   string
	content   string
}

// parseLine decodes one NDJSON line from the claude CLI stream-json output.
// Malformed lines are skipped (ok=false), matching how the CLI interleaves
// diagnostics with the stream.
func parseLine(line []byte) (lineResult, bool) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return lineResult{}, false
	}

	lr := lineResult{sessionID: raw.SessionID}

	switch raw.Type {
	case "system":
		if raw.Subtype == "init" {
			lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamInit})
		}

	case "assistant", "user":
		var msg rawMessage
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return lineResult{}, false
		}
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamText, Text: block.Text})
			case "thinking":
				lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamReasoning, Text: block.Thinking})
			case "tool_use":
				lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamToolUse, ToolName: block.Name})
			case "tool_result":
				lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamToolResult, Text: block.Text})
			}
		}

	case "result":
		lr.final = true
		lr.content = raw.Result
		if raw.IsError || (raw.Subtype != "" && raw.Subtype != "success") {
			lr.isError = true
			lr.errText = raw.Subtype
			if raw.Result != "" {
				lr.errText = raw.Result
			}
			lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamError, Text: lr.errText})
		} else {
			lr.events = append(lr.events, agent.StreamEvent{Type: agent.StreamResult})
		}

	default:
		return lineResult{}, false
	}

	return lr, true
}
