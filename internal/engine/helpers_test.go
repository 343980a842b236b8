package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
)

// fakeCaller records every call and answers via the respond function, or
// with a generic done result when respond is nil.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(persona, instruction string, opts agent.CallOptions) (*agent.CallResult, error)
}

type fakeCall struct {
	persona     string
	instruction string
	opts        agent.CallOptions
}

func (f *fakeCaller) Call(_ context.Context, persona, instruction string, opts agent.CallOptions) (*agent.CallResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{persona: persona, instruction: instruction, opts: opts})
	f.mu.Unlock()
	if f.respond == nil {
		return &agent.CallResult{Status: agent.StatusDone, Content: "ok", SessionID: "session-1"}, nil
	}
	return f.respond(persona, instruction, opts)
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeJudge returns a fixed index (or error) and counts invocations.
type fakeJudge struct {
	mu     sync.Mutex
	calls  int
	result int
	err    error
}

func (f *fakeJudge) Judge(_ context.Context, _ string, _ []agent.Condition, _ agent.JudgeOptions) (int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeJudge) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// judgmentTagPattern extracts the movement name from a status-judgment
// instruction so scripted responders can answer with a matching tag.
var judgmentTagPattern = regexp.MustCompile(`form \[([^:]+):`)

// isJudgmentInstruction reports whether an instruction is a Phase 3
// status-judgment prompt.
func isJudgmentInstruction(instruction string) bool {
	return judgmentTagPattern.MatchString(instruction)
}

// judgmentTagReply builds the tag reply a scripted agent gives to a
// status-judgment instruction.
func judgmentTagReply(instruction string, n int) string {
	m := judgmentTagPattern.FindStringSubmatch(instruction)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("[%s:%d]", m[1], n)
}

// mustParsePiece parses a test fixture piece document.
func mustParsePiece(t *testing.T, doc string) *piece.Piece {
	t.Helper()
	p, err := piece.Parse([]byte(strings.TrimSpace(doc) + "\n"))
	if err != nil {
		t.Fatalf("failed to parse fixture piece: %v", err)
	}
	return p
}
