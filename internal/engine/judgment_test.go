package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
)

func TestJudgmentAutoSelectSingleRule(t *testing.T) {
	caller := &fakeCaller{}
	judge := &fakeJudge{}
	chain := NewJudgmentChain(caller, judge, nil, "", nil)

	p := mustParsePiece(t, `
name: demo
initial_movement: wrap-up
movements:
  - name: wrap-up
    instruction: Wrap up
    rules:
      - condition: finished
        next: COMPLETE
`)
	mv, _ := p.Movement("wrap-up")
	st := NewState("", p.Name, "wrap-up")

	got, err := chain.Judge(context.Background(), mv, st, "", agent.CallOptions{})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if got != "[WRAP-UP:1]" {
		t.Errorf("Judge() = %q, want [WRAP-UP:1]", got)
	}
	if caller.callCount() != 0 || judge.callCount() != 0 {
		t.Errorf("auto-select made %d agent and %d judge calls, want 0", caller.callCount(), judge.callCount())
	}
}

func TestJudgmentReportBased(t *testing.T) {
	reports := newReportDir(t)
	if err := reports.Append("verdict.md", "looks good"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	judge := &fakeJudge{result: 1}
	chain := NewJudgmentChain(&fakeCaller{}, judge, reports, "", nil)

	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	mv.Reports = []string{"verdict.md"}
	st := NewState("", p.Name, "review")

	got, err := chain.Judge(context.Background(), mv, st, "", agent.CallOptions{})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if got != "[REVIEW:2]" {
		t.Errorf("Judge() = %q, want [REVIEW:2]", got)
	}
	if judge.callCount() != 1 {
		t.Errorf("judge calls = %d, want 1", judge.callCount())
	}
}

func TestJudgmentResponseBased(t *testing.T) {
	judge := &fakeJudge{result: 0}
	chain := NewJudgmentChain(&fakeCaller{}, judge, nil, "", nil)

	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	st := NewState("", p.Name, "review")

	got, err := chain.Judge(context.Background(), mv, st, "the change was approved", agent.CallOptions{})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if got != "[REVIEW:1]" {
		t.Errorf("Judge() = %q, want [REVIEW:1]", got)
	}
}

func TestJudgmentAgentConsult(t *testing.T) {
	caller := &fakeCaller{
		respond: func(_, instruction string, opts agent.CallOptions) (*agent.CallResult, error) {
			if opts.SessionID != "sess-1" {
				t.Errorf("consult session = %q, want sess-1", opts.SessionID)
			}
			if opts.AllowedTools == nil || len(opts.AllowedTools) != 0 {
				t.Errorf("consult call got tools %v, want an explicit empty list", opts.AllowedTools)
			}
			if !strings.Contains(instruction, "[REVIEW:<number>]") {
				t.Errorf("consult instruction missing tag format:\n%s", instruction)
			}
			return &agent.CallResult{Status: agent.StatusDone, Content: "[REVIEW:2]"}, nil
		},
	}
	// No judge and no last response: only the session-backed strategy applies.
	chain := NewJudgmentChain(caller, nil, nil, "", nil)

	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	st := NewState("", p.Name, "review")
	st.Sessions["review"] = "sess-1"

	got, err := chain.Judge(context.Background(), mv, st, "", agent.CallOptions{})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if got != "[REVIEW:2]" {
		t.Errorf("Judge() = %q, want [REVIEW:2]", got)
	}
}

func TestJudgmentNoApplicableStrategy(t *testing.T) {
	chain := NewJudgmentChain(nil, nil, nil, "", nil)

	mv := &piece.Movement{Name: "review", Rules: []piece.Rule{{Condition: "a"}, {Condition: "b"}}}
	st := NewState("", "p", "review")

	if _, err := chain.Judge(context.Background(), mv, st, "", agent.CallOptions{}); err == nil {
		t.Fatal("Judge() succeeded with no applicable strategy")
	}
}
