package engine

import (
	"context"
	"errors"
	"testing"
)

const reviewPiece = `
name: demo
initial_movement: review
movements:
  - name: review
    instruction: Review the change
    rules:
      - condition: approved
        next: COMPLETE
      - condition: needs work
        next: review
      - condition: escalate
        interactive_only: true
`

func TestEvaluatorTagStrategies(t *testing.T) {
	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	st := NewState("", p.Name, "review")

	tests := []struct {
		name       string
		phase1     string
		phase3     string
		wantIndex  int
		wantMethod MatchMethod
		wantErr    error
	}{
		{
			name:       "phase3 tag beats a different phase1 tag",
			phase1:     "work remains [REVIEW:2]",
			phase3:     "[REVIEW:1]",
			wantIndex:  0,
			wantMethod: MatchPhase3Tag,
		},
		{
			name:       "phase1 tag when phase3 is empty",
			phase1:     "all done [REVIEW:1]",
			wantIndex:  0,
			wantMethod: MatchPhase1Tag,
		},
		{
			name:    "tag to an interactive-only rule is ignored outside interactive mode",
			phase3:  "[REVIEW:3]",
			wantErr: ErrNoRuleMatched,
		},
		{
			name:    "out-of-range tag is ignored",
			phase3:  "[REVIEW:9]",
			wantErr: ErrNoRuleMatched,
		},
		{
			name:    "no tags anywhere",
			phase1:  "nothing conclusive",
			wantErr: ErrNoRuleMatched,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewEvaluator(nil, "", false, false, nil)
			match, err := ev.Evaluate(context.Background(), mv, st, tt.phase1, tt.phase3)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Evaluate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if match.Index != tt.wantIndex || match.Method != tt.wantMethod {
				t.Errorf("Evaluate() = {%d %s}, want {%d %s}", match.Index, match.Method, tt.wantIndex, tt.wantMethod)
			}
		})
	}
}

func TestEvaluatorInteractiveRuleSelectable(t *testing.T) {
	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	st := NewState("", p.Name, "review")

	ev := NewEvaluator(nil, "", true, false, nil)
	match, err := ev.Evaluate(context.Background(), mv, st, "", "[REVIEW:3]")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if match.Index != 2 || match.Method != MatchPhase3Tag {
		t.Errorf("Evaluate() = {%d %s}, want {2 phase3_tag}", match.Index, match.Method)
	}
}

func TestEvaluatorAIJudgeStrategy(t *testing.T) {
	p := mustParsePiece(t, `
name: demo
initial_movement: verify
movements:
  - name: verify
    instruction: Verify the build
    rules:
      - condition: ai("the tests pass")
        next: COMPLETE
      - condition: ai("the tests fail")
        next: verify
`)
	mv, _ := p.Movement("verify")
	st := NewState("", p.Name, "verify")

	judge := &fakeJudge{result: 1}
	ev := NewEvaluator(judge, "", false, false, nil)
	match, err := ev.Evaluate(context.Background(), mv, st, "compile error in main.go", "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if match.Index != 1 || match.Method != MatchAIJudge {
		t.Errorf("Evaluate() = {%d %s}, want {1 ai_judge}", match.Index, match.Method)
	}
	if judge.callCount() != 1 {
		t.Errorf("judge calls = %d, want 1", judge.callCount())
	}
}

func TestEvaluatorFallbackOverAllConditions(t *testing.T) {
	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	st := NewState("", p.Name, "review")

	// No tags in either phase text; the fallback submits every selectable
	// rule to the judge.
	judge := &fakeJudge{result: 1}
	ev := NewEvaluator(judge, "", false, false, nil)
	match, err := ev.Evaluate(context.Background(), mv, st, "ambiguous output", "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if match.Index != 1 || match.Method != MatchAIJudgeFallback {
		t.Errorf("Evaluate() = {%d %s}, want {1 ai_judge_fallback}", match.Index, match.Method)
	}
}

func TestEvaluatorJudgeNoMatchIsError(t *testing.T) {
	p := mustParsePiece(t, reviewPiece)
	mv, _ := p.Movement("review")
	st := NewState("", p.Name, "review")

	judge := &fakeJudge{result: -1}
	ev := NewEvaluator(judge, "", false, false, nil)
	_, err := ev.Evaluate(context.Background(), mv, st, "ambiguous output", "")
	if !errors.Is(err, ErrNoRuleMatched) {
		t.Fatalf("Evaluate() error = %v, want ErrNoRuleMatched", err)
	}
}

func TestEvaluatorAggregateBeatsTags(t *testing.T) {
	mv, st := fanoutState(t, map[string]int{"reviewer-a": 0, "reviewer-b": 0})

	// Even with a plausible tag in the merged content, a parallel parent
	// routes by its aggregates.
	ev := NewEvaluator(nil, "", false, false, nil)
	match, err := ev.Evaluate(context.Background(), mv, st, "[FANOUT:2]", "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if match.Index != 0 || match.Method != MatchAggregate {
		t.Errorf("Evaluate() = {%d %s}, want {0 aggregate}", match.Index, match.Method)
	}
}
