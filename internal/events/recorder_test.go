package events

import (
	"testing"

	"github.com/ensembleworks/ensemble/internal/engine"
)

func TestRecorderWrapsHooks(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	baseFired := 0
	base := &engine.Hooks{
		OnMovementStart: func(string, int) { baseFired++ },
	}

	rec := NewRecorder(sink, "run-1", "feature-flow", nil)
	hooks := rec.Hooks(base)

	hooks.OnMovementStart("plan", 0)
	hooks.OnMovementComplete("plan", engine.RuleMatch{Index: 1, Method: engine.MatchPhase3Tag}, "implement")
	hooks.OnPhaseStart("plan", engine.PhaseJudgment)
	hooks.OnPhaseComplete("plan", engine.PhaseJudgment)
	hooks.OnReport("plan", "summary.md", true)
	hooks.OnRunAbort(&engine.State{Iteration: 4}, "loop detected")

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if baseFired != 1 {
		t.Errorf("base hook fired %d times, want 1", baseFired)
	}

	got, err := ReadEvents(sink.Path())
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	wantTypes := []EventType{
		EventMovementStart,
		EventMovementComplete,
		EventPhaseStart,
		EventPhaseComplete,
		EventReport,
		EventRunAbort,
	}
	if len(got) != len(wantTypes) {
		t.Fatalf("recorded %d events, want %d", len(got), len(wantTypes))
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("event %d type = %s, want %s", i, got[i].Type, want)
		}
		if got[i].RunID != "run-1" || got[i].Piece != "feature-flow" {
			t.Errorf("event %d run labels = %q/%q", i, got[i].RunID, got[i].Piece)
		}
	}

	complete := got[1]
	if complete.RuleIndex != 1 || complete.RuleMethod != "phase3_tag" || complete.Next != "implement" {
		t.Errorf("completion event = %+v", complete)
	}
	abort := got[5]
	if abort.Detail != "loop detected" || abort.Iteration != 4 {
		t.Errorf("abort event = %+v", abort)
	}
}
