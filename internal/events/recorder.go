package events

import (
	"github.com/ensembleworks/ensemble/internal/engine"
)

// Recorder turns engine lifecycle hooks into persisted events. Sink write
// failures are reported to logf and never interrupt the run.
type Recorder struct {
	sink  *FileSink
	runID string
	piece string
	logf  func(format string, args ...interface{})
}

// NewRecorder creates a recorder for one run.
func NewRecorder(sink *FileSink, runID, pieceName string, logf func(string, ...interface{})) *Recorder {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Recorder{sink: sink, runID: runID, piece: pieceName, logf: logf}
}

func (r *Recorder) emit(ev Event) {
	if err := r.sink.WriteOne(ev); err != nil {
		r.logf("failed to record %s event: %v", ev.Type, err)
	}
}

// Hooks wraps base with recording callbacks. The base hooks (which may be
// nil) keep firing; recording happens after each one.
func (r *Recorder) Hooks(base *engine.Hooks) *engine.Hooks {
	if base == nil {
		base = &engine.Hooks{}
	}
	wrapped := *base

	wrapped.OnMovementStart = func(movement string, iteration int) {
		if base.OnMovementStart != nil {
			base.OnMovementStart(movement, iteration)
		}
		ev := New(r.runID, r.piece, EventMovementStart)
		ev.Movement = movement
		ev.Iteration = iteration
		r.emit(ev)
	}

	wrapped.OnMovementComplete = func(movement string, match engine.RuleMatch, next string) {
		if base.OnMovementComplete != nil {
			base.OnMovementComplete(movement, match, next)
		}
		ev := New(r.runID, r.piece, EventMovementComplete)
		ev.Movement = movement
		ev.RuleIndex = match.Index
		ev.RuleMethod = string(match.Method)
		ev.Next = next
		r.emit(ev)
	}

	wrapped.OnReport = func(movement, file string, exists bool) {
		if base.OnReport != nil {
			base.OnReport(movement, file, exists)
		}
		ev := New(r.runID, r.piece, EventReport)
		ev.Movement = movement
		ev.File = file
		if !exists {
			ev.Detail = "file missing after write"
		}
		r.emit(ev)
	}

	wrapped.OnPhaseStart = func(movement, phase string) {
		if base.OnPhaseStart != nil {
			base.OnPhaseStart(movement, phase)
		}
		ev := New(r.runID, r.piece, EventPhaseStart)
		ev.Movement = movement
		ev.Phase = phase
		r.emit(ev)
	}

	wrapped.OnPhaseComplete = func(movement, phase string) {
		if base.OnPhaseComplete != nil {
			base.OnPhaseComplete(movement, phase)
		}
		ev := New(r.runID, r.piece, EventPhaseComplete)
		ev.Movement = movement
		ev.Phase = phase
		r.emit(ev)
	}

	wrapped.OnRunComplete = func(st *engine.State) {
		if base.OnRunComplete != nil {
			base.OnRunComplete(st)
		}
		ev := New(r.runID, r.piece, EventRunComplete)
		ev.Iteration = st.Iteration
		r.emit(ev)
	}

	wrapped.OnRunAbort = func(st *engine.State, reason string) {
		if base.OnRunAbort != nil {
			base.OnRunAbort(st, reason)
		}
		ev := New(r.runID, r.piece, EventRunAbort)
		ev.Iteration = st.Iteration
		ev.Detail = reason
		r.emit(ev)
	}

	return &wrapped
}
