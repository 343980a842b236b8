// Package engine executes a piece: it walks the movement graph one movement
// at a time, runs each movement's phase sequence against an agent provider,
// and routes to the next movement through the rule evaluator. The engine
// never retries a failed phase; any failure aborts the run with the
// originating error so routing is never silently wrong.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
	"github.com/ensembleworks/ensemble/internal/report"
)

// DefaultMaxIterations applies when a piece does not set max_iterations.
const DefaultMaxIterations = 20

// Config assembles an engine run.
type Config struct {
	Piece  *piece.Piece
	Caller agent.Caller
	Judge  agent.Judge // optional; ai() rules never match without it

	// RunID labels the run in state and events; generated when empty.
	RunID string

	Reports *report.Dir // optional report directory
	Hooks   *Hooks      // optional lifecycle callbacks

	WorkDir  string
	Provider string
	Model    string

	// RouteModel optionally overrides the provider and model for a named
	// movement. Empty return values fall back to Provider and Model.
	RouteModel func(movement string) (provider, model string)

	// Interactive exposes interactive-only rules to the evaluator and
	// enables the blocked-status input loop.
	Interactive bool

	// StrictAggregates turns aggregate condition-count mismatches into
	// errors instead of skip-and-log.
	StrictAggregates bool

	ProjectProfiles PermissionProfiles
	GlobalProfiles  PermissionProfiles

	Loop LoopConfig

	// Out receives the interleaved parallel-phase output and summary block.
	Out io.Writer

	// OnStream receives the current movement's stream events (and, during a
	// parallel phase, sub-movement lifecycle events).
	OnStream func(agent.StreamEvent)

	// Logf is the engine's diagnostic log sink.
	Logf func(format string, args ...interface{})
}

// Engine runs one piece to a terminal state. An Engine is single-use: Run
// must be called at most once.
type Engine struct {
	cfg       Config
	hooks     *Hooks
	evaluator *Evaluator
	phases    *PhaseRunner
	chain     *JudgmentChain
	detector  *LoopDetector
	logf      func(format string, args ...interface{})
}

// New validates the config and assembles an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Piece == nil {
		return nil, fmt.Errorf("engine config: piece is required")
	}
	if cfg.Caller == nil {
		return nil, fmt.Errorf("engine config: agent caller is required")
	}
	if cfg.Hooks == nil {
		cfg.Hooks = &Hooks{}
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	return &Engine{
		cfg:       cfg,
		hooks:     cfg.Hooks,
		evaluator: NewEvaluator(cfg.Judge, cfg.WorkDir, cfg.Interactive, cfg.StrictAggregates, logf),
		phases:    NewPhaseRunner(cfg.Caller, cfg.Reports, cfg.Hooks),
		chain:     NewJudgmentChain(cfg.Caller, cfg.Judge, cfg.Reports, cfg.WorkDir, logf),
		detector:  NewLoopDetector(cfg.Loop),
		logf:      logf,
	}, nil
}

// Run executes the piece until it completes, aborts, or the context is
// canceled. The returned state is always usable: on error it carries
// StatusAborted and the abort reason.
func (e *Engine) Run(ctx context.Context) (*State, error) {
	p := e.cfg.Piece
	st := NewState(e.cfg.RunID, p.Name, p.InitialMovement)

	maxIterations := p.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	for {
		// Cancellation is checked between movements and between phases,
		// never mid-call; the provider layer owns in-flight aborts.
		if err := ctx.Err(); err != nil {
			e.abort(st, "run canceled")
			return st, err
		}

		mv, ok := p.Movement(st.Current)
		if !ok {
			err := fmt.Errorf("piece %q routed to unknown movement %q", p.Name, st.Current)
			e.abort(st, err.Error())
			return st, err
		}

		switch e.detector.Observe(mv.Name) {
		case LoopAbort:
			err := fmt.Errorf("movement %q executed %d consecutive times: %w", mv.Name, e.detector.Count(), ErrLoopDetected)
			e.abort(st, err.Error())
			return st, err
		case LoopWarn:
			e.logf("movement %s has executed %d consecutive times", mv.Name, e.detector.Count())
		}

		if e.hooks.OnMovementStart != nil {
			e.hooks.OnMovementStart(mv.Name, st.Iteration)
		}

		content, match, err := e.executeMovement(ctx, mv, st)
		if err != nil {
			e.abort(st, err.Error())
			return st, err
		}

		st.Outputs[mv.Name] = MovementOutput{
			Content:           content,
			MatchedRuleIndex:  match.Index,
			MatchedRuleMethod: match.Method,
		}

		next := mv.Rules[match.Index].Next
		if next == "" {
			next = piece.NextComplete
		}
		if e.hooks.OnMovementComplete != nil {
			e.hooks.OnMovementComplete(mv.Name, match, next)
		}

		switch next {
		case piece.NextComplete:
			st.Status = StatusCompleted
			if e.hooks.OnRunComplete != nil {
				e.hooks.OnRunComplete(st)
			}
			return st, nil
		case piece.NextAbort:
			e.abort(st, fmt.Sprintf("movement %q rule %d routed to ABORT", mv.Name, match.Index+1))
			return st, nil
		}

		st.Current = next
		st.Iteration++
		if st.Iteration >= maxIterations {
			extra := 0
			if e.hooks.OnIterationLimit != nil {
				extra = e.hooks.OnIterationLimit(st)
			}
			if extra <= 0 {
				err := fmt.Errorf("piece %q reached the iteration limit of %d", p.Name, maxIterations)
				e.abort(st, err.Error())
				return st, err
			}
			maxIterations += extra
		}
	}
}

func (e *Engine) abort(st *State, reason string) {
	st.Status = StatusAborted
	st.AbortReason = reason
	if e.hooks.OnRunAbort != nil {
		e.hooks.OnRunAbort(st, reason)
	}
}

// modelFor resolves the provider and model serving a movement's calls: the
// routing override when one applies, otherwise the run-level defaults.
func (e *Engine) modelFor(movement string) (provider, model string) {
	provider, model = e.cfg.Provider, e.cfg.Model
	if e.cfg.RouteModel == nil {
		return provider, model
	}
	p, m := e.cfg.RouteModel(movement)
	if p != "" {
		provider = p
	}
	if m != "" {
		model = m
	}
	return provider, model
}

// baseOptions builds the call options shared by every phase of a movement.
func (e *Engine) baseOptions(movement string, mode PermissionMode, onStream func(agent.StreamEvent)) agent.CallOptions {
	provider, model := e.modelFor(movement)
	return agent.CallOptions{
		WorkDir:        e.cfg.WorkDir,
		Model:          model,
		Provider:       provider,
		PermissionMode: string(mode),
		OnStream:       onStream,
	}
}

// executeMovement runs one movement's full phase sequence and returns its
// recorded content and rule match.
func (e *Engine) executeMovement(ctx context.Context, mv *piece.Movement, st *State) (string, RuleMatch, error) {
	if mv.IsParallel() {
		return e.executeParallel(ctx, mv, st)
	}

	mode, err := e.resolveMode(mv)
	if err != nil {
		return "", RuleMatch{}, err
	}

	base := e.baseOptions(mv.Name, mode, e.cfg.OnStream)
	return e.executeLeaf(ctx, mv, st, base)
}

// executeLeaf runs Phase 1 (main call), Phase 2 (reports) and Phase 3
// (status judgment) for a non-parallel movement, then evaluates its rules.
func (e *Engine) executeLeaf(ctx context.Context, mv *piece.Movement, st *State, base agent.CallOptions) (string, RuleMatch, error) {
	content, err := e.runMainCall(ctx, mv, st, base)
	if err != nil {
		return "", RuleMatch{}, err
	}

	if err := ctx.Err(); err != nil {
		return "", RuleMatch{}, err
	}
	if err := e.phases.RunReportPhase(ctx, mv, st, base); err != nil {
		return "", RuleMatch{}, err
	}

	var phase3 string
	if mv.NeedsStatusJudgment() {
		if err := ctx.Err(); err != nil {
			return "", RuleMatch{}, err
		}
		phase3, err = e.phases.RunStatusJudgment(ctx, mv, st, base)
		if errors.Is(err, ErrMissingSession) {
			// No session to resume: fall back to the judgment chain, which
			// degrades through reports, the response text, or auto-select.
			phase3, err = e.chain.Judge(ctx, mv, st, content, base)
		}
		if err != nil {
			return "", RuleMatch{}, err
		}
	}

	match, err := e.evaluator.Evaluate(ctx, mv, st, content, phase3)
	if err != nil {
		return "", RuleMatch{}, err
	}
	return content, match, nil
}

// runMainCall performs the Phase 1 agent call, looping through blocked
// statuses via the user-input hook.
func (e *Engine) runMainCall(ctx context.Context, mv *piece.Movement, st *State, base agent.CallOptions) (string, error) {
	key := sessionKey(mv)
	sid := st.Sessions[key]
	if mv.Session == piece.SessionRefresh {
		sid = ""
	}

	instruction := mv.Instruction
	for {
		opts := base
		opts.SessionID = sid

		res, err := e.cfg.Caller.Call(ctx, mv.Agent, instruction, opts)
		if err != nil {
			return "", fmt.Errorf("movement %q: agent call failed: %w", mv.Name, err)
		}
		if res.SessionID != "" {
			sid = res.SessionID
			st.Sessions[key] = sid
		}

		switch res.Status {
		case agent.StatusDone:
			return res.Content, nil
		case agent.StatusBlocked:
			if e.hooks.OnUserInput == nil {
				return "", fmt.Errorf("movement %q: agent is waiting for input and no input handler is configured", mv.Name)
			}
			input, err := e.hooks.OnUserInput(res.Content)
			if err != nil {
				return "", fmt.Errorf("movement %q: input refused: %w", mv.Name, err)
			}
			instruction = input
		default:
			return "", fmt.Errorf("movement %q: agent returned status %s: %s", mv.Name, res.Status, res.Err)
		}
	}
}

// resolveMode resolves the effective permission mode for one executable
// movement, using its routed provider.
func (e *Engine) resolveMode(mv *piece.Movement) (PermissionMode, error) {
	provider, _ := e.modelFor(mv.Name)
	return ResolvePermission(mv.Name, PermissionMode(mv.RequiredPermission), provider, e.cfg.ProjectProfiles, e.cfg.GlobalProfiles)
}

// executeParallel runs every sub-movement concurrently, merges their
// outcomes at the join barrier, and evaluates the parent's aggregate rules
// over the recorded results. Permission resolves per sub-movement: each
// sub-movement pipeline carries its own required floor and profile
// overrides, never the parent's.
func (e *Engine) executeParallel(ctx context.Context, mv *piece.Movement, st *State) (string, RuleMatch, error) {
	run := func(ctx context.Context, sub *piece.Movement, onStream func(agent.StreamEvent)) (*subOutcome, error) {
		// Each sub-movement pipeline owns a private state; results reach the
		// run state only through the join barrier.
		scratch := &State{
			RunID:    st.RunID,
			Piece:    st.Piece,
			Current:  sub.Name,
			Status:   StatusRunning,
			Outputs:  make(map[string]MovementOutput),
			Sessions: map[string]string{},
		}
		if sid, ok := st.Sessions[sessionKey(sub)]; ok {
			scratch.Sessions[sessionKey(sub)] = sid
		}

		mode, err := e.resolveMode(sub)
		if err != nil {
			return nil, err
		}

		base := e.baseOptions(sub.Name, mode, onStream)
		content, match, err := e.executeLeaf(ctx, sub, scratch, base)
		if err != nil {
			return nil, err
		}
		return &subOutcome{
			output: MovementOutput{
				Content:           content,
				MatchedRuleIndex:  match.Index,
				MatchedRuleMethod: match.Method,
			},
			sessions: scratch.Sessions,
		}, nil
	}

	if err := runParallel(ctx, mv, st, run, e.cfg.Out, e.cfg.OnStream); err != nil {
		return "", RuleMatch{}, fmt.Errorf("movement %q: %w", mv.Name, err)
	}

	content := mergedTranscript(mv, st)
	match, err := e.evaluator.Evaluate(ctx, mv, st, content, "")
	if err != nil {
		return "", RuleMatch{}, err
	}
	return content, match, nil
}

// mergedTranscript concatenates the sub-movement outputs, in declaration
// order, into the parent movement's recorded content.
func mergedTranscript(mv *piece.Movement, st *State) string {
	var b strings.Builder
	for i, sub := range mv.Parallel {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", sub.Name)
		if out, ok := st.Outputs[sub.Name]; ok {
			b.WriteString(strings.TrimSpace(out.Content))
			b.WriteString("\n")
		}
	}
	return b.String()
}
