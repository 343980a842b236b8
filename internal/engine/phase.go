package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
	"github.com/ensembleworks/ensemble/internal/report"
)

// reportMaxTurns bounds the turn budget for report-phase calls; the agent is
// only summarizing its own session, not doing new work.
const reportMaxTurns = 5

// sessionKey returns the key a movement's session handle is stored under:
// the agent name when set, otherwise the movement name.
func sessionKey(mv *piece.Movement) string {
	if mv.Agent != "" {
		return mv.Agent
	}
	return mv.Name
}

// PhaseRunner executes the report phase and the status-judgment phase, both
// of which resume the session established by a movement's main call. It owns
// no presentation: lifecycle hooks let the orchestrator log and stream.
type PhaseRunner struct {
	caller  agent.Caller
	reports *report.Dir
	hooks   *Hooks
}

// NewPhaseRunner creates a phase runner. reports may be nil when no report
// directory is configured; the report phase then fails for movements that
// declare report files.
func NewPhaseRunner(caller agent.Caller, reports *report.Dir, hooks *Hooks) *PhaseRunner {
	if hooks == nil {
		hooks = &Hooks{}
	}
	return &PhaseRunner{caller: caller, reports: reports, hooks: hooks}
}

func (p *PhaseRunner) phaseStart(movement, phase string) {
	if p.hooks.OnPhaseStart != nil {
		p.hooks.OnPhaseStart(movement, phase)
	}
}

func (p *PhaseRunner) phaseComplete(movement, phase string) {
	if p.hooks.OnPhaseComplete != nil {
		p.hooks.OnPhaseComplete(movement, phase)
	}
}

// resumeSession returns the movement's stored session handle, or
// ErrMissingSession. Resume phases never start fresh sessions: the content
// they need only exists inside the main call's session.
func (p *PhaseRunner) resumeSession(mv *piece.Movement, st *State) (string, error) {
	sid := st.Sessions[sessionKey(mv)]
	if sid == "" {
		return "", fmt.Errorf("movement %q: %w", mv.Name, ErrMissingSession)
	}
	return sid, nil
}

// RunReportPhase materializes each of the movement's declared report files,
// in declaration order, by resuming the main-call session once per file. A
// missing or empty result is a hard failure, never a skip.
func (p *PhaseRunner) RunReportPhase(ctx context.Context, mv *piece.Movement, st *State, base agent.CallOptions) error {
	if len(mv.Reports) == 0 {
		return nil
	}
	if p.reports == nil {
		return fmt.Errorf("movement %q declares report files but no report directory is configured", mv.Name)
	}

	sid, err := p.resumeSession(mv, st)
	if err != nil {
		return err
	}

	p.phaseStart(mv.Name, PhaseReport)
	defer p.phaseComplete(mv.Name, PhaseReport)

	for _, file := range mv.Reports {
		// Resolve before the agent call: an escaping report name must fail
		// before any work or write happens.
		if _, err := p.reports.Resolve(file); err != nil {
			return fmt.Errorf("movement %q report %q: %w", mv.Name, file, err)
		}

		opts := base
		opts.SessionID = sid
		opts.AllowedTools = []string{}
		opts.MaxTurns = reportMaxTurns

		res, err := p.caller.Call(ctx, mv.Agent, reportInstruction(file), opts)
		if err != nil {
			return fmt.Errorf("movement %q report %q: agent call failed: %w", mv.Name, file, err)
		}
		if res.Status != agent.StatusDone {
			return fmt.Errorf("movement %q report %q: agent returned status %s: %s", mv.Name, file, res.Status, res.Err)
		}
		content := strings.TrimSpace(res.Content)
		if content == "" {
			return fmt.Errorf("movement %q report %q: agent returned empty content", mv.Name, file)
		}

		if err := p.reports.Append(file, content); err != nil {
			return fmt.Errorf("movement %q: %w", mv.Name, err)
		}

		// Providers may rotate the session handle on every call.
		if res.SessionID != "" {
			sid = res.SessionID
			st.Sessions[sessionKey(mv)] = sid
		}

		if p.hooks.OnReport != nil {
			p.hooks.OnReport(mv.Name, file, p.reports.Exists(file))
		}
	}
	return nil
}

// RunStatusJudgment resumes the movement's session and asks the agent to
// pick exactly one rule, returning the raw reply for tag detection.
func (p *PhaseRunner) RunStatusJudgment(ctx context.Context, mv *piece.Movement, st *State, base agent.CallOptions) (string, error) {
	sid, err := p.resumeSession(mv, st)
	if err != nil {
		return "", err
	}

	p.phaseStart(mv.Name, PhaseJudgment)
	defer p.phaseComplete(mv.Name, PhaseJudgment)

	opts := base
	opts.SessionID = sid
	opts.AllowedTools = []string{}
	opts.MaxTurns = reportMaxTurns

	res, err := p.caller.Call(ctx, mv.Agent, statusJudgmentInstruction(mv), opts)
	if err != nil {
		return "", fmt.Errorf("movement %q: status judgment call failed: %w", mv.Name, err)
	}
	if res.Status != agent.StatusDone {
		return "", fmt.Errorf("movement %q: status judgment returned status %s: %s", mv.Name, res.Status, res.Err)
	}
	if res.SessionID != "" {
		st.Sessions[sessionKey(mv)] = res.SessionID
	}
	return res.Content, nil
}

// reportInstruction asks the resumed session to write one report file's
// content as plain text.
func reportInstruction(file string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the content for the report file %q based on the work you just completed.\n", file)
	b.WriteString("Reply with the file content only. Do not use tools and do not add commentary before or after the content.")
	return b.String()
}

// statusJudgmentInstruction lists the movement's rules as a numbered table
// and asks for the status tag.
func statusJudgmentInstruction(mv *piece.Movement) string {
	upper := strings.ToUpper(mv.Name)
	var b strings.Builder
	b.WriteString("Based on the work you just completed, pick the single outcome that best describes it:\n\n")
	for i := range mv.Rules {
		r := &mv.Rules[i]
		text := r.Condition
		if r.IsAI() {
			text = r.AIText
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	fmt.Fprintf(&b, "\nReply with exactly one tag of the form [%s:<number>] and nothing else.", upper)
	return b.String()
}
