package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
	"github.com/ensembleworks/ensemble/internal/report"
)

// judgmentInput is the material a judgment strategy may draw on. Strategies
// gate on what is actually available: reports on disk, a last response, a
// live session.
type judgmentInput struct {
	movement     *piece.Movement
	state        *State
	lastResponse string
	base         agent.CallOptions
}

// judgmentStrategy produces status-tag text for a movement from whatever
// material it declares itself applicable to.
type judgmentStrategy interface {
	name() string
	canApply(in *judgmentInput) bool
	execute(ctx context.Context, in *judgmentInput) (string, error)
}

// JudgmentChain walks an ordered list of strategies and executes the first
// applicable one. The order runs from cheapest to most expensive: a
// single-rule movement never costs an agent call, and a live session is only
// consulted when nothing else is available.
type JudgmentChain struct {
	strategies []judgmentStrategy
	logf       func(format string, args ...interface{})
}

// NewJudgmentChain builds the standard chain. reports may be nil (the
// report-based strategy then never applies); judge and caller may be nil,
// disabling the strategies that need them.
func NewJudgmentChain(caller agent.Caller, judge agent.Judge, reports *report.Dir, workDir string, logf func(string, ...interface{})) *JudgmentChain {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	c := &JudgmentChain{logf: logf}
	c.strategies = append(c.strategies, &autoSelectStrategy{})
	if judge != nil {
		c.strategies = append(c.strategies,
			&reportBasedStrategy{reports: reports, judge: judge, workDir: workDir},
			&responseBasedStrategy{judge: judge, workDir: workDir},
		)
	}
	if caller != nil {
		c.strategies = append(c.strategies, &agentConsultStrategy{caller: caller})
	}
	return c
}

// Judge returns status-tag text for the movement via the first applicable
// strategy. It errors only when no strategy applies at all or the selected
// strategy fails.
func (c *JudgmentChain) Judge(ctx context.Context, mv *piece.Movement, st *State, lastResponse string, base agent.CallOptions) (string, error) {
	in := &judgmentInput{movement: mv, state: st, lastResponse: lastResponse, base: base}
	for _, s := range c.strategies {
		if !s.canApply(in) {
			continue
		}
		c.logf("movement %s: judging via %s strategy", mv.Name, s.name())
		text, err := s.execute(ctx, in)
		if err != nil {
			return "", fmt.Errorf("movement %q: %s judgment failed: %w", mv.Name, s.name(), err)
		}
		return text, nil
	}
	return "", fmt.Errorf("movement %q: no judgment strategy applicable", mv.Name)
}

// statusTag formats the tag for a 1-based rule index.
func statusTag(movement string, n int) string {
	return fmt.Sprintf("[%s:%d]", strings.ToUpper(movement), n)
}

// judgeConditions runs the AI judge over a movement's selectable rule texts
// and converts the matched index to a status tag.
func judgeConditions(ctx context.Context, judge agent.Judge, mv *piece.Movement, basis, workDir string) (string, error) {
	var conds []agent.Condition
	for i := range mv.Rules {
		r := &mv.Rules[i]
		text := r.Condition
		if r.IsAI() {
			text = r.AIText
		}
		conds = append(conds, agent.Condition{Index: i, Text: text})
	}
	idx, err := judge.Judge(ctx, basis, conds, agent.JudgeOptions{WorkDir: workDir})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(mv.Rules) {
		return "", fmt.Errorf("no condition matched")
	}
	return statusTag(mv.Name, idx+1), nil
}

// autoSelectStrategy short-circuits the single-rule case: with one rule
// there is nothing to decide.
type autoSelectStrategy struct{}

func (s *autoSelectStrategy) name() string { return "auto-select" }

func (s *autoSelectStrategy) canApply(in *judgmentInput) bool {
	return len(in.movement.Rules) == 1
}

func (s *autoSelectStrategy) execute(_ context.Context, in *judgmentInput) (string, error) {
	return statusTag(in.movement.Name, 1), nil
}

// reportBasedStrategy judges from the movement's report files. Only the
// current version of each file is read, never archived copies.
type reportBasedStrategy struct {
	reports *report.Dir
	judge   agent.Judge
	workDir string
}

func (s *reportBasedStrategy) name() string { return "report-based" }

func (s *reportBasedStrategy) canApply(in *judgmentInput) bool {
	if s.reports == nil {
		return false
	}
	for _, file := range in.movement.Reports {
		if s.reports.Exists(file) {
			return true
		}
	}
	return false
}

func (s *reportBasedStrategy) execute(ctx context.Context, in *judgmentInput) (string, error) {
	var b strings.Builder
	for _, file := range in.movement.Reports {
		if !s.reports.Exists(file) {
			continue
		}
		content, err := s.reports.ReadLatest(file)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", file, strings.TrimSpace(content))
	}
	return judgeConditions(ctx, s.judge, in.movement, b.String(), s.workDir)
}

// responseBasedStrategy judges from the movement's last response text.
type responseBasedStrategy struct {
	judge   agent.Judge
	workDir string
}

func (s *responseBasedStrategy) name() string { return "response-based" }

func (s *responseBasedStrategy) canApply(in *judgmentInput) bool {
	return strings.TrimSpace(in.lastResponse) != ""
}

func (s *responseBasedStrategy) execute(ctx context.Context, in *judgmentInput) (string, error) {
	return judgeConditions(ctx, s.judge, in.movement, in.lastResponse, s.workDir)
}

// agentConsultStrategy resumes the movement's session and asks directly.
type agentConsultStrategy struct {
	caller agent.Caller
}

func (s *agentConsultStrategy) name() string { return "agent-consult" }

func (s *agentConsultStrategy) canApply(in *judgmentInput) bool {
	return in.state.Sessions[sessionKey(in.movement)] != ""
}

func (s *agentConsultStrategy) execute(ctx context.Context, in *judgmentInput) (string, error) {
	opts := in.base
	opts.SessionID = in.state.Sessions[sessionKey(in.movement)]
	opts.AllowedTools = []string{}
	opts.MaxTurns = reportMaxTurns

	res, err := s.caller.Call(ctx, in.movement.Agent, statusJudgmentInstruction(in.movement), opts)
	if err != nil {
		return "", err
	}
	if res.Status != agent.StatusDone {
		return "", fmt.Errorf("agent returned status %s: %s", res.Status, res.Err)
	}
	if res.SessionID != "" {
		in.state.Sessions[sessionKey(in.movement)] = res.SessionID
	}
	return res.Content, nil
}
