package engine

import (
	"context"
	"fmt"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
)

// Evaluator turns a finished movement's outputs into exactly one RuleMatch.
// Strategies are attempted in a fixed order; the first that yields any match
// wins, and within a strategy the first satisfying rule in declaration order
// wins.
type Evaluator struct {
	judge       agent.Judge
	workDir     string
	interactive bool
	strict      bool
	logf        func(format string, args ...interface{})
}

// NewEvaluator creates a rule evaluator. judge may be nil when the piece has
// no ai() rules; the ai strategies then simply never match.
func NewEvaluator(judge agent.Judge, workDir string, interactive, strictAggregates bool, logf func(string, ...interface{})) *Evaluator {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Evaluator{
		judge:       judge,
		workDir:     workDir,
		interactive: interactive,
		strict:      strictAggregates,
		logf:        logf,
	}
}

// ruleSelectable reports whether a rule may be offered to a matching
// strategy; interactive-only rules are hidden outside interactive mode.
func (e *Evaluator) ruleSelectable(r *piece.Rule) bool {
	return !r.InteractiveOnly || e.interactive
}

// Evaluate resolves the routing decision for a movement from its Phase 1
// content and Phase 3 content (empty when Phase 3 was skipped). It returns
// ErrNoRuleMatched when every strategy comes up empty; the caller must treat
// that as fatal rather than picking a default route.
func (e *Evaluator) Evaluate(ctx context.Context, mv *piece.Movement, st *State, phase1, phase3 string) (RuleMatch, error) {
	if len(mv.Rules) == 0 {
		return RuleMatch{}, fmt.Errorf("movement %q: %w (movement declares no rules)", mv.Name, ErrNoRuleMatched)
	}

	// 1. Aggregates: the only deterministic signal for a fan-in movement.
	if mv.IsParallel() {
		idx, err := EvaluateAggregates(mv, st, e.strict, e.logf)
		if err != nil {
			return RuleMatch{}, err
		}
		if idx >= 0 {
			return RuleMatch{Index: idx, Method: MatchAggregate}, nil
		}
	}

	// 2. Phase 3 tag, then 3. Phase 1 tag as fallback.
	if match, ok := e.tagMatch(mv, phase3, MatchPhase3Tag); ok {
		return match, nil
	}
	if match, ok := e.tagMatch(mv, phase1, MatchPhase1Tag); ok {
		return match, nil
	}

	// 4. AI-judged ai() conditions.
	if match, ok, err := e.judgeAIRules(ctx, mv, phase1); err != nil {
		return RuleMatch{}, err
	} else if ok {
		return match, nil
	}

	// 5. Last resort: every selectable rule's condition text goes to the judge.
	if match, ok, err := e.judgeAllRules(ctx, mv, phase1); err != nil {
		return RuleMatch{}, err
	} else if ok {
		return match, nil
	}

	return RuleMatch{}, fmt.Errorf("movement %q: %w", mv.Name, ErrNoRuleMatched)
}

// tagMatch scans text for the movement's status tag and validates that the
// tagged index selects a real, selectable rule.
func (e *Evaluator) tagMatch(mv *piece.Movement, text string, method MatchMethod) (RuleMatch, bool) {
	n, found := FindStatusTag(mv.Name, text)
	if !found {
		return RuleMatch{}, false
	}
	idx := n - 1
	if idx >= len(mv.Rules) {
		e.logf("movement %s: tag index %d exceeds rule count %d, ignoring", mv.Name, n, len(mv.Rules))
		return RuleMatch{}, false
	}
	if !e.ruleSelectable(&mv.Rules[idx]) {
		e.logf("movement %s: tag selected interactive-only rule %d outside interactive mode, ignoring", mv.Name, n)
		return RuleMatch{}, false
	}
	return RuleMatch{Index: idx, Method: method}, true
}

// judgeAIRules submits only the rules flagged as ai() conditions.
func (e *Evaluator) judgeAIRules(ctx context.Context, mv *piece.Movement, output string) (RuleMatch, bool, error) {
	if e.judge == nil {
		return RuleMatch{}, false, nil
	}
	var conds []agent.Condition
	for i := range mv.Rules {
		r := &mv.Rules[i]
		if r.IsAI() && e.ruleSelectable(r) {
			conds = append(conds, agent.Condition{Index: i, Text: r.AIText})
		}
	}
	if len(conds) == 0 {
		return RuleMatch{}, false, nil
	}

	idx, err := e.judge.Judge(ctx, output, conds, agent.JudgeOptions{WorkDir: e.workDir})
	if err != nil {
		return RuleMatch{}, false, fmt.Errorf("movement %q: ai condition judge failed: %w", mv.Name, err)
	}
	if idx < 0 || idx >= len(mv.Rules) {
		return RuleMatch{}, false, nil
	}
	return RuleMatch{Index: idx, Method: MatchAIJudge}, true, nil
}

// judgeAllRules submits every selectable rule's condition text.
func (e *Evaluator) judgeAllRules(ctx context.Context, mv *piece.Movement, output string) (RuleMatch, bool, error) {
	if e.judge == nil {
		return RuleMatch{}, false, nil
	}
	var conds []agent.Condition
	for i := range mv.Rules {
		r := &mv.Rules[i]
		if !e.ruleSelectable(r) {
			continue
		}
		text := r.Condition
		if r.IsAI() {
			text = r.AIText
		}
		conds = append(conds, agent.Condition{Index: i, Text: text})
	}
	if len(conds) == 0 {
		return RuleMatch{}, false, nil
	}

	idx, err := e.judge.Judge(ctx, output, conds, agent.JudgeOptions{WorkDir: e.workDir})
	if err != nil {
		return RuleMatch{}, false, fmt.Errorf("movement %q: fallback judge failed: %w", mv.Name, err)
	}
	if idx < 0 || idx >= len(mv.Rules) {
		return RuleMatch{}, false, nil
	}
	return RuleMatch{Index: idx, Method: MatchAIJudgeFallback}, true, nil
}
