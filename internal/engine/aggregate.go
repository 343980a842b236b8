package engine

import (
	"fmt"

	"github.com/ensembleworks/ensemble/internal/piece"
)

// matchedCondition returns the condition text a sub-movement's recorded match
// selected, or ok=false when the sub-movement has no recorded match (still
// pending, failed, or its index is out of range). Unrecorded sub-movements
// count as non-matching for every aggregate condition.
func matchedCondition(sub *piece.Movement, st *State) (string, bool) {
	out, ok := st.Outputs[sub.Name]
	if !ok {
		return "", false
	}
	if out.MatchedRuleIndex < 0 || out.MatchedRuleIndex >= len(sub.Rules) {
		return "", false
	}
	return sub.Rules[out.MatchedRuleIndex].Condition, true
}

// evaluateAggregateRule decides one all()/any() rule against the recorded
// sub-movement outcomes. Multi-condition all() is order-based: the i-th
// declared sub-movement must match the i-th listed condition. A condition
// count that differs from the sub-movement count skips the rule (or errors in
// strict mode).
func evaluateAggregateRule(rule *piece.Rule, subs []*piece.Movement, st *State, strict bool) (bool, error) {
	conds := rule.AggregateConditions
	if len(conds) == 0 {
		return false, nil
	}

	multi := len(conds) > 1
	if multi && rule.AggregateType == piece.AggregateAll && len(conds) != len(subs) {
		if strict {
			return false, fmt.Errorf("%w: %d conditions, %d sub-movements", ErrAggregateMismatch, len(conds), len(subs))
		}
		return false, nil
	}

	switch rule.AggregateType {
	case piece.AggregateAll:
		if multi {
			for i, sub := range subs {
				got, ok := matchedCondition(sub, st)
				if !ok || got != conds[i] {
					return false, nil
				}
			}
			return true, nil
		}
		for _, sub := range subs {
			got, ok := matchedCondition(sub, st)
			if !ok || got != conds[0] {
				return false, nil
			}
		}
		return len(subs) > 0, nil

	case piece.AggregateAny:
		want := make(map[string]bool, len(conds))
		for _, c := range conds {
			want[c] = true
		}
		for _, sub := range subs {
			if got, ok := matchedCondition(sub, st); ok && want[got] {
				return true, nil
			}
		}
		return false, nil
	}

	return false, nil
}

// EvaluateAggregates returns the index of the first aggregate rule (in
// declaration order) that is satisfied by the movement's sub-movement
// outcomes, or -1. Non-parallel movements and movements with zero
// sub-movements never match. Count-mismatch skips are logged via logf.
func EvaluateAggregates(mv *piece.Movement, st *State, strict bool, logf func(format string, args ...interface{})) (int, error) {
	if !mv.IsParallel() || len(mv.Parallel) == 0 {
		return -1, nil
	}

	for i := range mv.Rules {
		rule := &mv.Rules[i]
		if !rule.IsAggregate() {
			continue
		}
		matched, err := evaluateAggregateRule(rule, mv.Parallel, st, strict)
		if err != nil {
			return -1, fmt.Errorf("movement %q rule %d: %w", mv.Name, i+1, err)
		}
		if matched {
			return i, nil
		}
		if len(rule.AggregateConditions) > 1 &&
			rule.AggregateType == piece.AggregateAll &&
			len(rule.AggregateConditions) != len(mv.Parallel) && logf != nil {
			logf("movement %s: skipping aggregate rule %d (%d conditions vs %d sub-movements)",
				mv.Name, i+1, len(rule.AggregateConditions), len(mv.Parallel))
		}
	}
	return -1, nil
}
