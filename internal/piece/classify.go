package piece

import (
	"fmt"
	"regexp"
	"strings"
)

// aiPattern matches ai("...") or ai(...) condition text.
var aiPattern = regexp.MustCompile(`^ai\((.*)\)$`)

// aggregatePattern matches all(...) / any(...) condition text. The argument
// list is parsed separately so quoting errors produce a useful message.
var aggregatePattern = regexp.MustCompile(`^(all|any)\((.*)\)$`)

// quotedArgPattern matches one double- or single-quoted argument.
var quotedArgPattern = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

// classifyRule derives the rule's classification from its condition text.
// Exactly one of {tag-based, ai, aggregate} applies; plain text that is not
// an ai()/all()/any() call is tag-based.
func classifyRule(r *Rule) error {
	text := strings.TrimSpace(r.Condition)
	if text == "" {
		return fmt.Errorf("rule condition must not be empty")
	}

	if m := aiPattern.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		inner = strings.Trim(inner, `"'`)
		if inner == "" {
			return fmt.Errorf("ai() condition must not be empty")
		}
		r.AIText = inner
		return nil
	}

	if m := aggregatePattern.FindStringSubmatch(text); m != nil {
		args, err := parseQuotedArgs(m[2])
		if err != nil {
			return fmt.Errorf("%s(): %w", m[1], err)
		}
		r.AggregateType = AggregateType(m[1])
		r.AggregateConditions = args
		return nil
	}

	return nil // tag-based
}

// parseQuotedArgs extracts the quoted string arguments of an aggregate
// condition, e.g. `"approved", "needs_fix"` → [approved needs_fix].
func parseQuotedArgs(list string) ([]string, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, fmt.Errorf("requires at least one quoted condition")
	}

	matches := quotedArgPattern.FindAllStringSubmatch(list, -1)
	if matches == nil {
		return nil, fmt.Errorf("conditions must be quoted strings, got %q", list)
	}

	args := make([]string, 0, len(matches))
	for _, m := range matches {
		arg := m[1]
		if arg == "" {
			arg = m[2]
		}
		if strings.TrimSpace(arg) == "" {
			return nil, fmt.Errorf("empty condition in argument list %q", list)
		}
		args = append(args, arg)
	}
	return args, nil
}
