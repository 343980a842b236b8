// Package template provides Mustache-style placeholder substitution for
// movement instructions. Piece authors write {{variable}} placeholders and
// supply values at run time; built-in variables carry run context.
package template

import (
	"regexp"
)

// variablePattern matches Mustache-style {{variable}} placeholders.
var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Built-in variable names available to every instruction.
const (
	VarPiece    = "piece"
	VarMovement = "movement"
	VarWorkDir  = "workdir"
)

// Render substitutes {{variable}} placeholders in an instruction with values
// from the variables map. Unknown variables are left as-is so a typo is
// visible in the rendered prompt instead of silently vanishing.
func Render(instruction string, variables map[string]string) string {
	if len(variables) == 0 {
		return instruction
	}

	return variablePattern.ReplaceAllStringFunc(instruction, func(match string) string {
		submatches := variablePattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		if value, ok := variables[submatches[1]]; ok {
			return value
		}
		return match
	})
}

// MergeVariables merges built-in run-context variables with user-provided
// parameters. User parameters win on name collision.
func MergeVariables(builtins, userParams map[string]string) map[string]string {
	if len(builtins) == 0 && len(userParams) == 0 {
		return nil
	}

	result := make(map[string]string, len(builtins)+len(userParams))
	for k, v := range builtins {
		result[k] = v
	}
	for k, v := range userParams {
		result[k] = v
	}
	return result
}

// Variables lists the distinct placeholder names an instruction references,
// in first-appearance order.
func Variables(instruction string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(instruction, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
