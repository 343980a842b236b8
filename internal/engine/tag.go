package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Status tags are the wire format agents use to select a rule:
// [<MOVEMENT_NAME_UPPERCASED>:<1-based rule index>], required verbatim.
// Agents sometimes wrap the tag in a markdown fence, so detection falls back
// to a fence-stripped pass before giving up.

// fencePattern matches markdown code fences with an optional language tag,
// keeping their inner content.
var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")

// stripFences removes markdown code fences, keeping the fenced content.
func stripFences(s string) string {
	return fencePattern.ReplaceAllString(s, "$1")
}

// FindStatusTag scans text for the movement's status tag and returns the
// 1-based rule index. The movement name must appear uppercased exactly; the
// first tag in the text wins.
func FindStatusTag(movement, text string) (int, bool) {
	if movement == "" || text == "" {
		return 0, false
	}

	pattern := regexp.MustCompile(`\[` + regexp.QuoteMeta(strings.ToUpper(movement)) + `:(\d+)\]`)

	m := pattern.FindStringSubmatch(text)
	if m == nil {
		m = pattern.FindStringSubmatch(stripFences(text))
	}
	if m == nil {
		return 0, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
