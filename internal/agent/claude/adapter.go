// Package claude runs agent calls through the claude CLI in stream-json mode.
// It is the reference implementation of the agent.Caller and agent.Judge
// capabilities; the engine itself never imports this package.
package claude

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/ensembleworks/ensemble/internal/agent"
)

// DefaultBinary is the claude CLI executable name resolved via PATH.
const DefaultBinary = "claude"

// maxStreamLine bounds one NDJSON line; tool results can be large.
const maxStreamLine = 4 * 1024 * 1024

// Adapter invokes the claude CLI as a subprocess per call.
type Adapter struct {
	binary string
	apiKey string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBinary overrides the CLI executable path.
func WithBinary(path string) Option {
	return func(a *Adapter) { a.binary = path }
}

// WithAPIKey sets the API key exported to the CLI environment. When empty the
// CLI's own credential resolution applies.
func WithAPIKey(key string) Option {
	return func(a *Adapter) { a.apiKey = key }
}

// New creates a claude CLI adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{binary: DefaultBinary}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// buildArgs constructs the CLI argument list for one call.
func (a *Adapter) buildArgs(persona, instruction string, opts agent.CallOptions) []string {
	args := []string{
		"-p", instruction,
		"--output-format", "stream-json",
		"--verbose",
	}
	if persona != "" {
		args = append(args, "--append-system-prompt", fmt.Sprintf("You are acting as: %s.", persona))
	}
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", cliPermissionMode(opts.PermissionMode))
	}
	if opts.AllowedTools != nil {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	return args
}

// cliPermissionMode maps engine permission modes onto CLI permission modes.
func cliPermissionMode(mode string) string {
	switch mode {
	case "readonly":
		return "plan"
	case "edit":
		return "acceptEdits"
	case "full":
		return "bypassPermissions"
	default:
		return mode
	}
}

// Call runs one agent call and consumes its NDJSON stream until the result
// line. The final session id is whatever the last line carried, since the CLI
// may rotate session ids on resume.
func (a *Adapter) Call(ctx context.Context, persona, instruction string, opts agent.CallOptions) (*agent.CallResult, error) {
	cmd := exec.CommandContext(ctx, a.binary, a.buildArgs(persona, instruction, opts)...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Env = os.Environ()
	if a.apiKey != "" {
		cmd.Env = append(cmd.Env, "ANTHROPIC_API_KEY="+a.apiKey)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", a.binary, err)
	}

	result := &agent.CallResult{Status: agent.StatusError}
	var textParts []string

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lr, ok := parseLine(line)
		if !ok {
			continue
		}
		if lr.sessionID != "" {
			result.SessionID = lr.sessionID
		}
		for _, ev := range lr.events {
			if ev.Type == agent.StreamText && ev.Text != "" {
				textParts = append(textParts, ev.Text)
			}
			if opts.OnStream != nil {
				opts.OnStream(ev)
			}
		}
		if lr.final {
			if lr.isError {
				result.Status = agent.StatusError
				result.Err = lr.errText
			} else {
				result.Status = agent.StatusDone
			}
			if lr.content != "" {
				result.Content = lr.content
			}
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read agent stream: %w", scanErr)
	}
	if waitErr != nil && result.Status != agent.StatusDone {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		result.Status = agent.StatusError
		result.Err = msg
	}

	if result.Content == "" {
		result.Content = strings.Join(textParts, "\n")
	}
	return result, nil
}

// answerPattern matches the judge reply line: ANSWER: <n> or ANSWER: none.
var answerPattern = regexp.MustCompile(`(?mi)^ANSWER:\s*(none|\d+)\s*$`)

// Judge asks the CLI, with no tool access and a single turn, which condition
// the output satisfies. Returns -1 when the judge answers none or emits no
// parseable answer.
func (a *Adapter) Judge(ctx context.Context, output string, conditions []agent.Condition, opts agent.JudgeOptions) (int, error) {
	if len(conditions) == 0 {
		return -1, nil
	}

	var sb strings.Builder
	sb.WriteString("Decide which of the numbered conditions the agent output below satisfies.\n\n")
	sb.WriteString("## Conditions\n\n")
	for _, c := range conditions {
		fmt.Fprintf(&sb, "%d. %s\n", c.Index+1, c.Text)
	}
	sb.WriteString("\n## Agent Output\n\n```\n")
	sb.WriteString(output)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Reply with exactly one line: `ANSWER: <number>` for the first satisfied condition, or `ANSWER: none` if none apply.\n")

	res, err := a.Call(ctx, "", sb.String(), agent.CallOptions{
		WorkDir:      opts.WorkDir,
		AllowedTools: []string{},
		MaxTurns:     1,
	})
	if err != nil {
		return -1, fmt.Errorf("judge call failed: %w", err)
	}
	if res.Status != agent.StatusDone {
		return -1, fmt.Errorf("judge call returned status %s: %s", res.Status, res.Err)
	}

	m := answerPattern.FindStringSubmatch(res.Content)
	if m == nil {
		return -1, nil
	}
	if strings.EqualFold(m[1], "none") {
		return -1, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > len(conditions) {
		return -1, nil
	}
	return conditions[n-1].Index, nil
}

var (
	_ agent.Caller = (*Adapter)(nil)
	_ agent.Judge  = (*Adapter)(nil)
)
