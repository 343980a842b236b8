package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/piece"
)

const ansiReset = "\x1b[0m"

// subPrefixColors is cycled across sibling sub-movements so interleaved
// output stays attributable at a glance.
var subPrefixColors = []string{
	"\x1b[36m", // cyan
	"\x1b[35m", // magenta
	"\x1b[33m", // yellow
	"\x1b[32m", // green
	"\x1b[34m", // blue
}

// linePrefixer turns one sub-movement's stream into prefixed lines on a
// shared writer. Text events are line-buffered: a partial line stays in the
// buffer until its newline arrives or the sub-movement finishes. Tool and
// reasoning events flush immediately, one prefixed line per content line.
// Lifecycle events bypass the prefixer entirely and go to the parent stream
// handler.
type linePrefixer struct {
	mu     *sync.Mutex
	w      io.Writer
	prefix string
	parent func(agent.StreamEvent)
	buf    strings.Builder
}

func newLinePrefixer(mu *sync.Mutex, w io.Writer, name string, pad int, color string, parent func(agent.StreamEvent)) *linePrefixer {
	label := "[" + name + "]"
	if color != "" {
		label = color + label + ansiReset
	}
	prefix := label + strings.Repeat(" ", pad-len(name))
	return &linePrefixer{mu: mu, w: w, prefix: prefix, parent: parent}
}

func (p *linePrefixer) handle(ev agent.StreamEvent) {
	if ev.Type.IsLifecycle() {
		if p.parent != nil {
			p.parent(ev)
		}
		return
	}

	switch ev.Type {
	case agent.StreamText:
		p.buf.WriteString(ev.Text)
		for {
			s := p.buf.String()
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				break
			}
			p.writeLine(s[:i])
			p.buf.Reset()
			p.buf.WriteString(s[i+1:])
		}
	case agent.StreamToolUse:
		line := "tool: " + ev.ToolName
		if ev.Text != "" {
			line += " " + ev.Text
		}
		p.writeLines(line)
	default:
		p.writeLines(ev.Text)
	}
}

// flush emits any buffered partial line; called once at sub-movement end.
func (p *linePrefixer) flush() {
	if p.buf.Len() > 0 {
		p.writeLine(p.buf.String())
		p.buf.Reset()
	}
}

func (p *linePrefixer) writeLines(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		p.writeLine(line)
	}
}

func (p *linePrefixer) writeLine(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", p.prefix, line)
}

// subOutcome is one sub-movement's settled pipeline result, merged into the
// run state only at the join barrier.
type subOutcome struct {
	output   MovementOutput
	sessions map[string]string
}

// subPipeline runs one sub-movement's full phase sequence (main call,
// reports, judgment, rule evaluation) against private state. onStream
// receives the sub-movement's stream events.
type subPipeline func(ctx context.Context, sub *piece.Movement, onStream func(agent.StreamEvent)) (*subOutcome, error)

// runParallel launches every sub-movement of a parallel parent concurrently
// and blocks until all have settled. Successful outcomes are merged into st
// even when a sibling fails; the first failure (in declaration order) is
// returned after the barrier, so all() aggregates over the parent cannot
// match. There is no partial continuation.
func runParallel(ctx context.Context, mv *piece.Movement, st *State, run subPipeline, w io.Writer, parentStream func(agent.StreamEvent)) error {
	subs := mv.Parallel
	pad := 0
	for _, sub := range subs {
		if len(sub.Name) > pad {
			pad = len(sub.Name)
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	outcomes := make([]*subOutcome, len(subs))
	errs := make([]error, len(subs))

	for i, sub := range subs {
		prefixer := newLinePrefixer(&mu, w, sub.Name, pad, subPrefixColors[i%len(subPrefixColors)], parentStream)
		wg.Add(1)
		go func(i int, sub *piece.Movement, prefixer *linePrefixer) {
			defer wg.Done()
			outcome, err := run(ctx, sub, prefixer.handle)
			prefixer.flush()
			outcomes[i], errs[i] = outcome, err
		}(i, sub, prefixer)
	}
	wg.Wait()

	for i, sub := range subs {
		if outcomes[i] == nil {
			continue
		}
		st.Outputs[sub.Name] = outcomes[i].output
		for k, v := range outcomes[i].sessions {
			st.Sessions[k] = v
		}
	}

	writeParallelSummary(w, subs, st)

	for i, sub := range subs {
		if errs[i] != nil {
			return fmt.Errorf("sub-movement %q: %w", sub.Name, errs[i])
		}
	}
	return nil
}

// writeParallelSummary prints the fixed-width result block: one padded line
// per sub-movement with its matched condition text.
func writeParallelSummary(w io.Writer, subs []*piece.Movement, st *State) {
	pad := 0
	for _, sub := range subs {
		if len(sub.Name) > pad {
			pad = len(sub.Name)
		}
	}

	lines := make([]string, 0, len(subs))
	width := len("Results")
	for _, sub := range subs {
		cond := "(no match)"
		if out, ok := st.Outputs[sub.Name]; ok && out.MatchedRuleIndex >= 0 && out.MatchedRuleIndex < len(sub.Rules) {
			cond = sub.Rules[out.MatchedRuleIndex].Condition
		}
		line := fmt.Sprintf("%-*s  %s", pad, sub.Name, cond)
		if len(line) > width {
			width = len(line)
		}
		lines = append(lines, line)
	}

	rule := strings.Repeat("-", width)
	fmt.Fprintf(w, "\n%s\nResults\n%s\n", rule, rule)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%s\n", rule)
}
