// Package piece defines the declarative workflow model: a piece is an ordered
// graph of named movements, and each movement routes to the next one through
// an ordered list of rules.
package piece

// Sentinel values accepted in a rule's "next" field in place of a movement name.
const (
	NextComplete = "COMPLETE"
	NextAbort    = "ABORT"
)

// SessionRefresh is the session hint that forces a movement to start a fresh
// agent session instead of resuming the previous one for the same agent.
const SessionRefresh = "refresh"

// AggregateType selects the combinator for an aggregate rule.
type AggregateType string

const (
	AggregateAll AggregateType = "all"
	AggregateAny AggregateType = "any"
)

// Rule is a single transition out of a movement. The Condition field holds the
// author-facing text; classification (tag-based, ai-judged, or aggregate) is
// derived from it at load time and exactly one classification applies.
type Rule struct {
	Condition       string `yaml:"condition"`
	Next            string `yaml:"next,omitempty"`
	InteractiveOnly bool   `yaml:"interactive_only,omitempty"`

	// Derived by classifyRule. Empty/zero for tag-based rules.
	AIText              string        `yaml:"-"`
	AggregateType       AggregateType `yaml:"-"`
	AggregateConditions []string      `yaml:"-"`
}

// IsAI reports whether the rule is an ai() condition judged by the AI judge.
func (r *Rule) IsAI() bool {
	return r.AIText != ""
}

// IsAggregate reports whether the rule is an all()/any() aggregate condition.
func (r *Rule) IsAggregate() bool {
	return r.AggregateType != ""
}

// IsTagBased reports whether the rule is selected via a status tag emitted by
// the agent ([NAME:n]).
func (r *Rule) IsTagBased() bool {
	return !r.IsAI() && !r.IsAggregate()
}

// Movement is one node in the piece graph. A movement with a non-empty
// Parallel list is a parallel parent: it is never executed as an agent call
// itself, and its rules must all be aggregate conditions over the
// sub-movements' outcomes.
type Movement struct {
	Name        string      `yaml:"name"`
	Agent       string      `yaml:"agent,omitempty"`
	Instruction string      `yaml:"instruction,omitempty"`
	Rules       []Rule      `yaml:"rules,omitempty"`
	Parallel    []*Movement `yaml:"parallel,omitempty"`
	Reports     []string    `yaml:"reports,omitempty"`

	// RequiredPermission is a floor: it can raise the resolved permission
	// mode for this movement but never lower it.
	RequiredPermission string `yaml:"required_permission,omitempty"`

	// Session is the session hint; "refresh" forces a fresh session.
	Session string `yaml:"session,omitempty"`
}

// IsParallel reports whether the movement is a parallel parent.
func (m *Movement) IsParallel() bool {
	return len(m.Parallel) > 0
}

// NeedsStatusJudgment reports whether the movement requires a Phase 3 status
// judgment call: true when at least one rule relies on tag-based detection.
func (m *Movement) NeedsStatusJudgment() bool {
	for i := range m.Rules {
		if m.Rules[i].IsTagBased() {
			return true
		}
	}
	return false
}

// Piece is the top-level workflow definition. Movements keeps declaration
// order; the name index is built at load time.
type Piece struct {
	Name            string      `yaml:"name"`
	InitialMovement string      `yaml:"initial_movement"`
	MaxIterations   int         `yaml:"max_iterations,omitempty"`
	Movements       []*Movement `yaml:"movements"`

	index map[string]*Movement
}

// Movement looks up a movement by name.
func (p *Piece) Movement(name string) (*Movement, bool) {
	m, ok := p.index[name]
	return m, ok
}

// buildIndex populates the name index from the movement list. Duplicate names
// are reported so validation can fail loudly instead of shadowing a movement.
func (p *Piece) buildIndex() []string {
	p.index = make(map[string]*Movement, len(p.Movements))
	var dupes []string
	for _, m := range p.Movements {
		if _, exists := p.index[m.Name]; exists {
			dupes = append(dupes, m.Name)
			continue
		}
		p.index[m.Name] = m
	}
	return dupes
}
