package piece

import (
	"fmt"
)

// Validate checks the structural invariants of a loaded piece:
//   - the initial movement exists
//   - every rule's next target is a known movement or a sentinel
//   - parallel parents carry only aggregate rules, and their sub-movements
//     are leaves (no nested parallel) with no aggregate rules
//   - leaf movements never carry aggregate rules
//   - movement names are unique (including sub-movement names)
func (p *Piece) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("piece name is required")
	}
	if len(p.Movements) == 0 {
		return fmt.Errorf("piece %q has no movements", p.Name)
	}

	if dupes := p.buildIndex(); len(dupes) > 0 {
		return fmt.Errorf("duplicate movement names: %v", dupes)
	}

	if p.InitialMovement == "" {
		return fmt.Errorf("initial_movement is required")
	}
	if _, ok := p.index[p.InitialMovement]; !ok {
		return fmt.Errorf("initial_movement %q is not a movement", p.InitialMovement)
	}

	seen := make(map[string]bool, len(p.Movements))
	for _, m := range p.Movements {
		seen[m.Name] = true
	}

	for _, m := range p.Movements {
		if err := p.validateMovement(m, seen); err != nil {
			return err
		}
	}
	return nil
}

func (p *Piece) validateMovement(m *Movement, seen map[string]bool) error {
	if m.Name == "" {
		return fmt.Errorf("movement name is required")
	}

	if m.IsParallel() {
		if m.Instruction != "" {
			return fmt.Errorf("movement %q: parallel parents are not executed and must not carry an instruction", m.Name)
		}
		for i := range m.Rules {
			if !m.Rules[i].IsAggregate() {
				return fmt.Errorf("movement %q: rule %d must be an aggregate (all/any) condition on a parallel parent", m.Name, i+1)
			}
		}
		for _, sub := range m.Parallel {
			if sub.IsParallel() {
				return fmt.Errorf("movement %q: sub-movement %q must not itself be parallel", m.Name, sub.Name)
			}
			if seen[sub.Name] {
				return fmt.Errorf("sub-movement %q shadows another movement name", sub.Name)
			}
			seen[sub.Name] = true
			if err := p.validateLeaf(sub); err != nil {
				return err
			}
		}
	} else if err := p.validateLeaf(m); err != nil {
		return err
	}

	return p.validateTargets(m)
}

func (p *Piece) validateLeaf(m *Movement) error {
	if m.Instruction == "" {
		return fmt.Errorf("movement %q: instruction is required", m.Name)
	}
	for i := range m.Rules {
		if m.Rules[i].IsAggregate() {
			return fmt.Errorf("movement %q: rule %d is an aggregate condition but the movement has no parallel sub-movements", m.Name, i+1)
		}
	}
	return nil
}

// validateTargets checks rule next targets for a movement and its sub-movements.
// Sub-movement rules do not route (their matched condition feeds the parent's
// aggregates), so a non-empty next on a sub-movement rule is rejected.
func (p *Piece) validateTargets(m *Movement) error {
	for i := range m.Rules {
		next := m.Rules[i].Next
		if next == "" || next == NextComplete || next == NextAbort {
			continue
		}
		if _, ok := p.index[next]; !ok {
			return fmt.Errorf("movement %q: rule %d routes to unknown movement %q", m.Name, i+1, next)
		}
	}
	for _, sub := range m.Parallel {
		for i := range sub.Rules {
			if sub.Rules[i].Next != "" {
				return fmt.Errorf("sub-movement %q: rule %d must not declare a next target", sub.Name, i+1)
			}
		}
	}
	return nil
}
