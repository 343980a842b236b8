package piece

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a piece document from disk.
func Load(path string) (*Piece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read piece file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse unmarshals a piece document, classifies every rule, and validates the
// movement graph. The returned piece is immutable for the duration of a run.
func Parse(data []byte) (*Piece, error) {
	var p Piece
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse piece document: %w", err)
	}

	for _, m := range p.Movements {
		if err := classifyMovementRules(m); err != nil {
			return nil, err
		}
		for _, sub := range m.Parallel {
			if err := classifyMovementRules(sub); err != nil {
				return nil, err
			}
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func classifyMovementRules(m *Movement) error {
	for i := range m.Rules {
		if err := classifyRule(&m.Rules[i]); err != nil {
			return fmt.Errorf("movement %q rule %d: %w", m.Name, i+1, err)
		}
	}
	return nil
}
