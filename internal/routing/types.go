// Package routing resolves which provider and model serve each movement of a
// piece: a default pairing plus per-movement overrides.
package routing

import (
	"strings"
)

// ModelConfig specifies a provider and model for a movement's agent calls.
type ModelConfig struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
}

// MovementRouting maps movements to provider+model configurations.
type MovementRouting struct {
	Default   ModelConfig            `json:"default" yaml:"default" mapstructure:"default"`
	Overrides map[string]ModelConfig `json:"overrides,omitempty" yaml:"overrides,omitempty" mapstructure:"overrides"`
}

// ParseModelSpec parses a "provider:model" colon-separated string into a
// ModelConfig. The first colon delimits: everything before it is the
// provider, everything after is the model ID. Without a colon the whole
// string is the model and the run's default provider applies.
//
// Model IDs containing colons cannot be represented with this format; known
// model IDs do not contain colons.
func ParseModelSpec(spec string) ModelConfig {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 2 {
		return ModelConfig{Provider: parts[0], Model: parts[1]}
	}
	return ModelConfig{Model: spec}
}
