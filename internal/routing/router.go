package routing

import (
	"sort"

	"github.com/ensembleworks/ensemble/internal/piece"
)

// Router resolves the provider and model for a given movement.
type Router struct {
	routing *MovementRouting
}

// NewRouter creates a router. Nil-safe: nil routing returns a no-op router.
func NewRouter(routing *MovementRouting) *Router {
	return &Router{routing: routing}
}

// ModelForMovement returns the ModelConfig for the named movement: the
// override if one exists, otherwise the default.
func (r *Router) ModelForMovement(movement string) ModelConfig {
	if r.routing == nil {
		return ModelConfig{}
	}
	if r.routing.Overrides != nil {
		if cfg, ok := r.routing.Overrides[movement]; ok {
			return cfg
		}
	}
	return r.routing.Default
}

// IsConfigured reports whether the router has usable routing config.
func (r *Router) IsConfigured() bool {
	if r.routing == nil {
		return false
	}
	return r.routing.Default.Provider != "" || r.routing.Default.Model != "" || len(r.routing.Overrides) > 0
}

// Providers returns the unique provider names referenced in the config,
// sorted for deterministic ordering.
func (r *Router) Providers() []string {
	if r.routing == nil {
		return nil
	}

	seen := make(map[string]bool)
	if r.routing.Default.Provider != "" {
		seen[r.routing.Default.Provider] = true
	}
	for _, cfg := range r.routing.Overrides {
		if cfg.Provider != "" {
			seen[cfg.Provider] = true
		}
	}

	providers := make([]string, 0, len(seen))
	for name := range seen {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// UsesProvider reports whether the named provider appears in the config.
func (r *Router) UsesProvider(provider string) bool {
	if r.routing == nil {
		return false
	}
	if r.routing.Default.Provider == provider {
		return true
	}
	for _, cfg := range r.routing.Overrides {
		if cfg.Provider == provider {
			return true
		}
	}
	return false
}

// UnknownMovements returns override keys that name no movement (top-level or
// sub-movement) of the given piece. Returns nil when every key resolves.
func (r *Router) UnknownMovements(p *piece.Piece) []string {
	if r.routing == nil || p == nil {
		return nil
	}

	known := make(map[string]bool)
	for _, mv := range p.Movements {
		known[mv.Name] = true
		for _, sub := range mv.Parallel {
			known[sub.Name] = true
		}
	}

	var unknown []string
	for movement := range r.routing.Overrides {
		if !known[movement] {
			unknown = append(unknown, movement)
		}
	}
	sort.Strings(unknown)
	return unknown
}
