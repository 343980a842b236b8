package engine

import "fmt"

// PermissionMode is the tool-access ceiling granted to an agent call for one
// movement. Modes are totally ordered: readonly < edit < full.
type PermissionMode string

const (
	PermissionReadOnly PermissionMode = "readonly"
	PermissionEdit     PermissionMode = "edit"
	PermissionFull     PermissionMode = "full"
)

// rank returns the position of the mode in the strictness order. Unknown
// modes rank below readonly so they never win a max().
func (m PermissionMode) rank() int {
	switch m {
	case PermissionReadOnly:
		return 1
	case PermissionEdit:
		return 2
	case PermissionFull:
		return 3
	}
	return 0
}

// Valid reports whether the mode is one of the three known levels.
func (m PermissionMode) Valid() bool {
	return m.rank() > 0
}

// ProviderProfile is one provider's permission configuration: a default mode
// plus per-movement overrides.
type ProviderProfile struct {
	Default   PermissionMode
	Movements map[string]PermissionMode
}

// PermissionProfiles maps provider name to profile for one config layer
// (project or global).
type PermissionProfiles map[string]ProviderProfile

// movementOverride returns the per-movement override for a provider, if any.
func (p PermissionProfiles) movementOverride(provider, movement string) (PermissionMode, bool) {
	profile, ok := p[provider]
	if !ok {
		return "", false
	}
	mode, ok := profile.Movements[movement]
	return mode, ok
}

// providerDefault returns the provider's default mode, if set.
func (p PermissionProfiles) providerDefault(provider string) (PermissionMode, bool) {
	profile, ok := p[provider]
	if !ok || profile.Default == "" {
		return "", false
	}
	return profile.Default, true
}

// applyFloor raises resolved to required when required is the higher mode.
// The floor never lowers a resolved mode.
func applyFloor(resolved, required PermissionMode) PermissionMode {
	if required.rank() > resolved.rank() {
		return required
	}
	return resolved
}

// ResolvePermission resolves the effective permission mode for a movement.
// Priority: project movement-override, then global movement-override, then
// project provider default, then global provider default, then the movement's
// own required mode on its own. At every step the required mode acts as a
// floor. Resolution failure is an error: permission never silently defaults
// to the most permissive mode.
func ResolvePermission(movement string, required PermissionMode, provider string, project, global PermissionProfiles) (PermissionMode, error) {
	if required != "" && !required.Valid() {
		return "", fmt.Errorf("movement %q: invalid required permission mode %q", movement, required)
	}

	if provider != "" {
		if mode, ok := project.movementOverride(provider, movement); ok {
			return applyFloor(mode, required), nil
		}
		if mode, ok := global.movementOverride(provider, movement); ok {
			return applyFloor(mode, required), nil
		}
		if mode, ok := project.providerDefault(provider); ok {
			return applyFloor(mode, required), nil
		}
		if mode, ok := global.providerDefault(provider); ok {
			return applyFloor(mode, required), nil
		}
	}

	if required != "" {
		return required, nil
	}
	return "", fmt.Errorf("movement %q: %w (provider %q has no override or default and the movement declares no required mode)",
		movement, ErrUnresolvedPermission, provider)
}
