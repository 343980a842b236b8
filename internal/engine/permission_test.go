package engine

import (
	"errors"
	"testing"
)

func TestResolvePermission(t *testing.T) {
	project := PermissionProfiles{
		"claude": {
			Default:   PermissionEdit,
			Movements: map[string]PermissionMode{"deploy": PermissionReadOnly},
		},
	}
	global := PermissionProfiles{
		"claude": {
			Default:   PermissionFull,
			Movements: map[string]PermissionMode{"deploy": PermissionFull, "audit": PermissionReadOnly},
		},
	}

	tests := []struct {
		name     string
		movement string
		required PermissionMode
		provider string
		project  PermissionProfiles
		global   PermissionProfiles
		want     PermissionMode
		wantErr  bool
	}{
		{
			name:     "project movement override wins over global",
			movement: "deploy",
			provider: "claude",
			project:  project,
			global:   global,
			want:     PermissionReadOnly,
		},
		{
			name:     "global movement override when project has none",
			movement: "audit",
			provider: "claude",
			project:  PermissionProfiles{},
			global:   global,
			want:     PermissionReadOnly,
		},
		{
			name:     "project provider default when no movement override",
			movement: "build",
			provider: "claude",
			project:  project,
			global:   global,
			want:     PermissionEdit,
		},
		{
			name:     "global provider default as last provider source",
			movement: "build",
			provider: "claude",
			project:  PermissionProfiles{},
			global:   global,
			want:     PermissionFull,
		},
		{
			name:     "required mode raises a weaker override",
			movement: "deploy",
			required: PermissionEdit,
			provider: "claude",
			project:  project,
			global:   global,
			want:     PermissionEdit,
		},
		{
			name:     "required mode never lowers a stronger override",
			movement: "build",
			required: PermissionReadOnly,
			provider: "claude",
			project:  project,
			global:   global,
			want:     PermissionEdit,
		},
		{
			name:     "required mode alone without a provider",
			movement: "build",
			required: PermissionEdit,
			want:     PermissionEdit,
		},
		{
			name:     "provider with no profile data falls back to required",
			movement: "build",
			required: PermissionReadOnly,
			provider: "claude",
			want:     PermissionReadOnly,
		},
		{
			name:     "nothing to resolve from",
			movement: "build",
			wantErr:  true,
		},
		{
			name:     "provider set but no data anywhere",
			movement: "build",
			provider: "claude",
			wantErr:  true,
		},
		{
			name:     "invalid required mode",
			movement: "build",
			required: PermissionMode("sudo"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePermission(tt.movement, tt.required, tt.provider, tt.project, tt.global)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolvePermission() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePermission() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePermission() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePermissionUnresolvedSentinel(t *testing.T) {
	_, err := ResolvePermission("build", "", "claude", nil, nil)
	if !errors.Is(err, ErrUnresolvedPermission) {
		t.Fatalf("error = %v, want ErrUnresolvedPermission", err)
	}
}

func TestApplyFloor(t *testing.T) {
	if got := applyFloor(PermissionReadOnly, PermissionFull); got != PermissionFull {
		t.Errorf("applyFloor(readonly, full) = %q, want full", got)
	}
	if got := applyFloor(PermissionFull, PermissionReadOnly); got != PermissionFull {
		t.Errorf("applyFloor(full, readonly) = %q, want full", got)
	}
	if got := applyFloor(PermissionEdit, ""); got != PermissionEdit {
		t.Errorf("applyFloor(edit, none) = %q, want edit", got)
	}
}
