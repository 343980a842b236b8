package routing

import (
	"reflect"
	"testing"

	"github.com/ensembleworks/ensemble/internal/piece"
)

func TestParseModelSpec(t *testing.T) {
	tests := []struct {
		spec string
		want ModelConfig
	}{
		{"claude:claude-sonnet-4", ModelConfig{Provider: "claude", Model: "claude-sonnet-4"}},
		{"claude-sonnet-4", ModelConfig{Model: "claude-sonnet-4"}},
		{"", ModelConfig{}},
	}
	for _, tt := range tests {
		if got := ParseModelSpec(tt.spec); got != tt.want {
			t.Errorf("ParseModelSpec(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}
}

func TestModelForMovement(t *testing.T) {
	r := NewRouter(&MovementRouting{
		Default: ModelConfig{Provider: "claude", Model: "claude-sonnet-4"},
		Overrides: map[string]ModelConfig{
			"review": {Provider: "claude", Model: "claude-opus-4"},
		},
	})

	if got := r.ModelForMovement("review"); got.Model != "claude-opus-4" {
		t.Errorf("override not applied: %+v", got)
	}
	if got := r.ModelForMovement("plan"); got.Model != "claude-sonnet-4" {
		t.Errorf("default not applied: %+v", got)
	}
}

func TestNilRouter(t *testing.T) {
	r := NewRouter(nil)
	if r.IsConfigured() {
		t.Error("nil routing reported configured")
	}
	if got := r.ModelForMovement("plan"); got != (ModelConfig{}) {
		t.Errorf("nil routing returned %+v", got)
	}
	if r.Providers() != nil {
		t.Error("nil routing returned providers")
	}
}

func TestProviders(t *testing.T) {
	r := NewRouter(&MovementRouting{
		Default: ModelConfig{Provider: "claude"},
		Overrides: map[string]ModelConfig{
			"a": {Provider: "zeta"},
			"b": {Provider: "claude"},
		},
	})
	if got := r.Providers(); !reflect.DeepEqual(got, []string{"claude", "zeta"}) {
		t.Errorf("Providers() = %v", got)
	}
	if !r.UsesProvider("zeta") || r.UsesProvider("missing") {
		t.Error("UsesProvider answers wrong")
	}
}

func TestUnknownMovements(t *testing.T) {
	p, err := piece.Parse([]byte(`
name: demo
initial_movement: plan
movements:
  - name: plan
    instruction: Plan
    rules:
      - condition: done
        next: fanout
  - name: fanout
    rules:
      - condition: all("ok")
        next: COMPLETE
    parallel:
      - name: worker-a
        instruction: Work
        rules:
          - condition: ok
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	r := NewRouter(&MovementRouting{
		Overrides: map[string]ModelConfig{
			"plan":     {Model: "m"},
			"worker-a": {Model: "m"},
			"ghost":    {Model: "m"},
		},
	})
	if got := r.UnknownMovements(p); !reflect.DeepEqual(got, []string{"ghost"}) {
		t.Errorf("UnknownMovements() = %v", got)
	}
}
