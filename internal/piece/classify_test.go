package piece

import (
	"reflect"
	"testing"
)

func TestClassifyRule(t *testing.T) {
	tests := []struct {
		name         string
		condition    string
		wantAI       string
		wantAggType  AggregateType
		wantAggConds []string
		wantTagBased bool
		wantErr      bool
	}{
		{
			name:         "plain text is tag-based",
			condition:    "implementation complete",
			wantTagBased: true,
		},
		{
			name:      "ai condition with double quotes",
			condition: `ai("the tests passed")`,
			wantAI:    "the tests passed",
		},
		{
			name:      "ai condition without quotes",
			condition: "ai(the plan covers all files)",
			wantAI:    "the plan covers all files",
		},
		{
			name:         "all with single condition",
			condition:    `all("approved")`,
			wantAggType:  AggregateAll,
			wantAggConds: []string{"approved"},
		},
		{
			name:         "any with multiple conditions",
			condition:    `any("approved", "needs_fix")`,
			wantAggType:  AggregateAny,
			wantAggConds: []string{"approved", "needs_fix"},
		},
		{
			name:         "single-quoted aggregate arguments",
			condition:    `all('ok', 'done')`,
			wantAggType:  AggregateAll,
			wantAggConds: []string{"ok", "done"},
		},
		{
			name:      "empty condition",
			condition: "   ",
			wantErr:   true,
		},
		{
			name:      "empty ai condition",
			condition: `ai("")`,
			wantErr:   true,
		},
		{
			name:      "aggregate without arguments",
			condition: "all()",
			wantErr:   true,
		},
		{
			name:      "aggregate with unquoted argument",
			condition: "any(approved)",
			wantErr:   true,
		},
		{
			name:         "text mentioning all is still tag-based",
			condition:    "all files reviewed",
			wantTagBased: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{Condition: tt.condition}
			err := classifyRule(&r)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("classifyRule(%q) expected error, got none", tt.condition)
				}
				return
			}
			if err != nil {
				t.Fatalf("classifyRule(%q) unexpected error: %v", tt.condition, err)
			}
			if r.AIText != tt.wantAI {
				t.Errorf("AIText = %q, want %q", r.AIText, tt.wantAI)
			}
			if r.AggregateType != tt.wantAggType {
				t.Errorf("AggregateType = %q, want %q", r.AggregateType, tt.wantAggType)
			}
			if !reflect.DeepEqual(r.AggregateConditions, tt.wantAggConds) {
				t.Errorf("AggregateConditions = %v, want %v", r.AggregateConditions, tt.wantAggConds)
			}
			if r.IsTagBased() != tt.wantTagBased {
				t.Errorf("IsTagBased() = %v, want %v", r.IsTagBased(), tt.wantTagBased)
			}
		})
	}
}

func TestClassificationIsExclusive(t *testing.T) {
	r := Rule{Condition: `ai("looks good")`}
	if err := classifyRule(&r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsAI() && (r.IsAggregate() || r.IsTagBased()) {
		t.Error("rule has more than one classification")
	}
}
