package gcp

import (
	"context"
	"testing"
)

func TestNormalizeSecretPath(t *testing.T) {
	c := &SecretManagerClient{projectID: "demo-project"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "full versioned path unchanged",
			in:   "projects/p/secrets/anthropic-api-key/versions/3",
			want: "projects/p/secrets/anthropic-api-key/versions/3",
		},
		{
			name: "versionless path gets latest",
			in:   "projects/p/secrets/anthropic-api-key",
			want: "projects/p/secrets/anthropic-api-key/versions/latest",
		},
		{
			name: "bare name resolved against project",
			in:   "anthropic-api-key",
			want: "projects/demo-project/secrets/anthropic-api-key/versions/latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.normalizeSecretPath(tt.in); got != tt.want {
				t.Errorf("normalizeSecretPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetProjectIDFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "env-project")

	got, err := getProjectID(context.Background())
	if err != nil {
		t.Fatalf("getProjectID() error = %v", err)
	}
	if got != "env-project" {
		t.Errorf("getProjectID() = %q, want env-project", got)
	}
}
