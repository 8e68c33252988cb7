package models

import "testing"

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

func TestCacheEnabledDefaultsTrue(t *testing.T) {
	tests := []struct {
		name     string
		useCache *bool
		want     bool
	}{
		{name: "absent defaults to enabled", useCache: nil, want: true},
		{name: "explicit true", useCache: boolPtr(true), want: true},
		{name: "explicit false", useCache: boolPtr(false), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &CompletionRequest{UseCache: tt.useCache}
			if got := req.CacheEnabled(); got != tt.want {
				t.Errorf("CacheEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionRequestValidate(t *testing.T) {
	valid := []Message{{Role: RoleUser, Content: "hello"}}

	tests := []struct {
		name    string
		req     CompletionRequest
		wantErr bool
	}{
		{
			name: "valid request",
			req:  CompletionRequest{Messages: valid, Model: "gpt-4o"},
		},
		{
			name:    "no messages",
			req:     CompletionRequest{Model: "gpt-4o"},
			wantErr: true,
		},
		{
			name: "unknown role",
			req: CompletionRequest{
				Messages: []Message{{Role: "tool", Content: "x"}},
			},
			wantErr: true,
		},
		{
			name: "empty content",
			req: CompletionRequest{
				Messages: []Message{{Role: RoleUser, Content: ""}},
			},
			wantErr: true,
		},
		{
			name: "zero max_tokens rejected when set",
			req: CompletionRequest{
				Messages:  valid,
				MaxTokens: intPtr(0),
			},
			wantErr: true,
		},
		{
			name: "temperature out of range",
			req: CompletionRequest{
				Messages:    valid,
				Temperature: floatPtr(3.5),
			},
			wantErr: true,
		},
		{
			name: "temperature zero is a value, not an omission",
			req: CompletionRequest{
				Messages:    valid,
				Temperature: floatPtr(0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidateRoles(t *testing.T) {
	for _, role := range []string{RoleSystem, RoleUser, RoleAssistant} {
		m := Message{Role: role, Content: "content"}
		if err := m.Validate(); err != nil {
			t.Errorf("Validate() rejected role %q: %v", role, err)
		}
	}
}
