package domain

import "testing"

func TestApiTokenScopes(t *testing.T) {
	tests := []struct {
		name     string
		scopes   []string
		access   string
		endpoint string
		want     bool
	}{
		{"read grants read", []string{"read"}, "read", "posts", true},
		{"read denies write", []string{"read"}, "write", "posts", false},
		{"write grants read", []string{"write"}, "read", "posts", true},
		{"scoped write matches endpoint", []string{"write:posts"}, "write", "posts", true},
		{"scoped write other endpoint", []string{"write:posts"}, "write", "follows", false},
		{"no scopes", nil, "read", "posts", false},
		{"mixed scopes", []string{"read", "write:follows"}, "write", "follows", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &ApiToken{Scopes: tt.scopes}
			if got := token.Can(tt.access, tt.endpoint); got != tt.want {
				t.Errorf("Can(%q, %q) = %v, want %v", tt.access, tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestApiTokenShortcuts(t *testing.T) {
	token := &ApiToken{Scopes: []string{"read:posts"}}
	if !token.CanRead("posts") {
		t.Error("Expected CanRead(posts)")
	}
	if token.CanWrite("posts") {
		t.Error("Did not expect CanWrite(posts)")
	}
}
