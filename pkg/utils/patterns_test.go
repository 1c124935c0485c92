package utils_test

import (
	"testing"

	"github.com/buildherd/buildherd/pkg/utils"
)

func TestPatternMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		value    string
		want     bool
	}{
		{
			name:     "exact branch",
			patterns: []string{"main"},
			value:    "main",
			want:     true,
		},
		{
			name:     "single star stops at slash",
			patterns: []string{"release/*"},
			value:    "release/1.0/hotfix",
			want:     false,
		},
		{
			name:     "single star",
			patterns: []string{"release/*"},
			value:    "release/1.0",
			want:     true,
		},
		{
			name:     "double star",
			patterns: []string{"release/**"},
			value:    "release/1.0/hotfix",
			want:     true,
		},
		{
			name:     "dots are literal",
			patterns: []string{"v1.0"},
			value:    "v100",
			want:     false,
		},
		{
			name:     "question mark",
			patterns: []string{"stable-?"},
			value:    "stable-3",
			want:     true,
		},
		{
			name:     "character class",
			patterns: []string{"feature-[ab]"},
			value:    "feature-c",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := utils.NewPatternMatcher(tt.patterns)
			if err != nil {
				t.Fatalf("NewPatternMatcher() error = %v", err)
			}
			if got := pm.Match(tt.value); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestMatchRef(t *testing.T) {
	tests := []struct {
		pattern string
		ref     string
		want    bool
	}{
		{"main", "refs/heads/main", true},
		{"refs/heads/main", "refs/heads/main", true},
		{"release/*", "refs/heads/release/2.1", true},
		{"main", "refs/heads/maintenance", false},
		{"*", "refs/heads/feature/x", false},
		{"**", "refs/heads/feature/x", true},
	}

	for _, tt := range tests {
		if got := utils.MatchRef(tt.pattern, tt.ref); got != tt.want {
			t.Errorf("MatchRef(%q, %q) = %v, want %v", tt.pattern, tt.ref, got, tt.want)
		}
	}
}

func TestFilter_Allows(t *testing.T) {
	const pr = "https://github.com/owner/repo/pull/42"

	tests := []struct {
		name   string
		tokens []string
		want   bool
	}{
		{"no tokens", nil, true},
		{"substring include", []string{"owner/repo"}, true},
		{"substring miss", []string{"other/repo"}, false},
		{"dash excludes", []string{"-repo/pull/42"}, false},
		{"bang excludes", []string{"!owner/"}, false},
		{"exclusion wins", []string{"owner/", "-pull/42"}, false},
		{"glob include", []string{"https://github.com/owner/*/pull/*"}, true},
		{"blank tokens ignored", []string{"", "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := utils.NewFilter(tt.tokens).Allows(pr); got != tt.want {
				t.Errorf("Allows(%q) with %v = %v, want %v", pr, tt.tokens, got, tt.want)
			}
		})
	}
}

func TestCompileGlob(t *testing.T) {
	g, err := utils.CompileGlob(`feature-[!0-9]\*`)
	if err != nil {
		t.Fatalf("CompileGlob() error = %v", err)
	}
	if !g.Match("feature-x*") || g.Match("feature-1*") || g.Match("feature-xy") {
		t.Errorf("unexpected matches for %s", g)
	}

	if _, err := utils.CompileGlob("job-[z-a]"); err == nil {
		t.Error("expected an invalid class range to fail")
	}

	literal, err := utils.CompileGlob("[]x")
	if err != nil {
		t.Fatalf("CompileGlob() error = %v", err)
	}
	if !literal.Match("[]x") {
		t.Error("an empty class should be literal")
	}
}
