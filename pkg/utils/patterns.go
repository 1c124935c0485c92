package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob is a compiled wildcard pattern over slash separated names such as
// branches and job names. `*` and `?` stop at a slash, `**` does not, and
// `[...]` or `[!...]` match one character of a class.
type Glob struct {
	source string
	re     *regexp.Regexp
}

// CompileGlob compiles pattern. A backslash escapes the next character.
func CompileGlob(pattern string) (*Glob, error) {
	var b strings.Builder
	b.WriteString("^")
	for rest := pattern; rest != ""; {
		switch {
		case strings.HasPrefix(rest, "**"):
			b.WriteString(".*")
			rest = rest[2:]
		case rest[0] == '*':
			b.WriteString("[^/]*")
			rest = rest[1:]
		case rest[0] == '?':
			b.WriteString("[^/]")
			rest = rest[1:]
		case rest[0] == '[' && strings.IndexByte(rest, ']') > 1:
			end := strings.IndexByte(rest, ']')
			class := rest[1:end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			rest = rest[end+1:]
		case rest[0] == '\\' && len(rest) > 1:
			b.WriteString(regexp.QuoteMeta(rest[1:2]))
			rest = rest[2:]
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &Glob{source: pattern, re: re}, nil
}

// Match reports whether the whole of value matches
func (g *Glob) Match(value string) bool {
	return g.re.MatchString(value)
}

func (g *Glob) String() string {
	return g.source
}

// IsGlobPattern checks if a string contains glob wildcards
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// PatternMatcher matches a value against any of several globs
type PatternMatcher struct {
	globs []*Glob
}

// NewPatternMatcher compiles patterns
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{globs: make([]*Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := CompileGlob(pattern)
		if err != nil {
			return nil, err
		}
		pm.globs = append(pm.globs, g)
	}
	return pm, nil
}

// Match checks if a value matches any pattern
func (pm *PatternMatcher) Match(value string) bool {
	for _, g := range pm.globs {
		if g.Match(value) {
			return true
		}
	}
	return false
}

// MatchRef matches a git ref against a branch pattern. Patterns may be
// given as short names (`main`, `release/*`) or full refs.
func MatchRef(pattern, ref string) bool {
	short := strings.TrimPrefix(ref, "refs/heads/")
	pattern = strings.TrimPrefix(pattern, "refs/heads/")
	g, err := CompileGlob(pattern)
	if err != nil {
		return pattern == short
	}
	return g.Match(short)
}

// Filter is an include/exclude token list. Tokens prefixed with `-` or `!`
// exclude; the others include. A token without wildcards matches as a
// substring, a glob token must match the whole value.
type Filter struct {
	include []matcher
	exclude []matcher
}

type matcher func(string) bool

func tokenMatcher(token string) matcher {
	if IsGlobPattern(token) {
		if g, err := CompileGlob(token); err == nil {
			return g.Match
		}
		return func(string) bool { return false }
	}
	return func(value string) bool { return strings.Contains(value, token) }
}

// NewFilter parses filter tokens. Blank tokens are ignored.
func NewFilter(tokens []string) *Filter {
	f := &Filter{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if token[0] == '-' || token[0] == '!' {
			if rest := strings.TrimSpace(token[1:]); rest != "" {
				f.exclude = append(f.exclude, tokenMatcher(rest))
			}
			continue
		}
		f.include = append(f.include, tokenMatcher(token))
	}
	return f
}

// Allows reports whether value passes the filter. An exclusion always
// wins; without inclusion tokens every value is included.
func (f *Filter) Allows(value string) bool {
	for _, m := range f.exclude {
		if m(value) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, m := range f.include {
		if m(value) {
			return true
		}
	}
	return false
}
