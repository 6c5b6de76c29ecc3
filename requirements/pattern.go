package requirements

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single pattern evaluation. Provider patterns are third
// party input and may backtrack badly.
const MatchTimeout = 100 * time.Millisecond

// Pattern is a compiled provider regex evaluated as a full-string match.
// Provider patterns are written for JavaScript, so they are compiled with
// ECMAScript semantics.
type Pattern struct {
	source string
	re     *regexp2.Regexp
}

// CompilePattern compiles src. It is the single place where the parser and the
// compiler agree on what counts as a valid pattern.
func CompilePattern(src string) (*Pattern, error) {
	// the bare source must compile on its own, "a)(b" is only valid once wrapped
	if _, err := regexp2.Compile(src, regexp2.ECMAScript); err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", src, err)
	}
	re, err := regexp2.Compile("^(?:"+src+")$", regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", src, err)
	}
	re.MatchTimeout = MatchTimeout
	return &Pattern{source: src, re: re}, nil
}

// Source returns the pattern as written by the provider.
func (p *Pattern) Source() string {
	return p.source
}

// MatchString reports whether the whole of s matches. A timeout counts as a
// mismatch.
func (p *Pattern) MatchString(s string) bool {
	m, err := p.re.FindStringMatch(s)
	if err != nil || m == nil {
		return false
	}
	return m.Index == 0 && m.Length == utf8.RuneCountInString(s)
}
