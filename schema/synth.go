package schema

import (
	"regexp/syntax"
	"strings"
	"unicode/utf8"
)

// maxGrow bounds how many extra repetitions synthesize tries per variable
// quantifier while looking for a string inside the length bounds.
const maxGrow = 64

// maxSynthLen caps the size of a synthesized string.
const maxSynthLen = 4096

var preferredRunes = []rune{'a', 'A', '1', '0', ' '}

// synthesize builds a short string from the pattern's syntax tree. Patterns
// Go cannot parse (lookarounds, backreferences) are not synthesized.
func synthesize(pattern string, min, max *int) (string, bool) {
	// not simplified: Simplify turns x{0,n} into nested quests that all
	// emit once grow is positive
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}

	first := ""
	for grow := 0; grow <= maxGrow; grow = nextGrow(grow) {
		var b strings.Builder
		if !emit(re, &b, grow) {
			if grow == 0 {
				return "", false
			}
			break
		}
		s := b.String()
		if grow == 0 {
			first = s
		}
		n := utf8.RuneCountInString(s)
		if max != nil && n > *max {
			break
		}
		if min == nil || n >= *min {
			return s, true
		}
	}
	return first, true
}

func nextGrow(g int) int {
	if g == 0 {
		return 1
	}
	return g * 2
}

// emit writes one string matched by re. Variable quantifiers repeat their
// minimum count plus grow, capped at their maximum.
func emit(re *syntax.Regexp, b *strings.Builder, grow int) bool {
	switch re.Op {
	case syntax.OpNoMatch:
		return false
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return true
	case syntax.OpLiteral:
		for _, r := range re.Rune {
			b.WriteRune(r)
		}
		return true
	case syntax.OpCharClass:
		r, ok := pickRune(re.Rune)
		if !ok {
			return false
		}
		b.WriteRune(r)
		return true
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteByte('a')
		return true
	case syntax.OpCapture:
		return emit(re.Sub[0], b, grow)
	case syntax.OpStar:
		return repeat(re.Sub[0], b, grow, grow)
	case syntax.OpPlus:
		return repeat(re.Sub[0], b, 1+grow, 1+grow)
	case syntax.OpQuest:
		if grow > 0 {
			return emit(re.Sub[0], b, grow)
		}
		return true
	case syntax.OpRepeat:
		n := re.Min + grow
		if re.Max >= 0 && n > re.Max {
			n = re.Max
		}
		return repeat(re.Sub[0], b, n, grow)
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if !emit(sub, b, grow) {
				return false
			}
		}
		return true
	case syntax.OpAlternate:
		for _, sub := range re.Sub {
			var alt strings.Builder
			if emit(sub, &alt, grow) {
				b.WriteString(alt.String())
				return true
			}
		}
		return false
	}
	return false
}

func repeat(re *syntax.Regexp, b *strings.Builder, n, grow int) bool {
	for i := 0; i < n; i++ {
		if b.Len() > maxSynthLen || !emit(re, b, grow) {
			return false
		}
	}
	return true
}

// pickRune chooses a readable rune from a class given as lo/hi pairs.
func pickRune(ranges []rune) (rune, bool) {
	if len(ranges) == 0 {
		return 0, false
	}
	for _, p := range preferredRunes {
		if inRanges(p, ranges) {
			return p, true
		}
	}
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		if lo < '!' {
			lo = '!'
		}
		if lo <= hi {
			return lo, true
		}
	}
	return ranges[0], true
}

func inRanges(r rune, ranges []rune) bool {
	for i := 0; i+1 < len(ranges); i += 2 {
		if r >= ranges[i] && r <= ranges[i+1] {
			return true
		}
	}
	return false
}
