package schema

import (
	"strings"

	"github.com/liamcoop/wisepay/requirements"
)

// Length defaults for generated values of fields without bounds.
const (
	DefaultMinLength = 4
	DefaultMaxLength = 24
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateOptions controls GenerateExample.
type GenerateOptions struct {
	// IncludeOptional adds a value for optional fields too.
	IncludeOptional bool
}

// Gap names a field whose generated value does not pass the field's own
// rules. Gaps only occur for patterns the generator cannot satisfy.
type Gap struct {
	Key     string `json:"key"`
	Pattern string `json:"pattern,omitempty"`
	Value   string `json:"value"`
}

// GenerateExample returns a record with one value per selected field. The
// output depends only on the schema and opts.
func (cs *CompiledSchema) GenerateExample(opts GenerateOptions) Record {
	rec, _ := cs.GenerateReport(opts)
	return rec
}

// GenerateReport is GenerateExample plus the list of fields whose value is
// known not to validate.
func (cs *CompiledSchema) GenerateReport(opts GenerateOptions) (Record, []Gap) {
	rec := make(Record, len(cs.fields))
	var gaps []Gap
	for _, cf := range cs.fields {
		if !cf.fc.Required && !opts.IncludeOptional {
			continue
		}
		value, ok := cf.example()
		rec[cf.fc.Key] = value
		if !ok {
			gaps = append(gaps, Gap{Key: cf.fc.Key, Pattern: cf.fc.Pattern, Value: value})
		}
	}
	return rec, gaps
}

// GenerateExample compiles set and generates a record from it.
func GenerateExample(set *requirements.RequirementSet, opts GenerateOptions) (Record, error) {
	cs, err := Compile(set)
	if err != nil {
		return nil, err
	}
	return cs.GenerateExample(opts), nil
}

// example picks a value for the field and reports whether it passes the
// field's rules.
func (cf compiledField) example() (string, bool) {
	fc := cf.fc
	if fc.Kind() == requirements.Enumerated {
		return fc.AllowedValues[0], true
	}

	fallback := alphanumeric(fc.MinLength, fc.MaxLength)
	if fc.Pattern == "" {
		return fallback, cf.passes(fallback)
	}

	candidates := make([]string, 0, 3)
	if fc.Example != "" {
		candidates = append(candidates, fc.Example)
	}
	if v, ok := heuristic(fc.Key); ok {
		candidates = append(candidates, v)
	}
	if v, ok := synthesize(fc.Pattern, fc.MinLength, fc.MaxLength); ok {
		candidates = append(candidates, v)
	}
	for _, v := range candidates {
		if cf.passes(v) {
			return v, true
		}
	}
	return fallback, cf.passes(fallback)
}

func (cf compiledField) passes(value string) bool {
	return len(cf.rule.check(cf.fc.Key, value, nil)) == 0
}

// alphanumeric returns a deterministic string of length max(min, 4) clamped
// to max, where max defaults to 24.
func alphanumeric(min, max *int) string {
	n := DefaultMinLength
	if min != nil && *min > n {
		n = *min
	}
	upper := DefaultMaxLength
	if max != nil {
		upper = *max
	} else if n > upper {
		upper = n
	}
	if n > upper {
		n = upper
	}

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}
