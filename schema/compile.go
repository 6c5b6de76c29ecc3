package schema

import (
	"fmt"
	"unicode/utf8"

	"github.com/liamcoop/wisepay/requirements"
)

// Record is a recipient submission keyed by flat field key, e.g.
// "address.city". Values are text.
type Record map[string]string

// fieldRule is the compiled check for one field. Exactly one of the two
// variants exists per field.
type fieldRule interface {
	check(key, value string, errs []FieldError) []FieldError
}

type enumRule struct {
	allowed []string
	set     map[string]struct{}
}

func (r enumRule) check(key, value string, errs []FieldError) []FieldError {
	if _, ok := r.set[value]; ok {
		return errs
	}
	return append(errs, notAllowed(key, r.allowed))
}

type textRule struct {
	min, max *int
	pattern  *requirements.Pattern
}

func (r textRule) check(key, value string, errs []FieldError) []FieldError {
	n := utf8.RuneCountInString(value)
	if r.min != nil && n < *r.min {
		errs = append(errs, tooShort(key, *r.min))
	}
	if r.max != nil && n > *r.max {
		errs = append(errs, tooLong(key, *r.max))
	}
	if r.pattern != nil && !r.pattern.MatchString(value) {
		errs = append(errs, patternMismatch(key, r.pattern.Source()))
	}
	return errs
}

type compiledField struct {
	fc   requirements.FieldConstraint
	rule fieldRule
}

// CompiledSchema is the validator and generator for one recipient type.
// It is immutable after Compile and safe for concurrent use.
type CompiledSchema struct {
	recipientType string
	fields        []compiledField
}

// Compile builds a CompiledSchema from a parsed requirement set.
func Compile(set *requirements.RequirementSet) (*CompiledSchema, error) {
	if set == nil {
		return nil, fmt.Errorf("compile schema: nil requirement set")
	}

	cs := &CompiledSchema{
		recipientType: set.Type,
		fields:        make([]compiledField, 0, len(set.Fields)),
	}
	for _, fc := range set.Fields {
		cf := compiledField{fc: fc}
		if fc.Kind() == requirements.Enumerated {
			rule := enumRule{
				allowed: append([]string(nil), fc.AllowedValues...),
				set:     make(map[string]struct{}, len(fc.AllowedValues)),
			}
			for _, v := range fc.AllowedValues {
				rule.set[v] = struct{}{}
			}
			cf.rule = rule
		} else {
			rule := textRule{min: fc.MinLength, max: fc.MaxLength}
			if fc.Pattern != "" {
				p, err := requirements.CompilePattern(fc.Pattern)
				if err != nil {
					return nil, fmt.Errorf("compile schema %s: field %s: %w", set.Type, fc.Key, err)
				}
				rule.pattern = p
			}
			cf.rule = rule
		}
		cs.fields = append(cs.fields, cf)
	}
	return cs, nil
}

// Type returns the recipient type the schema was compiled for.
func (cs *CompiledSchema) Type() string {
	return cs.recipientType
}

// Fields returns a copy of the field constraints in order.
func (cs *CompiledSchema) Fields() []requirements.FieldConstraint {
	out := make([]requirements.FieldConstraint, len(cs.fields))
	for i, cf := range cs.fields {
		out[i] = cf.fc
	}
	return out
}

// Result is the outcome of Validate. Record holds the normalized record and is
// only set when Errors is empty.
type Result struct {
	Record Record       `json:"record,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}

// OK reports whether the record passed.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err returns a *ValidationError for a failed result, nil otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}

// Validate checks every field of rec and returns all violations in field
// order. Keys the schema does not know are dropped from the normalized record.
// A key that is present with an empty value counts as present.
func (cs *CompiledSchema) Validate(rec Record) Result {
	var errs []FieldError
	normalized := make(Record, len(cs.fields))

	for _, cf := range cs.fields {
		value, ok := rec[cf.fc.Key]
		if !ok {
			if cf.fc.Required {
				errs = append(errs, required(cf.fc.Key))
			}
			continue
		}
		before := len(errs)
		errs = cf.rule.check(cf.fc.Key, value, errs)
		if len(errs) == before {
			normalized[cf.fc.Key] = value
		}
	}

	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Record: normalized}
}
