package requirements

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Document is the provider's recipient requirements response for one corridor.
// It lists every recipient type the provider accepts, in the provider's order.
// Decoding accepts the wrapped object and the bare array form.
type Document struct {
	Requirements []Requirement `json:"requirements"`
}

// Requirement describes one recipient type, e.g. "aba" or "iban".
type Requirement struct {
	Type   string  `json:"type"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Field is a section of the recipient form. Each group entry is one input slot.
type Field struct {
	Name  string       `json:"name,omitempty"`
	Group []FieldGroup `json:"group"`
}

// FieldGroup is a single input slot with its validation rules as supplied by
// the provider.
type FieldGroup struct {
	Key              string         `json:"key"`
	Name             string         `json:"name"`
	Type             string         `json:"type,omitempty"`
	Required         bool           `json:"required"`
	MinLength        Bound          `json:"minLength"`
	MaxLength        Bound          `json:"maxLength"`
	ValidationRegexp string         `json:"validationRegexp,omitempty"`
	Example          string         `json:"example,omitempty"`
	RefreshOnChange  bool           `json:"refreshRequirementsOnChange,omitempty"`
	ValuesAllowed    []AllowedValue `json:"valuesAllowed,omitempty"`
}

// AllowedValue is one entry of an enumerated field.
type AllowedValue struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Bound is an optional non-negative length limit. The provider sends numbers,
// numeric strings or null; anything that is not a whole number is treated as
// absent.
type Bound struct {
	N     int
	Valid bool
}

// Len returns a present Bound of n.
func Len(n int) Bound {
	return Bound{N: n, Valid: n >= 0}
}

// UnmarshalJSON decodes a number, numeric string or null.
func (b *Bound) UnmarshalJSON(data []byte) error {
	*b = Bound{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f != float64(int(f)) {
		return nil
	}
	*b = Bound{N: int(f), Valid: true}
	return nil
}

// MarshalJSON encodes an absent bound as null.
func (b Bound) MarshalJSON() ([]byte, error) {
	if !b.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(b.N)), nil
}

// Ptr returns the bound as an *int, nil when absent.
func (b Bound) Ptr() *int {
	if !b.Valid {
		return nil
	}
	n := b.N
	return &n
}

// ConstraintKind tells which rule family governs a field.
type ConstraintKind int

const (
	// FreeText fields are checked against length bounds and an optional pattern.
	FreeText ConstraintKind = iota
	// Enumerated fields are checked by membership in AllowedValues only.
	Enumerated
)

func (k ConstraintKind) String() string {
	if k == Enumerated {
		return "enumerated"
	}
	return "text"
}

// FieldConstraint is the normalized rule set for one field key.
type FieldConstraint struct {
	Key         string
	DisplayName string
	Required    bool
	MinLength   *int
	MaxLength   *int
	// Pattern holds the source of a pattern that is known to compile.
	Pattern       string
	AllowedValues []string

	InputType       string
	Example         string
	RefreshOnChange bool
	AllowedLabels   map[string]string
}

// Kind reports whether the field is enumerated or free text.
func (fc FieldConstraint) Kind() ConstraintKind {
	if len(fc.AllowedValues) > 0 {
		return Enumerated
	}
	return FreeText
}

// RequirementSet is the parsed form of one recipient type.
type RequirementSet struct {
	Type   string
	Title  string
	Fields []FieldConstraint
}

// Field looks up a constraint by key.
func (rs *RequirementSet) Field(key string) (FieldConstraint, bool) {
	for _, fc := range rs.Fields {
		if fc.Key == key {
			return fc, true
		}
	}
	return FieldConstraint{}, false
}

// Keys returns the field keys in descriptor order.
func (rs *RequirementSet) Keys() []string {
	keys := make([]string, len(rs.Fields))
	for i, fc := range rs.Fields {
		keys[i] = fc.Key
	}
	return keys
}
