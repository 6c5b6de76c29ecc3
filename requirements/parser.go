package requirements

import (
	"fmt"

	"github.com/liamcoop/wisepay/internal/logger"
)

// Parser turns a Document into a RequirementSet. A Parser holds no state
// between calls and is safe for concurrent use.
type Parser struct {
	onWarning      func(Warning)
	warnOnConflict bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithWarningHandler replaces the default handler, which logs each warning.
func WithWarningHandler(fn func(Warning)) Option {
	return func(p *Parser) {
		p.onWarning = fn
	}
}

// WithConflictWarnings reports fields that carry both an enumeration and
// free-text rules. Enumeration precedence applies either way.
func WithConflictWarnings() Option {
	return func(p *Parser) {
		p.warnOnConflict = true
	}
}

// NewParser creates a parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{onWarning: logWarning}
	for _, opt := range opts {
		opt(p)
	}
	if p.onWarning == nil {
		p.onWarning = func(Warning) {}
	}
	return p
}

func logWarning(w Warning) {
	args := []any{"kind", string(w.Kind), "recipientType", w.Type, "key", w.Key}
	if w.Pattern != "" {
		args = append(args, "pattern", w.Pattern)
	}
	if w.Err != nil {
		args = append(args, "error", w.Err.Error())
	}
	logger.WarnAlways("requirement field degraded", args...)
}

var defaultParser = NewParser()

// Parse parses doc with the default parser.
func Parse(doc Document) (*RequirementSet, error) {
	return defaultParser.Parse(doc)
}

// Parse selects the first recipient type in document order and normalizes its
// field groups. Callers that need another type must pre-filter the document,
// see Document.Select.
func (p *Parser) Parse(doc Document) (*RequirementSet, error) {
	if len(doc.Requirements) == 0 {
		return nil, &EmptyDescriptorError{Reason: "no recipient types"}
	}
	for _, req := range doc.Requirements {
		if countGroups(req) == 0 {
			return nil, &EmptyDescriptorError{Type: req.Type, Reason: "no field groups"}
		}
	}

	req := doc.Requirements[0]
	set := &RequirementSet{
		Type:   req.Type,
		Title:  req.Title,
		Fields: make([]FieldConstraint, 0, countGroups(req)),
	}

	// first position of each key, later occurrences overwrite in place
	index := make(map[string]int)
	for _, field := range req.Fields {
		for _, group := range field.Group {
			if group.Key == "" {
				p.onWarning(Warning{Kind: MissingKey, Type: req.Type, Err: fmt.Errorf("field group %q has no key", group.Name)})
				continue
			}
			fc := p.constraint(req.Type, group)
			if i, seen := index[group.Key]; seen {
				set.Fields[i] = fc
				continue
			}
			index[group.Key] = len(set.Fields)
			set.Fields = append(set.Fields, fc)
		}
	}

	if len(set.Fields) == 0 {
		return nil, &EmptyDescriptorError{Type: req.Type, Reason: "no field groups with a key"}
	}
	return set, nil
}

func countGroups(req Requirement) int {
	n := 0
	for _, f := range req.Fields {
		n += len(f.Group)
	}
	return n
}

func (p *Parser) constraint(recipientType string, g FieldGroup) FieldConstraint {
	fc := FieldConstraint{
		Key:             g.Key,
		DisplayName:     g.Name,
		Required:        g.Required,
		InputType:       g.Type,
		Example:         g.Example,
		RefreshOnChange: g.RefreshOnChange,
	}

	if applyPrecedence(&fc, g) {
		if p.warnOnConflict && (g.ValidationRegexp != "" || g.MinLength.Valid || g.MaxLength.Valid) {
			p.onWarning(Warning{Kind: EnumConflict, Type: recipientType, Key: g.Key, Pattern: g.ValidationRegexp})
		}
		return fc
	}

	if g.ValidationRegexp != "" {
		if _, err := CompilePattern(g.ValidationRegexp); err != nil {
			p.onWarning(Warning{Kind: InvalidPattern, Type: recipientType, Key: g.Key, Pattern: g.ValidationRegexp, Err: err})
		} else {
			fc.Pattern = g.ValidationRegexp
		}
	}

	fc.MinLength = g.MinLength.Ptr()
	fc.MaxLength = g.MaxLength.Ptr()
	if fc.MinLength != nil && fc.MaxLength != nil && *fc.MinLength > *fc.MaxLength {
		p.onWarning(Warning{
			Kind: InvalidBounds,
			Type: recipientType,
			Key:  g.Key,
			Err:  fmt.Errorf("minLength %d exceeds maxLength %d", *fc.MinLength, *fc.MaxLength),
		})
		fc.MinLength, fc.MaxLength = nil, nil
	}
	return fc
}

// applyPrecedence decides the constraint kind of a field. A non-empty
// valuesAllowed makes the field enumerated and its pattern and length rules
// are discarded. It reports whether the field became enumerated.
func applyPrecedence(fc *FieldConstraint, g FieldGroup) bool {
	if len(g.ValuesAllowed) == 0 {
		return false
	}

	seen := make(map[string]struct{}, len(g.ValuesAllowed))
	for _, v := range g.ValuesAllowed {
		if _, dup := seen[v.Key]; dup {
			continue
		}
		seen[v.Key] = struct{}{}
		fc.AllowedValues = append(fc.AllowedValues, v.Key)
		if v.Name != "" {
			if fc.AllowedLabels == nil {
				fc.AllowedLabels = make(map[string]string)
			}
			fc.AllowedLabels[v.Key] = v.Name
		}
	}
	return true
}
