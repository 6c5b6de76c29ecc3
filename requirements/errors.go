package requirements

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDescriptor is matched by every *EmptyDescriptorError.
	ErrEmptyDescriptor = errors.New("empty requirements descriptor")

	// ErrUnknownRecipientType is returned by Document.Select when the type is not offered.
	ErrUnknownRecipientType = errors.New("unknown recipient type")
)

// EmptyDescriptorError is returned when a document has no recipient types or
// a recipient type has no field groups. No partial result accompanies it.
type EmptyDescriptorError struct {
	// Type is the offending recipient type, empty when the document has none.
	Type   string
	Reason string
}

func (e *EmptyDescriptorError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: %s", ErrEmptyDescriptor, e.Reason)
	}
	return fmt.Sprintf("%s: recipient type %q: %s", ErrEmptyDescriptor, e.Type, e.Reason)
}

func (e *EmptyDescriptorError) Is(target error) bool {
	return target == ErrEmptyDescriptor
}

// MalformedDescriptorError is returned when the descriptor bytes do not have
// the expected top-level shape.
type MalformedDescriptorError struct {
	Err error
}

func (e *MalformedDescriptorError) Error() string {
	return fmt.Sprintf("malformed requirements descriptor: %v", e.Err)
}

func (e *MalformedDescriptorError) Unwrap() error {
	return e.Err
}

// WarningKind classifies a non-fatal problem found while parsing.
type WarningKind string

const (
	// InvalidPattern means a field's regex failed to compile and was dropped.
	InvalidPattern WarningKind = "invalid_pattern"
	// InvalidBounds means minLength exceeded maxLength and both were dropped.
	InvalidBounds WarningKind = "invalid_bounds"
	// MissingKey means a field group had no key and was skipped.
	MissingKey WarningKind = "missing_key"
	// EnumConflict means a field had both an enumeration and free-text rules.
	// The enumeration was kept.
	EnumConflict WarningKind = "enum_conflict"
)

// Warning reports a per-field problem that degraded a constraint instead of
// failing the parse.
type Warning struct {
	Kind    WarningKind
	Type    string
	Key     string
	Pattern string
	Err     error
}

func (w Warning) String() string {
	msg := fmt.Sprintf("%s: %s.%s", w.Kind, w.Type, w.Key)
	if w.Pattern != "" {
		msg += fmt.Sprintf(" pattern %q", w.Pattern)
	}
	if w.Err != nil {
		msg += ": " + w.Err.Error()
	}
	return msg
}
