package schema

import (
	"fmt"
	"strings"
)

// ErrorKind names the rule a field value violated.
type ErrorKind string

const (
	KindRequired        ErrorKind = "required"
	KindNotAllowed      ErrorKind = "not_allowed"
	KindTooShort        ErrorKind = "too_short"
	KindTooLong         ErrorKind = "too_long"
	KindPatternMismatch ErrorKind = "pattern_mismatch"
	// KindRuleViolation is reported by cross-field rules, never by Validate.
	KindRuleViolation ErrorKind = "rule_violation"
)

// FieldError is one violated rule of one field. It is data returned by
// Validate, not a failure of the call.
type FieldError struct {
	Key     string    `json:"key"`
	Kind    ErrorKind `json:"kind"`
	Allowed []string  `json:"allowed,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Pattern string    `json:"pattern,omitempty"`
	Message string    `json:"message"`
}

func (e FieldError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Kind)
}

func required(key string) FieldError {
	return FieldError{Key: key, Kind: KindRequired, Message: fmt.Sprintf("%s is required", key)}
}

func notAllowed(key string, allowed []string) FieldError {
	return FieldError{
		Key:     key,
		Kind:    KindNotAllowed,
		Allowed: allowed,
		Message: fmt.Sprintf("%s must be one of %s", key, strings.Join(allowed, ", ")),
	}
}

func tooShort(key string, n int) FieldError {
	return FieldError{Key: key, Kind: KindTooShort, Limit: n, Message: fmt.Sprintf("%s must be at least %d characters", key, n)}
}

func tooLong(key string, n int) FieldError {
	return FieldError{Key: key, Kind: KindTooLong, Limit: n, Message: fmt.Sprintf("%s must be at most %d characters", key, n)}
}

func patternMismatch(key, pattern string) FieldError {
	return FieldError{Key: key, Kind: KindPatternMismatch, Pattern: pattern, Message: fmt.Sprintf("%s does not match expected format.", key)}
}

// ValidationError wraps the field errors of a rejected record for callers
// that want an error value.
type ValidationError struct {
	Type   string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	if e.Type == "" {
		return fmt.Sprintf("invalid recipient: %s", strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("invalid %s recipient: %s", e.Type, strings.Join(msgs, "; "))
}
