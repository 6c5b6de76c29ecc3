package registry

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidRecipientType is returned for a recipient type name that cannot
// be one of the provider's.
var ErrInvalidRecipientType = errors.New("invalid recipient type")

var recipientTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// validateRecipientType checks a caller-supplied recipient type before it is
// used in cache keys and log lines. Types are the provider's snake_case
// names, e.g. "aba" or "swift_code", at most 64 characters.
func validateRecipientType(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidRecipientType)
	}
	if len(name) > 64 {
		return fmt.Errorf("%w: length %d exceeds maximum of 64 characters", ErrInvalidRecipientType, len(name))
	}
	if !recipientTypePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidRecipientType, name, recipientTypePattern)
	}
	return nil
}
