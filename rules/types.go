package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleExists   = errors.New("rule already exists")
)

// Rule is a cross-field check over a recipient record. Expression is CEL and
// must evaluate to true for the record to pass. A failing rule is reported on
// Key with Message, where {field.key} placeholders are replaced by record
// values.
type Rule struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	RecipientType string    `json:"recipientType,omitempty"` // empty applies to every type
	Key           string    `json:"key"`
	Expression    string    `json:"expression"`
	Message       string    `json:"message"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// AppliesTo reports whether the rule runs for recipientType.
func (r *Rule) AppliesTo(recipientType string) bool {
	return r.RecipientType == "" || r.RecipientType == recipientType
}

// Validate checks the fields a rule cannot work without.
func (r *Rule) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("rule id is required")
	case strings.TrimSpace(r.Key) == "":
		return fmt.Errorf("rule %s: key is required", r.ID)
	case strings.TrimSpace(r.Expression) == "":
		return fmt.Errorf("rule %s: expression is required", r.ID)
	}
	return nil
}

// EvaluationResult contains the outcome of evaluating a rule
type EvaluationResult struct {
	RuleID   string
	RuleName string
	Key      string
	Passed   bool
	Message  string // rendered, only set when the rule failed
	Error    error
	Trace    any // CEL evaluation state
}

// sortRules orders rules by creation time, then id.
func sortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}
