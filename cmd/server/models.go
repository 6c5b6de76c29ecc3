package main

import (
	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/schema"
	"github.com/liamcoop/wisepay/wise"
)

// API request and response models

// FieldResponse describes one recipient field to a form renderer
type FieldResponse struct {
	Key             string            `json:"key" example:"abartn"`
	Name            string            `json:"name" example:"ACH routing number"`
	Required        bool              `json:"required"`
	Type            string            `json:"type" example:"text"`
	MinLength       *int              `json:"minLength,omitempty" example:"9"`
	MaxLength       *int              `json:"maxLength,omitempty" example:"9"`
	Pattern         string            `json:"validationRegexp,omitempty" example:"^\\d{9}$"`
	Example         string            `json:"example,omitempty" example:"111000025"`
	ValuesAllowed   []string          `json:"valuesAllowed,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	RefreshOnChange bool              `json:"refreshRequirementsOnChange,omitempty"`
}

func fieldResponses(fields []requirements.FieldConstraint) []FieldResponse {
	out := make([]FieldResponse, len(fields))
	for i, fc := range fields {
		out[i] = FieldResponse{
			Key:             fc.Key,
			Name:            fc.DisplayName,
			Required:        fc.Required,
			Type:            fc.InputType,
			MinLength:       fc.MinLength,
			MaxLength:       fc.MaxLength,
			Pattern:         fc.Pattern,
			Example:         fc.Example,
			ValuesAllowed:   fc.AllowedValues,
			Labels:          fc.AllowedLabels,
			RefreshOnChange: fc.RefreshOnChange,
		}
	}
	return out
}

// RequirementsResponse is the compiled form of one recipient type in a corridor
type RequirementsResponse struct {
	Corridor wise.Corridor   `json:"corridor"`
	Types    []string        `json:"types" example:"aba,swift_code"`
	Type     string          `json:"type" example:"aba"`
	Title    string          `json:"title,omitempty" example:"Local bank account"`
	Checksum string          `json:"checksum"`
	Fields   []FieldResponse `json:"fields"`
}

// RecipientRequest carries a recipient record for a corridor. Record may be
// nested the way the provider shows it or flat with dotted keys.
type RecipientRequest struct {
	Corridor wise.Corridor  `json:"corridor"`
	Type     string         `json:"type" example:"aba"`
	Record   map[string]any `json:"record"`
}

// ValidateResponse is returned for a valid record
type ValidateResponse struct {
	Valid  bool           `json:"valid"`
	Type   string         `json:"type"`
	Record map[string]any `json:"record"`
}

// ExampleResponse is a generated record plus the fields it could not satisfy
type ExampleResponse struct {
	Type   string         `json:"type" example:"aba"`
	Record map[string]any `json:"record"`
	Gaps   []schema.Gap   `json:"gaps"`
}

// RefreshRequest names the corridor to re-fetch
type RefreshRequest struct {
	Corridor wise.Corridor `json:"corridor"`
}

// RefreshResponse reports the document now in use
type RefreshResponse struct {
	Corridor string   `json:"corridor" example:"EUR:USD:100"`
	Types    []string `json:"types"`
	Checksum string   `json:"checksum"`
}

// CreateRuleRequest represents the request body for creating a rule
type CreateRuleRequest struct {
	Name          string `json:"name" example:"State code for US addresses"`
	RecipientType string `json:"recipientType,omitempty" example:"aba"`
	Key           string `json:"key" example:"address.state"`
	Expression    string `json:"expression" example:"\"address.state\" in record"`
	Message       string `json:"message" example:"State code is required for {address.country}"`
	Active        *bool  `json:"active,omitempty" example:"true"`
}

// UpdateRuleRequest represents the request body for updating a rule.
// Omitted fields keep their value, an empty recipientType widens the rule to
// every type.
type UpdateRuleRequest struct {
	Name          string  `json:"name"`
	RecipientType *string `json:"recipientType,omitempty"`
	Key           string  `json:"key"`
	Expression    string  `json:"expression"`
	Message       string  `json:"message"`
	Active        *bool   `json:"active,omitempty"`
}
