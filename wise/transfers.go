package wise

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RecipientRequest creates a recipient account. Details holds the nested
// recipient fields, everything except accountHolderName.
type RecipientRequest struct {
	Profile           int64          `json:"profile"`
	AccountHolderName string         `json:"accountHolderName"`
	Currency          string         `json:"currency"`
	Type              string         `json:"type"`
	Details           map[string]any `json:"details"`
}

// NewRecipientRequest splits a nested recipient record into the request
// shape. The record is not modified.
func NewRecipientRequest(currency, recipientType string, record map[string]any) RecipientRequest {
	req := RecipientRequest{
		Currency: currency,
		Type:     recipientType,
		Details:  make(map[string]any, len(record)),
	}
	for k, v := range record {
		if k == "accountHolderName" {
			req.AccountHolderName, _ = v.(string)
			continue
		}
		req.Details[k] = v
	}
	return req
}

type Recipient struct {
	ID                int64  `json:"id"`
	AccountHolderName string `json:"accountHolderName"`
	Currency          string `json:"currency"`
	Type              string `json:"type"`
}

// CreateRecipient registers a recipient under the client's profile unless
// req names one.
func (c *Client) CreateRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error) {
	if req.Profile == 0 {
		req.Profile = c.profileID
	}
	var out Recipient
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type QuoteRequest struct {
	SourceCurrency string  `json:"sourceCurrency"`
	TargetCurrency string  `json:"targetCurrency"`
	SourceAmount   float64 `json:"sourceAmount"`
	TargetAccount  int64   `json:"targetAccount,omitempty"`
	Profile        int64   `json:"profile,omitempty"`
}

type Quote struct {
	ID             string  `json:"id"`
	SourceCurrency string  `json:"sourceCurrency"`
	TargetCurrency string  `json:"targetCurrency"`
	SourceAmount   float64 `json:"sourceAmount"`
	TargetAmount   float64 `json:"targetAmount"`
	Rate           float64 `json:"rate"`
}

func (c *Client) CreateQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.Profile == 0 {
		req.Profile = c.profileID
	}
	var out Quote
	if err := c.do(ctx, http.MethodPost, "/v3/quotes", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type TransferDetails struct {
	Reference string `json:"reference,omitempty"`
}

// TransferRequest funds a quote into a recipient account.
// CustomerTransactionID makes the request idempotent, it is generated when
// empty.
type TransferRequest struct {
	TargetAccount         int64           `json:"targetAccount"`
	QuoteUUID             string          `json:"quoteUuid"`
	CustomerTransactionID string          `json:"customerTransactionId"`
	Details               TransferDetails `json:"details"`
}

type Transfer struct {
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	PayInURL string `json:"payInUrl"`
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.CustomerTransactionID == "" {
		req.CustomerTransactionID = uuid.NewString()
	}
	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
