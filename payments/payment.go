package payments

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/wisepay/wise"
)

var (
	ErrNotFound       = errors.New("payment not found")
	ErrInvalidRequest = errors.New("invalid payment request")
)

// Payment is an initiated transfer the payer still has to fund. QRCode is a
// PNG data URL of PaymentURL.
type Payment struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"userId"`
	RecipientID    int64     `json:"recipientId"`
	QuoteID        string    `json:"quoteId"`
	TransferID     int64     `json:"transferId"`
	SourceAmount   float64   `json:"amount"`
	SourceCurrency string    `json:"sourceCurrency"`
	TargetCurrency string    `json:"currency"`
	Reference      string    `json:"reference,omitempty"`
	PaymentURL     string    `json:"paymentUrl"`
	QRCode         string    `json:"qrCode"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Request starts a payment to an existing recipient account.
type Request struct {
	UserID         string  `json:"userId"`
	RecipientID    int64   `json:"recipientId"`
	SourceCurrency string  `json:"sourceCurrency"`
	TargetCurrency string  `json:"currency"`
	Amount         float64 `json:"amount"`
	Reference      string  `json:"reference,omitempty"`
}

// maxReference is the longest transfer reference the provider accepts for
// most currencies.
const maxReference = 35

// Validate normalizes currency codes and checks the request. Amounts have at
// most two decimals.
func (r *Request) Validate() error {
	r.SourceCurrency = strings.ToUpper(strings.TrimSpace(r.SourceCurrency))
	r.TargetCurrency = strings.ToUpper(strings.TrimSpace(r.TargetCurrency))

	switch {
	case r.RecipientID <= 0:
		return fmt.Errorf("%w: recipientId is required", ErrInvalidRequest)
	case !wise.ValidCurrency(r.SourceCurrency):
		return fmt.Errorf("%w: unsupported source currency %q", ErrInvalidRequest, r.SourceCurrency)
	case !wise.ValidCurrency(r.TargetCurrency):
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidRequest, r.TargetCurrency)
	case r.Amount <= 0 || math.IsInf(r.Amount, 0) || math.IsNaN(r.Amount):
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case math.Abs(r.Amount*100-math.Round(r.Amount*100)) > 1e-6:
		return fmt.Errorf("%w: amount has more than two decimals", ErrInvalidRequest)
	case len([]rune(r.Reference)) > maxReference:
		return fmt.Errorf("%w: reference is longer than %d characters", ErrInvalidRequest, maxReference)
	}
	return nil
}
