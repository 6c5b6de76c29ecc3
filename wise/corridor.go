package wise

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Currencies lists the currencies the provider pays out in.
var Currencies = []string{
	"AED", "AUD", "BGN", "BRL", "CAD", "CHF", "CLP", "CZK", "DKK", "EUR", "GBP",
	"HKD", "HRK", "HUF", "IDR", "ILS", "INR", "JPY", "KRW", "MXN", "MYR", "NOK",
	"NZD", "PHP", "PLN", "RON", "SEK", "SGD", "THB", "TRY", "USD", "ZAR",
}

// ErrInvalidCorridor is matched by every error of Corridor.Validate.
var ErrInvalidCorridor = errors.New("invalid corridor")

// ValidCurrency reports whether code is a supported currency.
func ValidCurrency(code string) bool {
	return slices.Contains(Currencies, code)
}

// Corridor identifies a requirements lookup: the provider answers with the
// recipient types and fields needed to pay Amount of Source into Target.
type Corridor struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

// Normalize upper-cases the currency codes.
func (c Corridor) Normalize() Corridor {
	c.Source = strings.ToUpper(strings.TrimSpace(c.Source))
	c.Target = strings.ToUpper(strings.TrimSpace(c.Target))
	return c
}

// Validate checks the currencies and amount.
func (c Corridor) Validate() error {
	if !ValidCurrency(c.Source) {
		return fmt.Errorf("%w: unsupported source currency %q", ErrInvalidCorridor, c.Source)
	}
	if !ValidCurrency(c.Target) {
		return fmt.Errorf("%w: unsupported target currency %q", ErrInvalidCorridor, c.Target)
	}
	if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) || c.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidCorridor, c.Amount)
	}
	return nil
}

// maxBand is the largest amount band a corridor key distinguishes.
const maxBand = 1e9

// Band rounds the amount down to a power of ten between 1 and 1e9. Amounts
// below 1 share band 1.
func (c Corridor) Band() float64 {
	band := 1.0
	for band < maxBand && band*10 <= c.Amount {
		band *= 10
	}
	return band
}

// Key is the cache and snapshot key of the corridor, e.g. "USD:EUR:100" for
// any amount from 100 up to 999.99. The exact amount is only sent to the
// provider, so the number of keys per currency pair is bounded.
func (c Corridor) Key() string {
	return c.Source + ":" + c.Target + ":" + strconv.FormatFloat(c.Band(), 'f', -1, 64)
}
