package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/wisepay/internal/logger"
	"github.com/liamcoop/wisepay/wise"
)

// Provider creates quotes and transfers. *wise.Client implements it.
type Provider interface {
	CreateQuote(ctx context.Context, req wise.QuoteRequest) (*wise.Quote, error)
	CreateTransfer(ctx context.Context, req wise.TransferRequest) (*wise.Transfer, error)
}

type Service struct {
	provider Provider
	store    Store
	now      func() time.Time
}

func NewService(provider Provider, store Store) *Service {
	return &Service{provider: provider, store: store, now: time.Now}
}

// Create quotes the amount, opens a transfer to the recipient and stores the
// payment with a QR code of the pay-in link. Nothing is stored when a
// provider call fails.
func (s *Service) Create(ctx context.Context, req Request) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()

	quote, err := s.provider.CreateQuote(ctx, wise.QuoteRequest{
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		SourceAmount:   req.Amount,
		TargetAccount:  req.RecipientID,
	})
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}

	transfer, err := s.provider.CreateTransfer(ctx, wise.TransferRequest{
		TargetAccount:         req.RecipientID,
		QuoteUUID:             quote.ID,
		CustomerTransactionID: id.String(),
		Details:               wise.TransferDetails{Reference: req.Reference},
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	if transfer.PayInURL == "" {
		return nil, fmt.Errorf("transfer %d has no pay-in link", transfer.ID)
	}

	qrCode, err := QRDataURL(transfer.PayInURL)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		ID:             id,
		UserID:         req.UserID,
		RecipientID:    req.RecipientID,
		QuoteID:        quote.ID,
		TransferID:     transfer.ID,
		SourceAmount:   req.Amount,
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		Reference:      req.Reference,
		PaymentURL:     transfer.PayInURL,
		QRCode:         qrCode,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Save(ctx, p); err != nil {
		logger.Error("transfer created but payment not stored", "transferId", transfer.ID, "error", err.Error())
		return nil, err
	}

	logger.Info("payment created", "paymentId", p.ID.String(), "transferId", p.TransferID,
		"amount", p.SourceAmount, "source", p.SourceCurrency, "target", p.TargetCurrency)
	return p, nil
}

// Get looks a payment up by its string ID. A malformed ID is not found.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("payment %q: %w", id, ErrNotFound)
	}
	return s.store.Get(ctx, parsed)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Payment, error) {
	return s.store.ListByUser(ctx, userID)
}
