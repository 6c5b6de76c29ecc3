package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/liamcoop/wisepay/wise"
)

type stubProvider struct {
	quotes      []wise.QuoteRequest
	transfers   []wise.TransferRequest
	quoteErr    error
	transferErr error
	payInURL    string
}

func (p *stubProvider) CreateQuote(_ context.Context, req wise.QuoteRequest) (*wise.Quote, error) {
	p.quotes = append(p.quotes, req)
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	return &wise.Quote{ID: "quote-1", SourceCurrency: req.SourceCurrency, TargetCurrency: req.TargetCurrency, SourceAmount: req.SourceAmount}, nil
}

func (p *stubProvider) CreateTransfer(_ context.Context, req wise.TransferRequest) (*wise.Transfer, error) {
	p.transfers = append(p.transfers, req)
	if p.transferErr != nil {
		return nil, p.transferErr
	}
	return &wise.Transfer{ID: 4711, Status: "incoming_payment_waiting", PayInURL: p.payInURL}, nil
}

func newTestService(p Provider) (*Service, *InMemoryStore) {
	store := NewInMemoryStore()
	s := NewService(p, store)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, store
}

func TestServiceCreate(t *testing.T) {
	provider := &stubProvider{payInURL: "https://wise.com/pay/r/4711"}
	s, _ := newTestService(provider)
	ctx := context.Background()

	p, err := s.Create(ctx, Request{
		UserID:         "user-1",
		RecipientID:    42,
		SourceCurrency: "eur",
		TargetCurrency: "usd",
		Amount:         100.5,
		Reference:      "Invoice 17",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	want := &Payment{
		UserID:         "user-1",
		RecipientID:    42,
		QuoteID:        "quote-1",
		TransferID:     4711,
		SourceAmount:   100.5,
		SourceCurrency: "EUR",
		TargetCurrency: "USD",
		Reference:      "Invoice 17",
		PaymentURL:     "https://wise.com/pay/r/4711",
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, p, cmpopts.IgnoreFields(Payment{}, "ID", "QRCode")); diff != "" {
		t.Errorf("payment mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(p.QRCode, "data:image/png;base64,") {
		t.Errorf("QRCode should be a PNG data URL, got %.40s", p.QRCode)
	}

	if len(provider.transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(provider.transfers))
	}
	tr := provider.transfers[0]
	if tr.QuoteUUID != "quote-1" || tr.TargetAccount != 42 || tr.Details.Reference != "Invoice 17" {
		t.Errorf("transfer request = %+v", tr)
	}
	if tr.CustomerTransactionID != p.ID.String() {
		t.Error("the payment ID should be the idempotency key of the transfer")
	}

	got, err := s.Get(ctx, p.ID.String())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("stored payment mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceCreateRejectsInvalidRequests(t *testing.T) {
	valid := Request{RecipientID: 1, SourceCurrency: "EUR", TargetCurrency: "USD", Amount: 10}

	testCases := []struct {
		name   string
		modify func(r *Request)
	}{
		{"missing recipient", func(r *Request) { r.RecipientID = 0 }},
		{"unknown source", func(r *Request) { r.SourceCurrency = "ABC" }},
		{"unknown target", func(r *Request) { r.TargetCurrency = "" }},
		{"zero amount", func(r *Request) { r.Amount = 0 }},
		{"negative amount", func(r *Request) { r.Amount = -5 }},
		{"three decimals", func(r *Request) { r.Amount = 1.005 }},
		{"long reference", func(r *Request) { r.Reference = strings.Repeat("x", 36) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &stubProvider{payInURL: "https://wise.com/pay"}
			s, _ := newTestService(provider)
			req := valid
			tc.modify(&req)

			_, err := s.Create(context.Background(), req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Create() error = %v, want ErrInvalidRequest", err)
			}
			if len(provider.quotes) != 0 {
				t.Error("invalid request should not reach the provider")
			}
		})
	}
}

func TestServiceCreateProviderFailures(t *testing.T) {
	req := Request{UserID: "u", RecipientID: 1, SourceCurrency: "EUR", TargetCurrency: "GBP", Amount: 0.29}

	testCases := []struct {
		name     string
		provider *stubProvider
	}{
		{"quote fails", &stubProvider{quoteErr: &wise.APIError{StatusCode: http.StatusUnprocessableEntity}}},
		{"transfer fails", &stubProvider{transferErr: &wise.APIError{StatusCode: http.StatusForbidden}}},
		{"no pay-in link", &stubProvider{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, store := newTestService(tc.provider)
			if _, err := s.Create(context.Background(), req); err == nil {
				t.Fatal("Create() should fail")
			}
			stored, _ := store.ListByUser(context.Background(), "u")
			if len(stored) != 0 {
				t.Errorf("failed payment should not be stored, got %d", len(stored))
			}
		})
	}
}

func TestServiceGetNotFound(t *testing.T) {
	s, _ := newTestService(&stubProvider{})
	for _, id := range []string{"not-a-uuid", "6f1c1f0e-3a4b-4c5d-8e9f-0a1b2c3d4e5f"} {
		if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestInMemoryStoreListByUser(t *testing.T) {
	provider := &stubProvider{payInURL: "https://wise.com/pay"}
	s, _ := newTestService(provider)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		p, err := s.Create(ctx, Request{UserID: "alice", RecipientID: 1, SourceCurrency: "EUR", TargetCurrency: "USD", Amount: 1})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		ids = append([]string{p.ID.String()}, ids...)
	}
	if _, err := s.Create(ctx, Request{UserID: "bob", RecipientID: 1, SourceCurrency: "EUR", TargetCurrency: "USD", Amount: 1}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	list, err := s.ListByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByUser() failed: %v", err)
	}
	var got []string
	for _, p := range list {
		got = append(got, p.ID.String())
	}
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("ListByUser() should be newest first (-want +got):\n%s", diff)
	}
}
