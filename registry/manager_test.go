package registry

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/liamcoop/wisepay/internal/logger"
	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/rules"
	"github.com/liamcoop/wisepay/schema"
	"github.com/liamcoop/wisepay/wise"
	"go.uber.org/goleak"
)

var usdCorridor = wise.Corridor{Source: "EUR", Target: "USD", Amount: 100}

func loadDocument(t *testing.T) requirements.Document {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "requirements", "testdata", "usd_requirements.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	doc, err := requirements.DecodeBytes(raw)
	if err != nil {
		t.Fatalf("DecodeBytes() failed: %v", err)
	}
	return doc
}

// stubFetcher serves doc, or fails with the queued errors first.
type stubFetcher struct {
	doc   requirements.Document
	errs  []error
	calls atomic.Int32
}

func (f *stubFetcher) FetchRequirements(_ context.Context, _ wise.Corridor) (requirements.Document, error) {
	n := int(f.calls.Add(1))
	if n <= len(f.errs) && f.errs[n-1] != nil {
		return requirements.Document{}, f.errs[n-1]
	}
	return f.doc, nil
}

func newTestManager(fetcher Fetcher, opts Options) *Manager {
	opts.RetryDelay = time.Millisecond
	return NewManager(fetcher, opts)
}

func TestManagerSchemaCachesDocument(t *testing.T) {
	fetcher := &stubFetcher{doc: loadDocument(t)}
	schemas := NewInMemorySchemaCache(0, 0)
	m := newTestManager(fetcher, Options{Schemas: schemas})
	ctx := context.Background()

	entry, err := m.Schema(ctx, wise.Corridor{Source: "eur", Target: "usd", Amount: 100}, "")
	if err != nil {
		t.Fatalf("Schema() failed: %v", err)
	}
	if entry.Schema.Type() != "aba" {
		t.Errorf("default type = %q, want aba", entry.Schema.Type())
	}
	if diff := cmp.Diff([]string{"aba", "swift_code"}, entry.Types); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
	if entry.Corridor.Key() != "EUR:USD:100" {
		t.Errorf("corridor should be normalized, got %s", entry.Corridor.Key())
	}

	again, err := m.Schema(ctx, usdCorridor, "aba")
	if err != nil {
		t.Fatalf("Schema() failed: %v", err)
	}
	if again.Schema != entry.Schema {
		t.Error("unchanged requirements should reuse the compiled schema")
	}

	swift, err := m.Schema(ctx, usdCorridor, "swift_code")
	if err != nil {
		t.Fatalf("Schema(swift_code) failed: %v", err)
	}
	if swift.Schema.Type() != "swift_code" {
		t.Errorf("Type() = %q", swift.Schema.Type())
	}

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher called %d times, want 1", got)
	}
	if schemas.Len() != 2 {
		t.Errorf("schema cache holds %d entries, want 2", schemas.Len())
	}
}

func TestManagerRetriesRetryableErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := &stubFetcher{
		doc: loadDocument(t),
		errs: []error{
			&wise.APIError{StatusCode: http.StatusServiceUnavailable},
			errors.New("connection reset by peer"),
		},
	}
	m := newTestManager(fetcher, Options{})

	if _, err := m.Schema(context.Background(), usdCorridor, "aba"); err != nil {
		t.Fatalf("Schema() failed: %v", err)
	}
	if got := fetcher.calls.Load(); got != 3 {
		t.Errorf("fetcher called %d times, want 3", got)
	}
}

func TestManagerDoesNotRetryClientErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{"bad request", &wise.APIError{StatusCode: http.StatusBadRequest}},
		{"malformed document", &requirements.MalformedDescriptorError{Err: errors.New("bad json")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &stubFetcher{errs: []error{tc.err, tc.err, tc.err}}
			m := newTestManager(fetcher, Options{})

			_, err := m.Schema(context.Background(), usdCorridor, "")
			if err == nil {
				t.Fatal("Schema() should fail")
			}
			if !errors.Is(err, tc.err) && !errors.As(err, new(*wise.APIError)) {
				t.Errorf("error should wrap the fetch error, got %v", err)
			}
			if got := fetcher.calls.Load(); got != 1 {
				t.Errorf("fetcher called %d times, want 1", got)
			}
		})
	}
}

func TestManagerFallsBackToSnapshot(t *testing.T) {
	doc := loadDocument(t)
	snapshots := NewInMemorySnapshotStore()
	fetcher := &stubFetcher{doc: doc}
	m := newTestManager(fetcher, Options{Snapshots: snapshots})
	ctx := context.Background()

	if _, err := m.Schema(ctx, usdCorridor, ""); err != nil {
		t.Fatalf("Schema() failed: %v", err)
	}

	outage := &wise.APIError{StatusCode: http.StatusBadGateway}
	fetcher.errs = []error{nil, outage, outage, outage, outage, outage, outage}
	refreshed, err := m.Refresh(ctx, usdCorridor)
	if err != nil {
		t.Fatalf("Refresh() should serve the snapshot, got %v", err)
	}
	if diff := cmp.Diff(doc.Types(), refreshed.Types()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// a corridor that was never fetched has nothing to fall back on
	_, err = m.Schema(ctx, wise.Corridor{Source: "EUR", Target: "GBP", Amount: 5}, "")
	var apiErr *wise.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("error = %v, want the provider error", err)
	}
}

func TestManagerLoadSnapshots(t *testing.T) {
	ctx := context.Background()
	snapshots := NewInMemorySnapshotStore()
	if _, err := snapshots.Save(ctx, usdCorridor.Key(), loadDocument(t)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	fetcher := &stubFetcher{errs: []error{errors.New("offline")}}
	schemas := NewInMemorySchemaCache(0, 0)
	m := newTestManager(fetcher, Options{Snapshots: snapshots, Schemas: schemas, FetchAttempts: 1})

	n, err := m.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots() failed: %v", err)
	}
	if n != 1 || schemas.Len() != 2 {
		t.Errorf("loaded %d corridors and %d schemas, want 1 and 2", n, schemas.Len())
	}

	if _, err := m.Schema(ctx, usdCorridor, "swift_code"); err != nil {
		t.Fatalf("Schema() after warm start failed: %v", err)
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("warm cache should not fetch, got %d calls", got)
	}
}

func TestManagerValidate(t *testing.T) {
	engine, err := rules.NewEngine(rules.NewInMemoryRuleStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	if err := engine.Seed(rules.DefaultRules()); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	m := newTestManager(&stubFetcher{doc: loadDocument(t)}, Options{Rules: engine})
	ctx := context.Background()

	_, rec, gaps, err := m.Example(ctx, usdCorridor, "aba", schema.GenerateOptions{})
	if err != nil || len(gaps) != 0 {
		t.Fatalf("Example() = %v, %v", gaps, err)
	}

	before := logger.RejectedRecords.Load()
	_, res, err := m.Validate(ctx, usdCorridor, "aba", rec)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	want := []schema.FieldError{{
		Key:     "address.state",
		Kind:    schema.KindRuleViolation,
		Message: "State code is required for US",
	}}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if res.Record != nil {
		t.Error("a rule violation should withhold the normalized record")
	}
	if logger.RejectedRecords.Load() != before+1 {
		t.Error("rejected record should be counted")
	}

	rec["address.state"] = "NY"
	if _, res, _ := m.Validate(ctx, usdCorridor, "aba", rec); !res.OK() {
		t.Errorf("record with state should pass: %v", res.Errors)
	}
}

func TestManagerRejectsBadInput(t *testing.T) {
	fetcher := &stubFetcher{doc: loadDocument(t)}
	m := newTestManager(fetcher, Options{})
	ctx := context.Background()

	if _, err := m.Schema(ctx, wise.Corridor{Source: "EUR", Target: "XXX", Amount: 1}, ""); err == nil {
		t.Error("unsupported currency should fail")
	}
	if _, err := m.Schema(ctx, usdCorridor, "ABA; DROP"); err == nil {
		t.Error("malformed recipient type should fail")
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("invalid input should not reach the provider, got %d calls", got)
	}

	if _, err := m.Schema(ctx, usdCorridor, "iban"); !errors.Is(err, requirements.ErrUnknownRecipientType) {
		t.Errorf("Schema(iban) error = %v, want ErrUnknownRecipientType", err)
	}
}

func TestManagerKeysCorridorsByAmountBand(t *testing.T) {
	doc := loadDocument(t)
	var mu sync.Mutex
	var amounts []float64
	fetcher := FetcherFunc(func(_ context.Context, c wise.Corridor) (requirements.Document, error) {
		mu.Lock()
		defer mu.Unlock()
		amounts = append(amounts, c.Amount)
		return doc, nil
	})
	snapshots := NewInMemorySnapshotStore()
	m := newTestManager(fetcher, Options{Snapshots: snapshots})
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		amount := 1.01 + float64(i)
		if _, err := m.Schema(ctx, wise.Corridor{Source: "EUR", Target: "USD", Amount: amount}, "aba"); err != nil {
			t.Fatalf("Schema(%v) failed: %v", amount, err)
		}
	}

	// first amount of bands 1, 10 and 100
	var want []float64
	for _, i := range []int{0, 9, 99} {
		want = append(want, 1.01+float64(i))
	}
	if diff := cmp.Diff(want, amounts); diff != "" {
		t.Errorf("fetched amounts mismatch (-want +got):\n%s", diff)
	}
	active, err := snapshots.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	keys := make([]string, len(active))
	for i, snap := range active {
		keys[i] = snap.Corridor
	}
	if diff := cmp.Diff([]string{"EUR:USD:1", "EUR:USD:10", "EUR:USD:100"}, keys); diff != "" {
		t.Errorf("snapshot corridors mismatch (-want +got):\n%s", diff)
	}

	if _, err := m.Schema(ctx, wise.Corridor{Source: "EUR", Target: "USD", Amount: math.NaN()}, ""); !errors.Is(err, wise.ErrInvalidCorridor) {
		t.Errorf("NaN amount error = %v, want ErrInvalidCorridor", err)
	}
}

func TestManagerEmptyDocument(t *testing.T) {
	m := newTestManager(&stubFetcher{}, Options{})
	_, err := m.Schema(context.Background(), usdCorridor, "")
	if !errors.Is(err, requirements.ErrEmptyDescriptor) {
		t.Errorf("error = %v, want ErrEmptyDescriptor", err)
	}
}

func TestFetcherFunc(t *testing.T) {
	var got wise.Corridor
	f := FetcherFunc(func(_ context.Context, c wise.Corridor) (requirements.Document, error) {
		got = c
		return requirements.Document{}, nil
	})
	_, _ = f.FetchRequirements(context.Background(), usdCorridor)
	if got != usdCorridor {
		t.Errorf("corridor = %+v", got)
	}
}
