package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/liamcoop/wisepay/internal/logger"
	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/schema"
	"github.com/liamcoop/wisepay/wise"
)

// Fetcher loads the requirements document of a corridor from the provider.
type Fetcher interface {
	FetchRequirements(ctx context.Context, corridor wise.Corridor) (requirements.Document, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, corridor wise.Corridor) (requirements.Document, error)

func (f FetcherFunc) FetchRequirements(ctx context.Context, corridor wise.Corridor) (requirements.Document, error) {
	return f(ctx, corridor)
}

// RuleChecker reports cross-field violations of a record.
type RuleChecker interface {
	Violations(recipientType string, rec schema.Record) ([]schema.FieldError, error)
}

// Options configures a Manager. Zero values select in-memory components.
type Options struct {
	Documents     DocumentCache
	Schemas       SchemaCache
	Snapshots     SnapshotStore
	Rules         RuleChecker
	Parser        *requirements.Parser
	FetchAttempts uint
	RetryDelay    time.Duration
}

// Entry is the compiled schema of one recipient type in one corridor.
type Entry struct {
	Corridor wise.Corridor
	// Types lists every recipient type the corridor offers.
	Types []string
	*Compiled
}

// Manager resolves corridors to compiled schemas. Documents come from the
// cache, then the provider, then the last stored snapshot.
type Manager struct {
	fetcher   Fetcher
	docs      DocumentCache
	schemas   SchemaCache
	snapshots SnapshotStore
	rules     RuleChecker
	parser    *requirements.Parser
	attempts  uint
	delay     time.Duration
}

func NewManager(fetcher Fetcher, opts Options) *Manager {
	m := &Manager{
		fetcher:   fetcher,
		docs:      opts.Documents,
		schemas:   opts.Schemas,
		snapshots: opts.Snapshots,
		rules:     opts.Rules,
		parser:    opts.Parser,
		attempts:  opts.FetchAttempts,
		delay:     opts.RetryDelay,
	}
	if m.docs == nil {
		m.docs = NewInMemoryDocumentCache(time.Hour)
	}
	if m.schemas == nil {
		m.schemas = NewInMemorySchemaCache(24*time.Hour, 256)
	}
	if m.snapshots == nil {
		m.snapshots = NewInMemorySnapshotStore()
	}
	if m.parser == nil {
		m.parser = requirements.NewParser()
	}
	if m.attempts == 0 {
		m.attempts = 3
	}
	if m.delay == 0 {
		m.delay = 200 * time.Millisecond
	}
	return m
}

// Document returns the requirements document of a corridor.
func (m *Manager) Document(ctx context.Context, corridor wise.Corridor) (requirements.Document, error) {
	corridor = corridor.Normalize()
	if err := corridor.Validate(); err != nil {
		return requirements.Document{}, err
	}
	key := corridor.Key()

	doc, ok, err := m.docs.Get(ctx, key)
	if err != nil {
		logger.Warn("requirements cache read failed", "corridor", key, "error", err.Error())
	}
	if ok {
		return doc, nil
	}

	doc, err = m.fetch(ctx, corridor)
	if err != nil {
		snap, snapErr := m.snapshots.Active(ctx, key)
		if snapErr != nil {
			return requirements.Document{}, err
		}
		logger.Warn("requirements fetch failed, serving stored snapshot",
			"corridor", key, "version", snap.Version, "error", err.Error())
		return snap.Document, nil
	}

	if snap, err := m.snapshots.Save(ctx, key, doc); err != nil {
		logger.Error("failed to store requirements snapshot", "corridor", key, "error", err.Error())
	} else {
		logger.Debug("requirements snapshot stored", "corridor", key, "version", snap.Version, "checksum", snap.Checksum)
	}
	if err := m.docs.Set(ctx, key, doc); err != nil {
		logger.Warn("requirements cache write failed", "corridor", key, "error", err.Error())
	}
	return doc, nil
}

func (m *Manager) fetch(ctx context.Context, corridor wise.Corridor) (requirements.Document, error) {
	var doc requirements.Document
	err := retry.Do(func() error {
		var err error
		doc, err = m.fetcher.FetchRequirements(ctx, corridor)
		return err
	},
		retry.Attempts(m.attempts),
		retry.Delay(m.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("retrying requirements fetch", "corridor", corridor.Key(), "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		return requirements.Document{}, fmt.Errorf("fetch requirements %s: %w", corridor.Key(), err)
	}
	return doc, nil
}

// retryable keeps retrying transport failures and retryable provider
// responses. A malformed document will not get better.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var malformed *requirements.MalformedDescriptorError
	if errors.As(err, &malformed) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// Schema returns the compiled schema of recipientType in a corridor. An
// empty recipientType selects the first type the provider offers.
func (m *Manager) Schema(ctx context.Context, corridor wise.Corridor, recipientType string) (*Entry, error) {
	if recipientType != "" {
		if err := validateRecipientType(recipientType); err != nil {
			return nil, err
		}
	}
	doc, err := m.Document(ctx, corridor)
	if err != nil {
		return nil, err
	}

	compiled, err := m.compile(doc, recipientType)
	if err != nil {
		return nil, err
	}
	return &Entry{Corridor: corridor.Normalize(), Types: doc.Types(), Compiled: compiled}, nil
}

func (m *Manager) compile(doc requirements.Document, recipientType string) (*Compiled, error) {
	if recipientType == "" && len(doc.Requirements) > 0 {
		recipientType = doc.Requirements[0].Type
	}
	selected := doc
	if recipientType != "" {
		var err error
		if selected, err = doc.Select(recipientType); err != nil {
			return nil, err
		}
	}

	var checksum string
	if len(selected.Requirements) > 0 {
		checksum = requirements.Checksum(selected.Requirements[0])
		if c, ok := m.schemas.Get(SchemaKey(recipientType, checksum)); ok {
			return c, nil
		}
	}

	set, err := m.parser.Parse(selected)
	if err != nil {
		return nil, err
	}
	cs, err := schema.Compile(set)
	if err != nil {
		return nil, err
	}
	c := &Compiled{Requirements: set, Schema: cs, Checksum: checksum}
	m.schemas.Set(SchemaKey(recipientType, checksum), c)
	return c, nil
}

// Validate checks rec against the recipient type's field rules and then the
// cross-field rules. The returned error is only set when no schema could be
// resolved; a rejected record is reported in the Result.
func (m *Manager) Validate(ctx context.Context, corridor wise.Corridor, recipientType string, rec schema.Record) (*Entry, schema.Result, error) {
	entry, err := m.Schema(ctx, corridor, recipientType)
	if err != nil {
		return nil, schema.Result{}, err
	}

	res := entry.Schema.Validate(rec)
	if m.rules != nil {
		violations, err := m.rules.Violations(entry.Schema.Type(), rec)
		if err != nil {
			return nil, schema.Result{}, fmt.Errorf("evaluate rules: %w", err)
		}
		if len(violations) > 0 {
			res.Errors = append(res.Errors, violations...)
			res.Record = nil
		}
	}
	if !res.OK() {
		logger.WarnRejectedRecord()
	}
	return entry, res, nil
}

// Example generates a record for the recipient type and lists the fields the
// generator could not satisfy.
func (m *Manager) Example(ctx context.Context, corridor wise.Corridor, recipientType string, opts schema.GenerateOptions) (*Entry, schema.Record, []schema.Gap, error) {
	entry, err := m.Schema(ctx, corridor, recipientType)
	if err != nil {
		return nil, nil, nil, err
	}
	rec, gaps := entry.Schema.GenerateReport(opts)
	return entry, rec, gaps, nil
}

// Refresh drops the cached document of a corridor and fetches it again.
func (m *Manager) Refresh(ctx context.Context, corridor wise.Corridor) (requirements.Document, error) {
	corridor = corridor.Normalize()
	if err := m.docs.Delete(ctx, corridor.Key()); err != nil {
		logger.Warn("requirements cache delete failed", "corridor", corridor.Key(), "error", err.Error())
	}
	return m.Document(ctx, corridor)
}

// LoadSnapshots primes the caches from stored snapshots and returns how many
// corridors were loaded. Recipient types that fail to compile are logged and
// skipped.
func (m *Manager) LoadSnapshots(ctx context.Context) (int, error) {
	snaps, err := m.snapshots.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	for _, snap := range snaps {
		if err := m.docs.Set(ctx, snap.Corridor, snap.Document); err != nil {
			logger.Warn("requirements cache write failed", "corridor", snap.Corridor, "error", err.Error())
		}
		for _, t := range snap.Document.Types() {
			if _, err := m.compile(snap.Document, t); err != nil {
				logger.Warn("stored requirements do not compile", "corridor", snap.Corridor, "recipientType", t, "error", err.Error())
			}
		}
	}
	logger.Info("requirements snapshots loaded", "corridors", len(snaps), "schemas", m.schemas.Len())
	return len(snaps), nil
}
