package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/wisepay/requirements"

	_ "github.com/lib/pq"
)

// ErrNoSnapshot is returned when a corridor has never been fetched.
var ErrNoSnapshot = errors.New("no requirements snapshot")

// Snapshot is one stored version of a corridor's requirements document.
// Exactly one version per corridor is active.
type Snapshot struct {
	Corridor  string
	Version   int
	Checksum  string
	Document  requirements.Document
	Active    bool
	CreatedAt time.Time
}

// SnapshotStore keeps the last known descriptor of every corridor, so the
// service can start and validate while the provider is unreachable.
type SnapshotStore interface {
	// Save stores doc as the new active version unless it equals the active one.
	Save(ctx context.Context, corridor string, doc requirements.Document) (*Snapshot, error)
	Active(ctx context.Context, corridor string) (*Snapshot, error)
	ListActive(ctx context.Context) ([]*Snapshot, error)
}

// InMemorySnapshotStore implements SnapshotStore with a map of version lists.
type InMemorySnapshotStore struct {
	versions map[string][]*Snapshot
	mu       sync.RWMutex
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{versions: make(map[string][]*Snapshot)}
}

func (s *InMemorySnapshotStore) Save(_ context.Context, corridor string, doc requirements.Document) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checksum := doc.Checksum()
	versions := s.versions[corridor]
	if n := len(versions); n > 0 {
		current := versions[n-1]
		if current.Checksum == checksum {
			return current, nil
		}
		current.Active = false
	}

	snap := &Snapshot{
		Corridor:  corridor,
		Version:   len(versions) + 1,
		Checksum:  checksum,
		Document:  doc,
		Active:    true,
		CreatedAt: time.Now(),
	}
	s.versions[corridor] = append(versions, snap)
	return snap, nil
}

func (s *InMemorySnapshotStore) Active(_ context.Context, corridor string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[corridor]
	if len(versions) == 0 {
		return nil, fmt.Errorf("corridor %s: %w", corridor, ErrNoSnapshot)
	}
	return versions[len(versions)-1], nil
}

func (s *InMemorySnapshotStore) ListActive(_ context.Context) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Snapshot, 0, len(s.versions))
	for _, versions := range s.versions {
		out = append(out, versions[len(versions)-1])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Corridor < out[j].Corridor })
	return out, nil
}

// PostgresSnapshotStore implements SnapshotStore on requirement_snapshots.
type PostgresSnapshotStore struct {
	db *sql.DB
}

func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

// Save deactivates the current version and inserts version+1 in one
// transaction.
func (s *PostgresSnapshotStore) Save(ctx context.Context, corridor string, doc requirements.Document) (*Snapshot, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	checksum := doc.Checksum()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSnapshot(tx.QueryRowContext(ctx, `
		SELECT corridor, version, checksum, document, active, created_at
		FROM requirement_snapshots
		WHERE corridor = $1 AND active = true
		FOR UPDATE
	`, corridor))
	switch {
	case err == nil && current.Checksum == checksum:
		return current, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to read active snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE requirement_snapshots
		SET active = false
		WHERE corridor = $1 AND active = true
	`, corridor); err != nil {
		return nil, fmt.Errorf("failed to deactivate old snapshot: %w", err)
	}

	snap := &Snapshot{Corridor: corridor, Checksum: checksum, Document: doc, Active: true}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO requirement_snapshots (corridor, version, checksum, document, active, created_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, true, NOW()
		FROM requirement_snapshots
		WHERE corridor = $1
		RETURNING version, created_at
	`, corridor, checksum, raw).Scan(&snap.Version, &snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return snap, nil
}

func (s *PostgresSnapshotStore) Active(ctx context.Context, corridor string) (*Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT corridor, version, checksum, document, active, created_at
		FROM requirement_snapshots
		WHERE corridor = $1 AND active = true
	`, corridor))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("corridor %s: %w", corridor, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

func (s *PostgresSnapshotStore) ListActive(ctx context.Context) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT corridor, version, checksum, document, active, created_at
		FROM requirement_snapshots
		WHERE active = true
		ORDER BY corridor
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var snap Snapshot
	var raw []byte
	if err := row.Scan(&snap.Corridor, &snap.Version, &snap.Checksum, &raw, &snap.Active, &snap.CreatedAt); err != nil {
		return nil, err
	}
	doc, err := requirements.DecodeBytes(raw)
	if err != nil {
		return nil, err
	}
	snap.Document = doc
	return &snap, nil
}
