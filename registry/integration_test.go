//go:build integration
// +build integration

package registry_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liamcoop/wisepay/registry"
	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/wise"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

func setupTestDB(t *testing.T) *sql.DB {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "wisepay_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=test password=test dbname=wisepay_test sslmode=disable", host, port.Port()))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for i := 0; i < 30; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

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

func TestPostgresSnapshotStore_Versions(t *testing.T) {
	db := setupTestDB(t)
	store := registry.NewPostgresSnapshotStore(db)
	ctx := context.Background()
	doc := loadDocument(t)

	if _, err := store.Active(ctx, "EUR:USD:100"); !errors.Is(err, registry.ErrNoSnapshot) {
		t.Fatalf("Active() error = %v, want ErrNoSnapshot", err)
	}

	first, err := store.Save(ctx, "EUR:USD:100", doc)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if first.Version != 1 || !first.Active {
		t.Errorf("first snapshot = %+v", first)
	}

	same, err := store.Save(ctx, "EUR:USD:100", doc)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if same.Version != 1 {
		t.Errorf("unchanged document should not add a version, got %d", same.Version)
	}

	aba, _ := doc.Select("aba")
	second, err := store.Save(ctx, "EUR:USD:100", aba)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("changed document version = %d, want 2", second.Version)
	}

	active, err := store.Active(ctx, "EUR:USD:100")
	if err != nil {
		t.Fatalf("Active() failed: %v", err)
	}
	if active.Version != 2 || active.Checksum != aba.Checksum() {
		t.Errorf("active snapshot = version %d checksum %s", active.Version, active.Checksum)
	}
	if len(active.Document.Requirements) != 1 {
		t.Errorf("stored document should round trip, got %d types", len(active.Document.Requirements))
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requirement_snapshots WHERE corridor = $1 AND active`, "EUR:USD:100").Scan(&rows); err != nil {
		t.Fatalf("count active rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("corridor has %d active rows, want 1", rows)
	}
}

func TestManager_WarmStartFromPostgres(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	corridor := wise.Corridor{Source: "EUR", Target: "USD", Amount: 100}

	online := registry.NewManager(registry.FetcherFunc(func(context.Context, wise.Corridor) (requirements.Document, error) {
		return loadDocument(t), nil
	}), registry.Options{Snapshots: registry.NewPostgresSnapshotStore(db)})
	if _, err := online.Schema(ctx, corridor, ""); err != nil {
		t.Fatalf("Schema() failed: %v", err)
	}

	offline := registry.NewManager(registry.FetcherFunc(func(context.Context, wise.Corridor) (requirements.Document, error) {
		return requirements.Document{}, &wise.APIError{StatusCode: 503}
	}), registry.Options{Snapshots: registry.NewPostgresSnapshotStore(db), FetchAttempts: 1})

	n, err := offline.LoadSnapshots(ctx)
	if err != nil || n != 1 {
		t.Fatalf("LoadSnapshots() = %d, %v", n, err)
	}
	entry, err := offline.Schema(ctx, corridor, "swift_code")
	if err != nil {
		t.Fatalf("Schema() after warm start failed: %v", err)
	}
	if entry.Schema.Type() != "swift_code" {
		t.Errorf("Type() = %q", entry.Schema.Type())
	}
}
