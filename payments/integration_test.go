//go:build integration
// +build integration

package payments_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/liamcoop/wisepay/payments"
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

	host, _ := container.Host(ctx)
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

func TestPostgresStore_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := payments.NewPostgresStore(db)
	ctx := context.Background()

	p := &payments.Payment{
		ID:             uuid.New(),
		UserID:         "user-1",
		RecipientID:    42,
		QuoteID:        "quote-1",
		TransferID:     4711,
		SourceAmount:   100.5,
		SourceCurrency: "EUR",
		TargetCurrency: "USD",
		PaymentURL:     "https://wise.com/pay/r/4711",
		QRCode:         "data:image/png;base64,AAAA",
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	got.CreatedAt = got.CreatedAt.UTC()
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("payment mismatch (-want +got):\n%s", diff)
	}

	list, err := store.ListByUser(ctx, "user-1")
	if err != nil || len(list) != 1 {
		t.Errorf("ListByUser() = %d payments, %v", len(list), err)
	}

	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, payments.ErrNotFound) {
		t.Errorf("Get() of unknown id error = %v, want ErrNotFound", err)
	}
}
