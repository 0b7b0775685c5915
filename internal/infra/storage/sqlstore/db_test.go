package sqlstore

import (
	"context"
	"os"
	"testing"

	"github.com/vietddude/kitchenline/internal/infra/storage/storagetest"
)

func TestDB_SQLite(t *testing.T) {
	db, err := NewDB(context.Background(), Config{Driver: DriverSQLite, URL: ":memory:"})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer db.Close()

	storagetest.Run(t, db)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestDB_MigrationsIdempotent(t *testing.T) {
	path := t.TempDir() + "/kitchenline.db"
	ctx := context.Background()

	first, err := NewDB(ctx, Config{URL: path})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := first.Set(ctx, "auth_token", "abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	first.Close()

	second, err := NewDB(ctx, Config{URL: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "auth_token")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected value to survive reopen, got %q", got)
	}
}

func TestNewDB_UnsupportedDriver(t *testing.T) {
	if _, err := NewDB(context.Background(), Config{Driver: "mysql", URL: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestDB_PostgresLive(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping live postgres test. Set DATABASE_URL to run.")
	}
	ctx := context.Background()

	for _, driver := range []string{DriverPgx, DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			db, err := NewDB(ctx, Config{Driver: driver, URL: url})
			if err != nil {
				t.Fatalf("NewDB failed: %v", err)
			}
			defer db.Close()
			if _, err := db.db.ExecContext(ctx, `DELETE FROM kv_store`); err != nil {
				t.Fatalf("truncate failed: %v", err)
			}
			storagetest.Run(t, db)
		})
	}
}
