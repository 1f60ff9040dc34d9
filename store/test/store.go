package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/callsight/internal/profile"
	"github.com/hrygo/callsight/store"
	"github.com/hrygo/callsight/store/db"
)

// NewTestingStore opens a migrated store for the driver named by
// CALLSIGHT_TEST_DRIVER (default sqlite). SQLite uses a fresh temp file per
// test; postgres uses POSTGRES_TEST_DSN and skips the test when it is unset.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	p := getTestingProfile(t)
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(dbDriver, p)
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: getDriverFromEnv(),
	}
	p.FromEnv()

	switch p.Driver {
	case "postgres":
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN is not set")
		}
		p.DSN = dsn
	default:
		p.Data = t.TempDir()
		p.DSN = filepath.Join(p.Data, "callsight_test.db")
	}
	return p
}

func getDriverFromEnv() string {
	driver := os.Getenv("CALLSIGHT_TEST_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}
