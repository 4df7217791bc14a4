package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestDB creates a fresh file-backed SQLite database with all migrations
// applied. It is closed when the test finishes.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lostfound.db")
	d, err := Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := d.Migrate(zerolog.Nop()); err != nil {
		d.Close()
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() { d.Close() })
	return d
}

// PostgresTestURLEnv names the database used by Postgres-backed tests.
const PostgresTestURLEnv = "LOSTFOUND_TEST_POSTGRES_URL"

// NewPostgresTestDB connects to the database named by PostgresTestURLEnv and
// migrates it, skipping the test when the variable is unset.
func NewPostgresTestDB(t testing.TB) *DB {
	t.Helper()

	url := os.Getenv(PostgresTestURLEnv)
	if url == "" {
		t.Skipf("%s not set", PostgresTestURLEnv)
	}
	d, err := Open("postgres", url)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := d.Migrate(zerolog.Nop()); err != nil {
		d.Close()
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() { d.Close() })
	return d
}
