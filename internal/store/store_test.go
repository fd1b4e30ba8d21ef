// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"taxo/internal/database"
	"taxo/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "taxo")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "taxo")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// createCategory inserts a category with a unique slug and registers a hard
// delete for cleanup. Cleanups run LIFO, so children created after their
// parents are removed first and the FK never blocks.
func createCategory(t *testing.T, db *sql.DB, s *CategoryStore, name string, parentID *int64) *models.Category {
	t.Helper()

	c, err := s.Create(&models.Category{
		Name:     name,
		Slug:     "t-" + uuid.NewString()[:8],
		ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("create category %q: %v", name, err)
	}

	t.Cleanup(func() {
		db.Exec("DELETE FROM categories WHERE id = $1", c.ID)
	})
	return c
}

// reloadCategory fetches the current row for id, including soft-deleted rows.
func reloadCategory(t *testing.T, db *sql.DB, id int64) *models.Category {
	t.Helper()

	row := db.QueryRow(`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		t.Fatalf("reload category %d: %v", id, err)
	}
	return c
}
