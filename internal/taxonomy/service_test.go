// Service tests run against a real PostgreSQL instance and are skipped
// when it is unreachable. The rebuild scheduler is faked so that no
// Valkey instance is needed and enqueue decisions can be asserted.
package taxonomy

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"taxo/internal/database"
	"taxo/internal/models"
	"taxo/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "taxo")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "taxo")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// fakeScheduler records enqueue calls instead of touching Valkey.
type fakeScheduler struct {
	calls []scheduledRebuild
	err   error
}

type scheduledRebuild struct {
	CategoryID  int64
	NewParentID *int64
}

func (f *fakeScheduler) EnqueueRebuild(_ context.Context, categoryID int64, newParentID *int64) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, scheduledRebuild{CategoryID: categoryID, NewParentID: newParentID})
	return nil
}

// newTestService wires a Service against the test database with a fake
// scheduler and no tree cache.
func newTestService(t *testing.T) (*Service, *fakeScheduler, *sql.DB) {
	t.Helper()

	db := testDB(t)
	categories := store.NewCategoryStore(db)
	sched := &fakeScheduler{}
	svc := NewService(categories, store.NewTreeGuard(categories), sched, nil)
	return svc, sched, db
}

// mustCreate makes a category with a unique slug and registers a hard
// delete. Cleanups run LIFO so children vanish before their parents.
func mustCreate(t *testing.T, svc *Service, db *sql.DB, name string, parentID *int64) *models.Category {
	t.Helper()

	c, err := svc.CreateCategory(context.Background(), CategoryInput{
		Name:     name,
		Slug:     "t-" + uuid.NewString()[:8],
		ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM categories WHERE id = $1", c.ID)
	})
	return c
}

func TestCreateCategoryDerivesSlug(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, CategoryInput{Name: "Home & Garden Supplies"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM categories WHERE id = $1", c.ID) })

	if c.Slug != "home-and-garden-supplies" {
		t.Errorf("derived slug: got %q, want %q", c.Slug, "home-and-garden-supplies")
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var vErr *ValidationError
	if _, err := svc.CreateCategory(ctx, CategoryInput{Name: "   "}); !errors.As(err, &vErr) || vErr.Field != "name" {
		t.Errorf("blank name: got %v, want ValidationError on name", err)
	}
	if _, err := svc.CreateCategory(ctx, CategoryInput{Name: "Valid", Slug: "Not A Slug!"}); !errors.As(err, &vErr) || vErr.Field != "slug" {
		t.Errorf("bad slug: got %v, want ValidationError on slug", err)
	}
}

func TestCreateCategoryDuplicateSlug(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, db, "First", nil)

	var vErr *ValidationError
	if _, err := svc.CreateCategory(ctx, CategoryInput{Name: "Second", Slug: a.Slug}); !errors.As(err, &vErr) || vErr.Field != "slug" {
		t.Errorf("duplicate slug: got %v, want ValidationError on slug", err)
	}
}

func TestCreateCategoryMissingParent(t *testing.T) {
	svc, _, _ := newTestService(t)

	missing := int64(-404)
	var nfErr *NotFoundError
	_, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "Orphan", ParentID: &missing})
	if !errors.As(err, &nfErr) || nfErr.ID != missing {
		t.Errorf("missing parent: got %v, want NotFoundError for %d", err, missing)
	}
}

func TestUpdateCategoryReparentEnqueuesRebuild(t *testing.T) {
	svc, sched, db := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, db, "A", nil)
	b := mustCreate(t, svc, db, "B", nil)

	updated, err := svc.UpdateCategory(ctx, b.ID, CategoryInput{Name: b.Name, Slug: b.Slug, ParentID: &a.ID})
	if err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if updated.ParentID == nil || *updated.ParentID != a.ID {
		t.Errorf("parent after update: got %v, want %d", updated.ParentID, a.ID)
	}
	if len(sched.calls) != 1 {
		t.Fatalf("scheduled rebuilds: got %d, want 1", len(sched.calls))
	}
	if call := sched.calls[0]; call.CategoryID != b.ID || call.NewParentID == nil || *call.NewParentID != a.ID {
		t.Errorf("scheduled rebuild: got %+v", call)
	}
}

func TestUpdateCategoryRenameDoesNotEnqueue(t *testing.T) {
	svc, sched, db := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, db, "A", nil)

	updated, err := svc.UpdateCategory(ctx, a.ID, CategoryInput{Name: "A Renamed", Slug: a.Slug})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.Name != "A Renamed" {
		t.Errorf("name after update: got %q", updated.Name)
	}
	if len(sched.calls) != 0 {
		t.Errorf("rename must not schedule a rebuild, got %d", len(sched.calls))
	}
}

func TestUpdateCategoryRejectsCycle(t *testing.T) {
	svc, sched, db := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, db, "A", nil)
	b := mustCreate(t, svc, db, "B", &a.ID)
	c := mustCreate(t, svc, db, "C", &b.ID)

	var vErr *ValidationError
	if _, err := svc.UpdateCategory(ctx, a.ID, CategoryInput{Name: a.Name, Slug: a.Slug, ParentID: &a.ID}); !errors.As(err, &vErr) {
		t.Errorf("self parent: got %v, want ValidationError", err)
	}
	if _, err := svc.UpdateCategory(ctx, a.ID, CategoryInput{Name: a.Name, Slug: a.Slug, ParentID: &c.ID}); !errors.As(err, &vErr) {
		t.Errorf("descendant parent: got %v, want ValidationError", err)
	}
	if len(sched.calls) != 0 {
		t.Errorf("rejected reparent must not schedule a rebuild, got %d", len(sched.calls))
	}
}

func TestDeleteCategory(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, db, "A", nil)
	b := mustCreate(t, svc, db, "B", &a.ID)

	var cErr *ConflictError
	if err := svc.DeleteCategory(ctx, a.ID); !errors.As(err, &cErr) {
		t.Errorf("delete with children: got %v, want ConflictError", err)
	}

	if err := svc.DeleteCategory(ctx, b.ID); err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	var nfErr *NotFoundError
	if _, err := svc.GetCategory(b.ID); !errors.As(err, &nfErr) {
		t.Errorf("get deleted: got %v, want NotFoundError", err)
	}

	// With B gone, A is a leaf again.
	if err := svc.DeleteCategory(ctx, a.ID); err != nil {
		t.Errorf("delete emptied parent: %v", err)
	}
}

func TestGetCategoryNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	var nfErr *NotFoundError
	if _, err := svc.GetCategory(-1); !errors.As(err, &nfErr) {
		t.Errorf("got %v, want NotFoundError", err)
	}
}

func TestGetTreeWithoutCache(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, db, "Tree Root", nil)
	mustCreate(t, svc, db, "Tree Child", &a.ID)

	tree, err := svc.GetTree(ctx)
	if err != nil {
		t.Fatalf("get tree: %v", err)
	}

	var found *models.Category
	for i := range tree {
		if tree[i].ID == a.ID {
			found = &tree[i]
		}
	}
	if found == nil {
		t.Fatalf("root %d missing from tree", a.ID)
	}
	if len(found.Children) != 1 {
		t.Errorf("children of root: got %d, want 1", len(found.Children))
	}
}

func TestListCategoriesClampsPaging(t *testing.T) {
	svc, _, db := newTestService(t)

	mustCreate(t, svc, db, "Paged", nil)

	page, err := svc.ListCategories(0, -5, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page != 1 {
		t.Errorf("page: got %d, want 1", page.Page)
	}
	if len(page.Items) == 0 {
		t.Errorf("expected at least one category")
	}
}
