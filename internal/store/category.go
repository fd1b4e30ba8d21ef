// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taxo/internal/models"
	"taxo/internal/treepath"
)

// ErrParentNotFound is returned when a referenced parent category does not
// resolve to a live row.
var ErrParentNotFound = errors.New("parent category not found")

// CategoryStore manages category rows in the database. All reads exclude
// soft-deleted rows; deleted rows keep their path so the rebuilder can still
// rewrite them and so they can be audited or restored.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, name, slug, parent_id, path, created_at, updated_at, deleted_at`

// scanCategory scans a row into a Category struct. Depth is derived from
// the stored path, so it can lag like the path itself while a rebuild for
// the subtree is still queued.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Slug, &c.ParentID,
		&c.Path, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Depth = treepath.Depth(c.Path)
	return &c, nil
}

// FindByID retrieves a live category by ID. Returns nil if not found or
// soft-deleted.
func (s *CategoryStore) FindByID(id int64) (*models.Category, error) {
	row := s.db.QueryRow(
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND deleted_at IS NULL`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// SlugTaken reports whether another live category already uses slug.
// excludeID skips the row being mutated so updates don't collide with
// themselves; pass 0 on create.
func (s *CategoryStore) SlugTaken(slug string, excludeID int64) (bool, error) {
	var taken bool
	err := s.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM categories
			WHERE slug = $1 AND deleted_at IS NULL AND id != $2
		)
	`, slug, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return taken, nil
}

// Create inserts a new category, computing its materialized path from the
// parent's current path inside the same transaction. The parent row is
// locked so a concurrent reparent of the parent cannot leave the new child
// with a path from either side of the move.
func (s *CategoryStore) Create(c *models.Category) (*models.Category, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("create category: begin tx: %w", err)
	}
	defer tx.Rollback()

	path := ""
	if c.ParentID != nil {
		var parentID int64
		var parentPath string
		err := tx.QueryRow(`
			SELECT id, path FROM categories
			WHERE id = $1 AND deleted_at IS NULL
			FOR UPDATE
		`, *c.ParentID).Scan(&parentID, &parentPath)
		if err == sql.ErrNoRows {
			return nil, ErrParentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("create category: lock parent: %w", err)
		}
		path = treepath.Child(parentPath, parentID)
	}

	row := tx.QueryRow(`
		INSERT INTO categories (name, slug, parent_id, path)
		VALUES ($1, $2, $3, $4)
		RETURNING `+categoryColumns,
		c.Name, c.Slug, c.ParentID, path,
	)
	result, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create category: commit: %w", err)
	}
	return result, nil
}

// Update modifies a category's name, slug and parent pointer. It never
// writes path — that is the rebuilder's job, triggered by the caller when
// parent_id actually changed.
func (s *CategoryStore) Update(c *models.Category) error {
	res, err := s.db.Exec(`
		UPDATE categories SET
			name = $1, slug = $2, parent_id = $3, updated_at = now()
		WHERE id = $4 AND deleted_at IS NULL
	`, c.Name, c.Slug, c.ParentID, c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete marks a category as deleted. The row and its path are kept.
func (s *CategoryStore) SoftDelete(id int64) error {
	res, err := s.db.Exec(`
		UPDATE categories SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("soft delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasActiveChildren reports whether any live category points at id as its
// parent. The deletion guard at the service boundary uses this.
func (s *CategoryStore) HasActiveChildren(id int64) (bool, error) {
	var has bool
	err := s.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM categories
			WHERE parent_id = $1 AND deleted_at IS NULL
		)
	`, id).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check children: %w", err)
	}
	return has, nil
}

// Ancestors returns the category's ancestor chain, root first, immediate
// parent last. The order encoded in the path is authoritative — ancestor id
// chains are not numerically increasing in general — so rows are fetched by
// id and re-ordered to match the path. A root returns nil without querying.
func (s *CategoryStore) Ancestors(c *models.Category) ([]models.Category, error) {
	ids, err := treepath.AncestorIDs(c.Path)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %d: %w", c.ID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT `+categoryColumns+` FROM categories WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %d: %w", c.ID, err)
	}
	defer rows.Close()

	byID := make(map[int64]models.Category, len(ids))
	for rows.Next() {
		a, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ancestor: %w", err)
		}
		byID[a.ID] = *a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]models.Category, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

// Descendants returns every live category below c in the tree, excluding c
// itself. Matching is boundary-aware: the id must appear as a whole "/"
// delimited segment of the path, so id 2 never matches inside id 12.
func (s *CategoryStore) Descendants(c *models.Category) ([]models.Category, error) {
	first, anywhere := treepath.DescendantPatterns(c.ID)
	rows, err := s.db.Query(`
		SELECT `+categoryColumns+` FROM categories
		WHERE (path LIKE $1 OR path LIKE $2)
		  AND id != $3
		  AND deleted_at IS NULL
		ORDER BY path, id
	`, first, anywhere, c.ID)
	if err != nil {
		return nil, fmt.Errorf("descendants of %d: %w", c.ID, err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		d, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan descendant: %w", err)
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

// Breadcrumb renders the category's ancestor names and its own name joined
// with " > ", e.g. "Electronics > Computers > Laptops".
func (s *CategoryStore) Breadcrumb(c *models.Category) (string, error) {
	ancestors, err := s.Ancestors(c)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		parts = append(parts, a.Name)
	}
	parts = append(parts, c.Name)
	return strings.Join(parts, " > "), nil
}

// List returns one page of live categories ordered by id. onlyRoots limits
// the result to categories without a parent. The second return value
// reports whether more pages follow.
func (s *CategoryStore) List(page, length int, onlyRoots bool) ([]models.Category, bool, error) {
	if page < 1 {
		page = 1
	}
	if length < 1 {
		length = 10
	}

	query := `SELECT ` + categoryColumns + ` FROM categories WHERE deleted_at IS NULL`
	if onlyRoots {
		query += ` AND parent_id IS NULL`
	}
	query += ` ORDER BY id LIMIT $1 OFFSET $2`

	// Fetch one extra row to detect whether another page exists.
	rows, err := s.db.Query(query, length+1, (page-1)*length)
	if err != nil {
		return nil, false, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > length
	if hasMore {
		items = items[:length]
	}
	return items, hasMore, nil
}

// ListAll returns every live category ordered by name. Used to build the
// nested tree in memory.
func (s *CategoryStore) ListAll() ([]models.Category, error) {
	rows, err := s.db.Query(
		`SELECT ` + categoryColumns + ` FROM categories WHERE deleted_at IS NULL ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list all categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// Tree returns the live categories as a nested tree structure.
func (s *CategoryStore) Tree() ([]models.Category, error) {
	flat, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	return buildTree(flat, nil), nil
}

// buildTree recursively builds a tree from a flat list. Depth was already
// set from each row's path when it was scanned.
func buildTree(flat []models.Category, parentID *int64) []models.Category {
	var result []models.Category
	for _, c := range flat {
		if ptrEqual(c.ParentID, parentID) {
			c.Children = buildTree(flat, &c.ID)
			result = append(result, c)
		}
	}
	return result
}

// ptrEqual compares two *int64 for equality (both nil or same value).
func ptrEqual(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
