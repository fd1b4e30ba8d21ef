// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package taxonomy is the service layer over the category tree. It owns
// the business rules that span stores: slug derivation and uniqueness,
// reparent validation, scheduling path rebuilds, and the cached tree
// projection. HTTP handlers talk to this package, never to the stores
// directly.
package taxonomy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"taxo/internal/cache"
	"taxo/internal/models"
	"taxo/internal/slug"
	"taxo/internal/store"
)

// Scheduler enqueues an asynchronous path rebuild after a reparent. The
// Valkey-backed queue implements it; tests substitute a fake.
type Scheduler interface {
	EnqueueRebuild(ctx context.Context, categoryID int64, newParentID *int64) error
}

// CategoryInput carries the caller-supplied fields for create and update.
// An empty Slug means "derive one from Name".
type CategoryInput struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID *int64 `json:"parent_id"`
}

// Page is one page of a category listing.
type Page struct {
	Items   []models.Category `json:"items"`
	Page    int               `json:"page"`
	HasMore bool              `json:"has_more"`
}

// Service implements the category operations exposed over HTTP.
type Service struct {
	categories *store.CategoryStore
	guard      *store.TreeGuard
	rebuilds   Scheduler
	tree       *cache.TreeCache
}

// NewService creates a Service. tree may be nil when Valkey is not
// configured; the tree endpoint then always reads from PostgreSQL.
func NewService(categories *store.CategoryStore, guard *store.TreeGuard, rebuilds Scheduler, tree *cache.TreeCache) *Service {
	return &Service{
		categories: categories,
		guard:      guard,
		rebuilds:   rebuilds,
		tree:       tree,
	}
}

// CreateCategory validates the input, derives a slug when none is given
// and inserts the category under its parent.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	name, sl, err := s.normalize(in, 0)
	if err != nil {
		return nil, err
	}

	created, err := s.categories.Create(&models.Category{
		Name:     name,
		Slug:     sl,
		ParentID: in.ParentID,
	})
	if errors.Is(err, store.ErrParentNotFound) {
		return nil, &NotFoundError{ID: *in.ParentID}
	}
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	s.invalidateTree(ctx)
	slog.Info("category created", "id", created.ID, "slug", created.Slug)
	return created, nil
}

// UpdateCategory modifies name, slug and parent. A parent change is
// validated against the live tree and schedules an asynchronous path
// rebuild for the moved subtree; the response reflects the new parent
// immediately even though descendant paths converge in the background.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*models.Category, error) {
	current, err := s.categories.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	if current == nil {
		return nil, &NotFoundError{ID: id}
	}

	name, sl, err := s.normalize(in, id)
	if err != nil {
		return nil, err
	}

	parentChanged := !int64PtrEqual(current.ParentID, in.ParentID)
	if parentChanged {
		if err := s.guard.ValidateReparent(id, in.ParentID); err != nil {
			return nil, mapGuardError(err, in.ParentID)
		}
	}

	current.Name = name
	current.Slug = sl
	current.ParentID = in.ParentID
	if err := s.categories.Update(current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("update category: %w", err)
	}

	if parentChanged {
		if err := s.rebuilds.EnqueueRebuild(ctx, id, in.ParentID); err != nil {
			return nil, fmt.Errorf("update category: schedule rebuild: %w", err)
		}
	}

	s.invalidateTree(ctx)

	updated, err := s.categories.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("update category: reload: %w", err)
	}
	return updated, nil
}

// DeleteCategory soft-deletes a leaf category. Categories with live
// children cannot be deleted; the children must be moved or deleted
// first.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	current, err := s.categories.FindByID(id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if current == nil {
		return &NotFoundError{ID: id}
	}

	hasChildren, err := s.categories.HasActiveChildren(id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if hasChildren {
		return &ConflictError{Reason: "category still has children"}
	}

	if err := s.categories.SoftDelete(id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	s.invalidateTree(ctx)
	slog.Info("category deleted", "id", id)
	return nil
}

// GetCategory returns a single live category.
func (s *Service) GetCategory(id int64) (*models.Category, error) {
	c, err := s.categories.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{ID: id}
	}
	return c, nil
}

// ListCategories returns one page of categories ordered by path.
func (s *Service) ListCategories(page, length int, onlyRoots bool) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if length < 1 || length > 200 {
		length = 50
	}
	items, hasMore, err := s.categories.List(page, length, onlyRoots)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return &Page{Items: items, Page: page, HasMore: hasMore}, nil
}

// GetAncestors returns the chain from root to the category's parent.
func (s *Service) GetAncestors(id int64) ([]models.Category, error) {
	c, err := s.GetCategory(id)
	if err != nil {
		return nil, err
	}
	ancestors, err := s.categories.Ancestors(c)
	if err != nil {
		return nil, fmt.Errorf("get ancestors: %w", err)
	}
	return ancestors, nil
}

// GetDescendants returns every live category under the given one, in
// path order.
func (s *Service) GetDescendants(id int64) ([]models.Category, error) {
	c, err := s.GetCategory(id)
	if err != nil {
		return nil, err
	}
	descendants, err := s.categories.Descendants(c)
	if err != nil {
		return nil, fmt.Errorf("get descendants: %w", err)
	}
	return descendants, nil
}

// GetBreadcrumb returns the display trail from root to the category.
func (s *Service) GetBreadcrumb(id int64) (string, error) {
	c, err := s.GetCategory(id)
	if err != nil {
		return "", err
	}
	crumb, err := s.categories.Breadcrumb(c)
	if err != nil {
		return "", fmt.Errorf("get breadcrumb: %w", err)
	}
	return crumb, nil
}

// GetTree returns the full nested tree, served from the Valkey cache
// when warm. The cache is invalidated on every mutation and by the
// rebuild worker, so a stale read window is bounded by the TTL.
func (s *Service) GetTree(ctx context.Context) ([]models.Category, error) {
	if s.tree != nil {
		if data, ok := s.tree.Get(ctx); ok {
			var cached []models.Category
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			// Corrupt entry; fall through to the database.
			s.tree.Invalidate(ctx)
		}
	}

	tree, err := s.categories.Tree()
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}

	if s.tree != nil {
		if data, err := json.Marshal(tree); err == nil {
			s.tree.Set(ctx, data)
		}
	}
	return tree, nil
}

// normalize trims the name, derives or validates the slug and checks
// slug uniqueness among live categories. excludeID is the category being
// updated, or 0 on create.
func (s *Service) normalize(in CategoryInput, excludeID int64) (name, sl string, err error) {
	name = strings.TrimSpace(in.Name)
	if name == "" {
		return "", "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	sl = strings.TrimSpace(in.Slug)
	if sl == "" {
		sl = slug.Generate(name)
	}
	if !slug.IsValid(sl) {
		return "", "", &ValidationError{Field: "slug", Reason: "must contain only lowercase letters, digits and hyphens"}
	}

	taken, err := s.categories.SlugTaken(sl, excludeID)
	if err != nil {
		return "", "", fmt.Errorf("check slug: %w", err)
	}
	if taken {
		return "", "", &ValidationError{Field: "slug", Reason: fmt.Sprintf("%q is already in use", sl)}
	}
	return name, sl, nil
}

func (s *Service) invalidateTree(ctx context.Context) {
	if s.tree != nil {
		s.tree.Invalidate(ctx)
	}
}

func mapGuardError(err error, parentID *int64) error {
	switch {
	case errors.Is(err, store.ErrSelfParent):
		return &ValidationError{Field: "parent_id", Reason: "a category cannot be its own parent"}
	case errors.Is(err, store.ErrDescendantParent):
		return &ValidationError{Field: "parent_id", Reason: "a category cannot be moved under its own descendant"}
	case errors.Is(err, store.ErrParentNotFound):
		if parentID != nil {
			return &NotFoundError{ID: *parentID}
		}
		return err
	default:
		return fmt.Errorf("validate reparent: %w", err)
	}
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
