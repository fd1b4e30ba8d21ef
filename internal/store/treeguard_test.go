package store

import (
	"testing"
)

func TestTreeGuardAllowsValidMoves(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	g := NewTreeGuard(s)

	a := createCategory(t, db, s, "A", nil)
	b := createCategory(t, db, s, "B", &a.ID)
	other := createCategory(t, db, s, "Other", nil)

	// Move to root is always structurally valid.
	if err := g.ValidateReparent(b.ID, nil); err != nil {
		t.Errorf("move to root: unexpected error %v", err)
	}

	// Move under an unrelated root.
	if err := g.ValidateReparent(b.ID, &other.ID); err != nil {
		t.Errorf("move under unrelated root: unexpected error %v", err)
	}

	// Move a root under a leaf of another subtree.
	if err := g.ValidateReparent(other.ID, &b.ID); err != nil {
		t.Errorf("move root under leaf: unexpected error %v", err)
	}
}

func TestTreeGuardRejectsSelfParent(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	g := NewTreeGuard(s)

	a := createCategory(t, db, s, "A", nil)

	if err := g.ValidateReparent(a.ID, &a.ID); err != ErrSelfParent {
		t.Errorf("expected ErrSelfParent, got %v", err)
	}
}

func TestTreeGuardRejectsDescendantParent(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	g := NewTreeGuard(s)

	a := createCategory(t, db, s, "A", nil)
	b := createCategory(t, db, s, "B", &a.ID)
	c := createCategory(t, db, s, "C", &b.ID)

	// A under its grandchild C would close a cycle.
	if err := g.ValidateReparent(a.ID, &c.ID); err != ErrDescendantParent {
		t.Errorf("expected ErrDescendantParent for grandchild, got %v", err)
	}

	// Direct child as parent is just as invalid.
	if err := g.ValidateReparent(a.ID, &b.ID); err != ErrDescendantParent {
		t.Errorf("expected ErrDescendantParent for child, got %v", err)
	}
}

func TestTreeGuardMissingParent(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	g := NewTreeGuard(s)

	a := createCategory(t, db, s, "A", nil)

	missing := int64(-1)
	if err := g.ValidateReparent(a.ID, &missing); err != ErrParentNotFound {
		t.Errorf("expected ErrParentNotFound, got %v", err)
	}

	// A soft-deleted category cannot become a parent either.
	dead := createCategory(t, db, s, "Dead", nil)
	if err := s.SoftDelete(dead.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if err := g.ValidateReparent(a.ID, &dead.ID); err != ErrParentNotFound {
		t.Errorf("expected ErrParentNotFound for soft-deleted parent, got %v", err)
	}
}
