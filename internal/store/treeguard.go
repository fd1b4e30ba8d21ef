// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"errors"
	"fmt"
)

// Reparent validation failures. These are structural and permanent: callers
// surface them and never retry.
var (
	ErrSelfParent       = errors.New("category cannot be its own parent")
	ErrDescendantParent = errors.New("category cannot be assigned under its own descendant")
)

// TreeGuard validates proposed parent changes before they are persisted,
// rejecting mutations that would break the tree shape.
type TreeGuard struct {
	store *CategoryStore
}

// NewTreeGuard returns a TreeGuard backed by the given store.
func NewTreeGuard(store *CategoryStore) *TreeGuard {
	return &TreeGuard{store: store}
}

// maxWalkDepth bounds the ancestor walk so a corrupted parent chain cannot
// loop forever.
const maxWalkDepth = 1000

// ValidateReparent checks that moving categoryID under newParentID keeps the
// tree acyclic. A nil newParentID (move to root) is always structurally
// valid. The cycle check walks the parent pointers of the proposed parent up
// to the root: parent_id is the source of truth for tree shape and is always
// current, whereas the materialized paths of a subtree mid-rebuild are not.
// Returns ErrSelfParent, ErrDescendantParent, ErrParentNotFound, or nil.
func (g *TreeGuard) ValidateReparent(categoryID int64, newParentID *int64) error {
	if newParentID == nil {
		return nil
	}
	if *newParentID == categoryID {
		return ErrSelfParent
	}

	cur, err := g.store.FindByID(*newParentID)
	if err != nil {
		return fmt.Errorf("validate reparent: %w", err)
	}
	if cur == nil {
		return ErrParentNotFound
	}

	for depth := 0; depth < maxWalkDepth; depth++ {
		if cur.ID == categoryID {
			// The proposed parent sits inside the category's own subtree;
			// accepting it would create a cycle.
			return ErrDescendantParent
		}
		if cur.ParentID == nil {
			return nil
		}
		cur, err = g.store.FindByID(*cur.ParentID)
		if err != nil {
			return fmt.Errorf("validate reparent: %w", err)
		}
		if cur == nil {
			// Parent chain hit a soft-deleted or missing row; nothing above
			// can be the moved category anymore.
			return nil
		}
	}
	return fmt.Errorf("validate reparent: parent chain deeper than %d, tree corrupt", maxWalkDepth)
}
