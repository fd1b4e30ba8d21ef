// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"taxo/internal/treepath"
)

// ErrRebuildTargetMissing is returned when the category being rebuilt, or
// its new parent, no longer exists. This is permanent: the task that
// triggered the rebuild must be dropped, not retried.
var ErrRebuildTargetMissing = errors.New("rebuild target category no longer exists")

// PathRebuilder performs the cascading path rewrite after a reparent: the
// moved category gets the path derived from its new parent, and every
// descendant's path has the old subtree prefix replaced with the new one.
// The whole rewrite runs in one transaction, so readers never observe a
// half-rewritten subtree.
type PathRebuilder struct {
	db *sql.DB
}

// NewPathRebuilder returns a PathRebuilder over the given database.
func NewPathRebuilder(db *sql.DB) *PathRebuilder {
	return &PathRebuilder{db: db}
}

// Rebuild recomputes the path of categoryID for its move under newParentID
// (nil for a move to root) and rewrites all descendant paths.
//
// The old path is read fresh inside the transaction, under a row lock on
// the moved category, never taken from the triggering request: two queued
// rebuilds of the same node are thereby serialized and each sees the state
// the previous one committed. Re-running a rebuild whose target is already
// in place is a no-op, which is what makes at-least-once task delivery safe.
//
// Soft-deleted descendants are rewritten too — their rows keep a path for
// audit and undo, and that path must not go stale.
func (r *PathRebuilder) Rebuild(categoryID int64, newParentID *int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("rebuild %d: begin tx: %w", categoryID, err)
	}
	defer tx.Rollback()

	// Lock the moved row and capture its pre-rebuild path.
	var oldStored string
	err = tx.QueryRow(
		`SELECT path FROM categories WHERE id = $1 FOR UPDATE`, categoryID,
	).Scan(&oldStored)
	if err == sql.ErrNoRows {
		return ErrRebuildTargetMissing
	}
	if err != nil {
		return fmt.Errorf("rebuild %d: lock category: %w", categoryID, err)
	}

	// Derive the new path from the parent's current path. FOR SHARE keeps a
	// concurrent create or reparent of the parent from sliding underneath us.
	newStored := ""
	if newParentID != nil {
		var parentID int64
		var parentPath string
		err := tx.QueryRow(`
			SELECT id, path FROM categories
			WHERE id = $1 AND deleted_at IS NULL
			FOR SHARE
		`, *newParentID).Scan(&parentID, &parentPath)
		if err == sql.ErrNoRows {
			return ErrRebuildTargetMissing
		}
		if err != nil {
			return fmt.Errorf("rebuild %d: read parent: %w", categoryID, err)
		}
		newStored = treepath.Child(parentPath, parentID)
	}

	if newStored == oldStored {
		// Already in place — duplicate delivery or a superseded move that
		// landed on the same spot.
		slog.Debug("path rebuild is a no-op", "category_id", categoryID, "path", newStored)
		return tx.Commit()
	}

	if _, err := tx.Exec(`
		UPDATE categories SET path = $1, updated_at = now() WHERE id = $2
	`, newStored, categoryID); err != nil {
		return fmt.Errorf("rebuild %d: update category path: %w", categoryID, err)
	}

	// Every descendant's path starts with the subtree prefix, which always
	// ends in "{id}/". Even when the moved node was a root (old path ""),
	// the prefix is non-empty and cannot match rows outside the subtree.
	oldPrefix := treepath.SubtreePrefix(oldStored, categoryID)
	newPrefix := treepath.SubtreePrefix(newStored, categoryID)

	// Repeat the rewrite until a pass matches nothing. Under READ COMMITTED
	// each statement takes a fresh snapshot: a create under a descendant
	// that committed while the previous pass blocked on its parent's row
	// lock is invisible to that pass but picked up by the next one. Rows
	// rewritten by an earlier pass stay locked until commit, so new stale
	// rows can only appear behind a creator we then block on, and the loop
	// terminates with zero matches only when the subtree is consistent.
	var rewritten int64
	for {
		res, err := tx.Exec(`
			UPDATE categories
			SET path = $1 || substr(path, $2), updated_at = now()
			WHERE path LIKE $3
		`, newPrefix, len(oldPrefix)+1, oldPrefix+"%")
		if err != nil {
			return fmt.Errorf("rebuild %d: rewrite descendants: %w", categoryID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rebuild %d: rewrite descendants: %w", categoryID, err)
		}
		if n == 0 {
			break
		}
		rewritten += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rebuild %d: commit: %w", categoryID, err)
	}
	slog.Info("category paths rebuilt",
		"category_id", categoryID,
		"old_prefix", oldPrefix,
		"new_prefix", newPrefix,
		"descendants_rewritten", rewritten,
	)
	return nil
}
