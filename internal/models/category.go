// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"
)

// Category is a node in the taxonomy tree. ParentID is the single source of
// truth for tree shape; Path is a derived projection of it holding the ids
// of every strict ancestor in root-to-parent order ("" for roots). Only the
// category store and the path rebuilder write Path.
type Category struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	ParentID  *int64     `json:"parent_id"`
	Path      string     `json:"path"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Virtual fields populated by store methods.
	Children []Category `json:"children,omitempty"`
	Depth    int        `json:"depth"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// IsDeleted reports whether the category is soft-deleted. Deleted rows keep
// their path for audit and undo but are hidden from normal reads.
func (c *Category) IsDeleted() bool {
	return c.DeletedAt != nil
}
