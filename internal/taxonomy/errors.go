// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package taxonomy

import "fmt"

// ValidationError reports a rejected input on a category operation:
// a blank name, a malformed or already-taken slug, or a structurally
// invalid parent. The Field names the offending input so callers can
// surface it next to the right form control.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a category (or referenced parent) that does not
// exist or has been soft-deleted.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("category %d not found", e.ID)
}

// ConflictError reports an operation rejected because it would leave the
// tree in an inconsistent state, such as deleting a category that still
// has live children.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}
