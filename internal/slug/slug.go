// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug derives URL-friendly category slugs from display names.
package slug

import (
	gosimple "github.com/gosimple/slug"
)

// Generate creates a URL-friendly slug from the given string. Colliding
// slugs are rejected by the service layer, never suffixed silently.
// Example: "Hello, World! 2026" → "hello-world-2026"
func Generate(s string) string {
	return gosimple.Make(s)
}

// IsValid reports whether s is already a well-formed slug.
func IsValid(s string) bool {
	return s != "" && gosimple.IsSlug(s)
}
