package handlers

import (
	"strings"
	"unicode/utf8"
)

// Validation limits for category fields.
const (
	maxNameLen = 255
	maxSlugLen = 255
)

// validateCategory checks category inputs and returns the first error found.
func validateCategory(name, slug string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Name is required."
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "Name is too long (max 255 characters)."
	}
	if utf8.RuneCountInString(slug) > maxSlugLen {
		return "Slug is too long (max 255 characters)."
	}
	return ""
}
