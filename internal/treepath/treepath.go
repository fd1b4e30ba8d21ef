// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package treepath encodes and decodes the materialized-path string stored
// on category rows. A path lists the ids of every strict ancestor of a node
// in root-to-parent order, each followed by "/": a root category has the
// empty path, a child of root 7 has "7/", a grandchild under 12 has "7/12/".
// The node's own id is never part of its path.
package treepath

import (
	"fmt"
	"strconv"
	"strings"
)

// Sep separates id segments in a materialized path.
const Sep = "/"

// Child returns the path a direct child of the given parent carries:
// the parent's own path followed by the parent's id. A nil-parent caller
// should not use Child; roots simply store the empty path.
func Child(parentPath string, parentID int64) string {
	return parentPath + strconv.FormatInt(parentID, 10) + Sep
}

// AncestorIDs decodes a path into the ordered ancestor id chain
// (root first, immediate parent last). The empty path decodes to nil.
// Empty segments are skipped so a malformed "1//2/" still decodes.
func AncestorIDs(path string) ([]int64, error) {
	if path == "" {
		return nil, nil
	}
	var ids []int64
	for _, seg := range strings.Split(path, Sep) {
		if seg == "" {
			continue
		}
		id, err := strconv.ParseInt(seg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("treepath: bad segment %q in %q: %w", seg, path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Join re-encodes an ancestor id chain into a path. Join(AncestorIDs(p))
// reproduces p for any well-formed path.
func Join(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteString(Sep)
	}
	return b.String()
}

// IsPrefixOf reports whether candidate is a path prefix of path. The empty
// candidate is a prefix of everything, which is why descendant selection
// must never feed a bare node path here — see SubtreePrefix.
func IsPrefixOf(candidate, path string) bool {
	return strings.HasPrefix(path, candidate)
}

// SubtreePrefix returns the prefix shared by every descendant of the node
// with the given path and id. It always ends in "{id}/", so it is non-empty
// even for roots and never matches rows outside the subtree.
func SubtreePrefix(path string, id int64) string {
	return Child(path, id)
}

// Depth returns the number of ancestors encoded in a path. Roots have
// depth zero.
func Depth(path string) int {
	return strings.Count(path, Sep)
}

// DescendantPatterns returns the two LIKE patterns that together match
// every path containing id as a segment: one for id as the first (root)
// ancestor and one for id appearing deeper in the chain. Matching on the
// bare id would be wrong — id 2 is a substring of id 12 — so both patterns
// anchor the id between separators.
func DescendantPatterns(id int64) (first, anywhere string) {
	s := strconv.FormatInt(id, 10)
	return s + Sep + "%", "%" + Sep + s + Sep + "%"
}
