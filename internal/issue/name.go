// Package issue walks the on-disk issue tree and parses its declarative
// state files.
package issue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// nameRe matches MAJOR[.MINOR[.PATCH]]-slug.
var nameRe = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?-([a-zA-Z][a-zA-Z0-9_-]*)$`)

// Name is a parsed qualified issue name.
type Name struct {
	Major    int
	Minor    int
	Patch    int
	HasMinor bool
	HasPatch bool
	Slug     string
}

// ParseName parses a qualified issue name like "2.1-add-parser".
func ParseName(qualified string) (*Name, error) {
	m := nameRe.FindStringSubmatch(qualified)
	if m == nil {
		return nil, fmt.Errorf("invalid issue name %q", qualified)
	}
	n := &Name{Slug: m[4]}
	n.Major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		n.Minor, _ = strconv.Atoi(m[2])
		n.HasMinor = true
	}
	if m[3] != "" {
		n.Patch, _ = strconv.Atoi(m[3])
		n.HasPatch = true
	}
	return n, nil
}

// IsQualified reports whether s parses as a qualified issue name.
func IsQualified(s string) bool {
	return nameRe.MatchString(s)
}

// String renders the canonical qualified form.
func (n *Name) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", n.Major)
	if n.HasMinor {
		fmt.Fprintf(&b, ".%d", n.Minor)
	}
	if n.HasPatch {
		fmt.Fprintf(&b, ".%d", n.Patch)
	}
	b.WriteByte('-')
	b.WriteString(n.Slug)
	return b.String()
}

// Less orders names by (major, minor, patch, qualified name). Absent
// components sort as zero; the final string comparison makes the order
// total and deterministic.
func (n *Name) Less(other *Name) bool {
	if n.Major != other.Major {
		return n.Major < other.Major
	}
	if n.Minor != other.Minor {
		return n.Minor < other.Minor
	}
	if n.Patch != other.Patch {
		return n.Patch < other.Patch
	}
	return n.String() < other.String()
}
