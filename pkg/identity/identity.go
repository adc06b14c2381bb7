// Package identity holds the canonical form of tag identifiers. Every other
// package assumes identifiers it receives have already been through Normalize.
package identity

import "strings"

// Normalize returns the canonical form of a tag identifier: surrounding
// whitespace removed and hex digits upper-cased. It is idempotent.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Equal reports whether two identifiers refer to the same tag.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
