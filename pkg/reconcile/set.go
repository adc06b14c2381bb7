package reconcile

import (
	"sort"

	"github.com/time7/tagsync/pkg/identity"
)

// IdentifierSet is an immutable set of normalized tag identifiers.
type IdentifierSet struct {
	ids map[string]struct{}
}

// NewIdentifierSet normalizes ids and builds a set from them.
func NewIdentifierSet(ids []string) IdentifierSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if n := identity.Normalize(id); n != "" {
			m[n] = struct{}{}
		}
	}
	return IdentifierSet{ids: m}
}

// Contains expects a normalized identifier.
func (s IdentifierSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s IdentifierSet) Len() int {
	return len(s.ids)
}

// Slice returns the members in sorted order.
func (s IdentifierSet) Slice() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
