package oauth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Scope is a named permission drawn from a fixed vocabulary.
type Scope string

// Scope vocabulary.
const (
	ScopeRoomsRead  Scope = "rooms:read"
	ScopeRoomsWrite Scope = "rooms:write"
	ScopeZonesRead  Scope = "zones:read"
	ScopeZonesWrite Scope = "zones:write"
	ScopeStatsRead  Scope = "stats:read"
	ScopeUserRead   Scope = "user:read"
	ScopeUserWrite  Scope = "user:write"
	ScopeAdmin      Scope = "admin"
)

// allScopes is the complete vocabulary. Anything else is rejected at parse time.
var allScopes = map[Scope]bool{
	ScopeRoomsRead:  true,
	ScopeRoomsWrite: true,
	ScopeZonesRead:  true,
	ScopeZonesWrite: true,
	ScopeStatsRead:  true,
	ScopeUserRead:   true,
	ScopeUserWrite:  true,
	ScopeAdmin:      true,
}

// DefaultScopes is the scope set granted to first-party user sessions when
// no explicit scope is requested. Everything except admin.
func DefaultScopes() ScopeSet {
	return NewScopeSet(
		ScopeRoomsRead, ScopeRoomsWrite,
		ScopeZonesRead, ScopeZonesWrite,
		ScopeStatsRead, ScopeUserRead,
	)
}

// IsValidScope returns true if s is part of the vocabulary.
func IsValidScope(s Scope) bool {
	return allScopes[s]
}

// ScopeSet is an unordered set of scopes with subset/intersection algebra.
// The zero value (nil) is an empty set.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a set from the given scopes.
func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// ParseScopeSet parses a space-separated scope string (the OAuth wire
// format). Unknown scopes are an error; an empty string is an empty set.
func ParseScopeSet(raw string) (ScopeSet, error) {
	set := make(ScopeSet)
	for _, field := range strings.Fields(raw) {
		s := Scope(field)
		if !allScopes[s] {
			return nil, fmt.Errorf("unknown scope %q", field)
		}
		set[s] = struct{}{}
	}
	return set, nil
}

// Contains returns true if the set includes the given scope.
// The admin scope satisfies every check.
func (ss ScopeSet) Contains(s Scope) bool {
	if _, ok := ss[ScopeAdmin]; ok {
		return true
	}
	_, ok := ss[s]
	return ok
}

// ContainsExact returns true if the scope is literally a member, with no
// admin widening. Used by the issuance algebra, where admin must never
// stand in for a scope the client was not allowed.
func (ss ScopeSet) ContainsExact(s Scope) bool {
	_, ok := ss[s]
	return ok
}

// IsSubsetOf returns true if every member of ss is literally a member of other.
func (ss ScopeSet) IsSubsetOf(other ScopeSet) bool {
	for s := range ss {
		if !other.ContainsExact(s) {
			return false
		}
	}
	return true
}

// Intersect returns the scopes present in both sets.
func (ss ScopeSet) Intersect(other ScopeSet) ScopeSet {
	out := make(ScopeSet)
	for s := range ss {
		if other.ContainsExact(s) {
			out[s] = struct{}{}
		}
	}
	return out
}

// IsEmpty returns true if the set has no members.
func (ss ScopeSet) IsEmpty() bool {
	return len(ss) == 0
}

// Len returns the number of scopes in the set.
func (ss ScopeSet) Len() int {
	return len(ss)
}

// Clone returns a copy of the set.
func (ss ScopeSet) Clone() ScopeSet {
	out := make(ScopeSet, len(ss))
	for s := range ss {
		out[s] = struct{}{}
	}
	return out
}

// Sorted returns the members as a sorted slice of strings.
// Sorting keeps serialised output deterministic.
func (ss ScopeSet) Sorted() []string {
	out := make([]string, 0, len(ss))
	for s := range ss {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}

// String renders the set in the OAuth wire format: space-separated, sorted.
func (ss ScopeSet) String() string {
	return strings.Join(ss.Sorted(), " ")
}

// MarshalJSON renders the set as a sorted JSON array of strings.
func (ss ScopeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ss.Sorted())
}

// UnmarshalJSON accepts a JSON array of scope strings.
func (ss *ScopeSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	set := make(ScopeSet, len(raw))
	for _, field := range raw {
		s := Scope(field)
		if !allScopes[s] {
			return fmt.Errorf("unknown scope %q", field)
		}
		set[s] = struct{}{}
	}
	*ss = set
	return nil
}
