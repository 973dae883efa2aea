package memory

import (
	"fmt"
	"sort"
	"strings"
)

// Scope is the key-value identity boundary within which memory uniqueness,
// locking, and consolidation ordering are enforced (e.g. user, project).
//
// Pairs are held sorted by key so that equivalent scopes always produce the
// same canonical key regardless of the order the caller supplied them in.
// Scope must never be exposed as an unordered map: the canonical string is
// used as the lock key and the storage partition key.
type Scope struct {
	pairs []ScopePair
}

// ScopePair is a single key-value entry of a Scope.
type ScopePair struct {
	Key   string
	Value string
}

// escaper protects the canonical separators inside keys and values.
var escaper = strings.NewReplacer("%", "%25", "=", "%3D", ";", "%3B")

// NewScope builds a Scope from a plain map, sorting keys for canonical order.
func NewScope(kv map[string]string) Scope {
	pairs := make([]ScopePair, 0, len(kv))
	for k, v := range kv {
		pairs = append(pairs, ScopePair{Key: k, Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return Scope{pairs: pairs}
}

// Pairs returns the scope entries in canonical (key-sorted) order.
func (s Scope) Pairs() []ScopePair {
	out := make([]ScopePair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Len returns the number of entries in the scope.
func (s Scope) Len() int {
	return len(s.pairs)
}

// Get returns the value for a key and whether it was present.
func (s Scope) Get(key string) (string, bool) {
	for _, p := range s.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Key returns the deterministic canonical serialization of the scope:
// key-sorted "k=v" entries joined by ";" with separators percent-escaped.
// Equivalent scopes always collide on the same key.
func (s Scope) Key() string {
	var sb strings.Builder
	for i, p := range s.pairs {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(escaper.Replace(p.Key))
		sb.WriteByte('=')
		sb.WriteString(escaper.Replace(p.Value))
	}
	return sb.String()
}

// Map returns the scope as a plain map for JSON payloads.
func (s Scope) Map() map[string]string {
	m := make(map[string]string, len(s.pairs))
	for _, p := range s.pairs {
		m[p.Key] = p.Value
	}
	return m
}

// Equal reports whether two scopes have identical canonical keys.
func (s Scope) Equal(other Scope) bool {
	return s.Key() == other.Key()
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return fmt.Sprintf("scope(%s)", s.Key())
}
