package engine

import "strings"

// normalizeFact canonicalizes a fact for textual comparison: lowercased,
// whitespace collapsed, trailing sentence punctuation stripped.
func normalizeFact(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".!?")
}

// equivalentFacts reports whether two facts say the same thing after
// normalization.
func equivalentFacts(a, b string) bool {
	return normalizeFact(a) == normalizeFact(b)
}

// extendsFact reports whether candidate strictly extends base: it contains
// everything base says plus more.
func extendsFact(candidate, base string) bool {
	nc, nb := normalizeFact(candidate), normalizeFact(base)
	return len(nc) > len(nb) && strings.Contains(nc, nb)
}
