package engine

import "github.com/papercomputeco/memd/pkg/memory"

// DecisionKind classifies what the engine does with a candidate.
type DecisionKind string

const (
	DecisionCreate     DecisionKind = "CREATE"
	DecisionSkip       DecisionKind = "SKIP"
	DecisionUpdate     DecisionKind = "UPDATE"
	DecisionMerge      DecisionKind = "MERGE"
	DecisionContradict DecisionKind = "CONTRADICT"
)

// Decision is the resolver's verdict for one candidate.
type Decision struct {
	Kind DecisionKind

	// Target is the primary existing memory involved, nil for CREATE.
	Target *Related

	// Absorbed are additional duplicates collapsed into Target by a MERGE.
	Absorbed []Related

	// CandidateWins reports, for CONTRADICT, whether the candidate displaced
	// the existing memory. When false the existing memory stands and the
	// candidate is discarded.
	CandidateWins bool
}

// Resolver decides how a candidate relates to its neighborhood. Rules apply
// in priority order: duplicates first, then contradictions, then creation.
type Resolver struct {
	params Params
}

// NewResolver returns a resolver with the given policy.
func NewResolver(params Params) *Resolver {
	return &Resolver{params: params.withDefaults()}
}

// Resolve maps a candidate and its related memories to a decision. The
// related slice must already be sorted best-first as the detector returns it.
func (r *Resolver) Resolve(candidate *memory.CandidateFact, related []Related) Decision {
	var duplicates, conflicts []Related
	for _, rel := range related {
		if rel.Score >= r.params.DuplicateThreshold {
			duplicates = append(duplicates, rel)
		} else {
			conflicts = append(conflicts, rel)
		}
	}

	if len(duplicates) > 0 {
		best := duplicates[0]
		if len(duplicates) > 1 {
			return Decision{Kind: DecisionMerge, Target: &best, Absorbed: duplicates[1:]}
		}
		if candidate.Confidence <= best.Memory.Confidence &&
			!extendsFact(candidate.Fact, best.Memory.Fact) {
			return Decision{Kind: DecisionSkip, Target: &best}
		}
		return Decision{Kind: DecisionUpdate, Target: &best}
	}

	for i := range conflicts {
		rel := conflicts[i]
		if !contradicts(candidate, rel.Memory) {
			continue
		}
		// Higher confidence wins. On an exact tie the candidate wins as the
		// more recent assertion.
		wins := candidate.Confidence >= rel.Memory.Confidence
		return Decision{Kind: DecisionContradict, Target: &rel, CandidateWins: wins}
	}

	return Decision{Kind: DecisionCreate}
}

// contradicts reports whether the candidate asserts a different value for
// the same topic as the existing memory. Facts that merely differ in topic
// or say the same thing are not contradictions.
func contradicts(candidate *memory.CandidateFact, m *memory.Memory) bool {
	if candidate.Topic == "" || m.Topic == "" {
		return false
	}
	if candidate.Topic != m.Topic {
		return false
	}
	return !equivalentFacts(candidate.Fact, m.Fact)
}
