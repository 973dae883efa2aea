package engine

import (
	"sort"

	"github.com/papercomputeco/memd/pkg/memory"
)

// MergedState is the post-merge view of the surviving memory.
type MergedState struct {
	Fact       string
	Topic      string
	Confidence float64
}

// CombineConfidence treats two confidence values as independent evidence for
// the same fact: combined = 1 - (1-a)(1-b). The operation is commutative and
// never exceeds 1.
func CombineConfidence(a, b float64) float64 {
	c := 1 - (1-a)*(1-b)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Merger computes the surviving state for UPDATE and MERGE decisions.
type Merger struct{}

// NewMerger returns a merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Update merges a candidate into a single duplicate target. A candidate that
// strictly extends the target replaces its text; one that merely corroborates
// leaves the text alone. Confidence combines either way.
func (g *Merger) Update(candidate *memory.CandidateFact, target *memory.Memory) MergedState {
	state := MergedState{
		Fact:       target.Fact,
		Topic:      target.Topic,
		Confidence: CombineConfidence(target.Confidence, candidate.Confidence),
	}
	if extendsFact(candidate.Fact, target.Fact) {
		state.Fact = candidate.Fact
	}
	if state.Topic == "" {
		state.Topic = candidate.Topic
	}
	return state
}

// Merge collapses a candidate and several duplicates into one surviving
// state. The longest normalized text wins as the most informative phrasing,
// and every contributor's confidence combines into the survivor.
func (g *Merger) Merge(candidate *memory.CandidateFact, target *memory.Memory, absorbed []Related) MergedState {
	type contributor struct {
		fact       string
		topic      string
		confidence float64
	}
	contributors := []contributor{
		{target.Fact, target.Topic, target.Confidence},
		{candidate.Fact, candidate.Topic, candidate.Confidence},
	}
	for _, rel := range absorbed {
		contributors = append(contributors, contributor{rel.Memory.Fact, rel.Memory.Topic, rel.Memory.Confidence})
	}

	best := contributors[0]
	for _, c := range contributors[1:] {
		if len(normalizeFact(c.fact)) > len(normalizeFact(best.fact)) {
			best = c
		}
	}

	confidences := make([]float64, 0, len(contributors))
	for _, c := range contributors {
		confidences = append(confidences, c.confidence)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(confidences)))
	combined := confidences[0]
	for _, c := range confidences[1:] {
		combined = CombineConfidence(combined, c)
	}

	state := MergedState{Fact: best.fact, Topic: target.Topic, Confidence: combined}
	if state.Topic == "" {
		state.Topic = candidate.Topic
	}
	return state
}
