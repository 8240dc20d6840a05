// Package relation suggests an edge relation for a pair of node kinds.
package relation

import "fmt"

// Relation labels produced by the inferer.
const (
	Answers       = "answers"
	Addresses     = "addresses"
	ResonatesWith = "resonates_with"
	Contextualize = "contextualizes"
	ParallelTo    = "parallel_to"
	ValidatedBy   = "validated_by"
	InformedBy    = "informed_by"
	Extends       = "extends"
	Grounds       = "grounds"
	Supports      = "supports"
	EvidenceFor   = "evidence_for"
	TestedBy      = "tested_by"
	Generalizes   = "generalizes"
	Synthesizes   = "synthesizes"
	RelatesTo     = "relates_to"
)

// KindPair is an unordered pair of node kinds.
type KindPair struct{ A, B string }

// PairOf normalises (a, b) so that PairOf(a, b) == PairOf(b, a).
func PairOf(a, b string) KindPair {
	if a > b {
		a, b = b, a
	}
	return KindPair{a, b}
}

// Hint is a suggested relation and a human-readable reason for it.
type Hint struct {
	Relation  string `json:"relation"`
	Rationale string `json:"rationale"`
}

// Fallback is returned for kind pairs the table does not cover.
var Fallback = Hint{RelatesTo, "semantic connection"}

var hints = map[KindPair]Hint{
	PairOf("insight", "question"):       {Answers, "the insight answers the question"},
	PairOf("observation", "question"):   {Addresses, "the observation addresses the question"},
	PairOf("prediction", "question"):    {ParallelTo, "the prediction runs parallel to the question"},
	PairOf("prediction", "observation"): {ValidatedBy, "the observation validates the prediction"},
	PairOf("prediction", "insight"):     {InformedBy, "the prediction is informed by the insight"},
	PairOf("insight", "insight"):        {Extends, "one insight extends the other"},
	PairOf("insight", "observation"):    {Grounds, "the insight is grounded in the observation"},
	PairOf("insight", "decision"):       {Supports, "the insight supports the decision"},
	PairOf("observation", "experiment"): {EvidenceFor, "the observation is evidence for the experiment"},
	PairOf("prediction", "experiment"):  {TestedBy, "the prediction is tested by the experiment"},
	PairOf("finding", "insight"):        {Generalizes, "the finding generalizes into the insight"},
	PairOf("synthesis", "insight"):      {Synthesizes, "the synthesis integrates the insight"},
	PairOf("concept", "insight"):        {ResonatesWith, "the concept resonates with the insight"},
	PairOf("concept", "question"):       {ParallelTo, "the concept is explored alongside the question"},
	PairOf("finding", "prediction"):     {Extends, "the finding extends the prediction"},
	PairOf("synthesis", "observation"):  {Grounds, "the synthesis is grounded in the observation"},
}

// forbidden maps DCI-feeding relations to their neutral substitutes.
// Engine-generated edges must never carry a key of this map: DCI would
// then measure the engine instead of the research log.
var forbidden = map[string]string{
	Answers:   ResonatesWith,
	Addresses: Contextualize,
}

// Infer returns the relation hint for two node kinds. It is pure and
// symmetric in its arguments.
func Infer(kindA, kindB string) Hint {
	if h, ok := hints[PairOf(kindA, kindB)]; ok {
		return h
	}
	return Fallback
}

// IsForbidden reports whether rel feeds the delayed convergence index.
func IsForbidden(rel string) bool {
	_, ok := forbidden[rel]
	return ok
}

// ForbiddenRelations lists the DCI-feeding relations.
func ForbiddenRelations() []string {
	return []string{Answers, Addresses}
}

// Neutralize swaps a forbidden hint for its neutral substitute and leaves
// every other hint untouched.
func Neutralize(h Hint, kindA, kindB string) Hint {
	sub, ok := forbidden[h.Relation]
	if !ok {
		return h
	}
	p := PairOf(kindA, kindB)
	return Hint{Relation: sub, Rationale: fmt.Sprintf("%s↔%s resonance", p.A, p.B)}
}
