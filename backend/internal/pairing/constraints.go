package pairing

import (
	"fmt"
	"sort"

	"emergent-kg/backend/internal/relation"
)

// Reason names the constraint that excluded a candidate.
type Reason string

const (
	ReasonShortSpan   Reason = "min_span"
	ReasonForbidden   Reason = "forbidden_relation"
	ReasonMinSemantic Reason = "min_semantic"
	ReasonRegion      Reason = "region"
	ReasonFloor       Reason = "cser_floor"
)

// Rejections counts excluded candidates per constraint.
type Rejections map[Reason]int

// Top returns the constraint with the most rejections. Ties resolve by
// reason name so the answer is stable.
func (r Rejections) Top() (Reason, int) {
	reasons := make([]string, 0, len(r))
	for k, v := range r {
		if v > 0 {
			reasons = append(reasons, string(k))
		}
	}
	sort.Strings(reasons)

	var (
		best  Reason
		count int
	)
	for _, k := range reasons {
		if v := r[Reason(k)]; v > count {
			best, count = Reason(k), v
		}
	}
	return best, count
}

// Filter applies the per-candidate constraints of a profile.
type Filter struct {
	profile ScoringProfile
}

func NewFilter(profile ScoringProfile) *Filter {
	return &Filter{profile: profile}
}

// Relations infers a relation for each candidate and applies the
// forbidden-relation policy. It runs before scoring, so rejected pairs are
// never scored.
func (f *Filter) Relations(cands []Candidate, rej Rejections) []Scored {
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		hint := relation.Infer(c.A.Kind, c.B.Kind)
		substituted := false
		if relation.IsForbidden(hint.Relation) {
			if f.profile.Forbidden == ForbiddenReject {
				rej[ReasonForbidden]++
				continue
			}
			hint = relation.Neutralize(hint, c.A.Kind, c.B.Kind)
			substituted = true
		}
		out = append(out, Scored{
			Candidate:   c,
			From:        c.A.ID,
			To:          c.B.ID,
			Relation:    hint,
			Substituted: substituted,
		})
	}
	return out
}

// Screen drops scored candidates below the semantic threshold and, in
// strict mode, outside the region. In soft mode a region violation costs
// SoftPenalty instead.
func (f *Filter) Screen(items []Scored, rej Rejections) []Scored {
	out := items[:0]
	for _, c := range items {
		if c.Semantic < f.profile.MinSemantic {
			rej[ReasonMinSemantic]++
			continue
		}
		if !c.InRegion {
			if f.profile.Mode == ModeStrict {
				rej[ReasonRegion]++
				continue
			}
			c.Penalty = f.profile.SoftPenalty
		}
		out = append(out, c)
	}
	return out
}

// Infeasible explains an empty selection.
type Infeasible struct {
	Reason  Reason     `json:"reason"`
	Count   int        `json:"count"`
	Counts  Rejections `json:"counts"`
	Message string     `json:"message"`
}

func explain(rej Rejections, enumerated int) *Infeasible {
	reason, count := rej.Top()
	msg := "graph has no unconnected node pairs"
	if reason != "" {
		msg = fmt.Sprintf("no feasible candidates: %s excluded %d of them", reason, count)
	} else if enumerated > 0 {
		msg = "no candidates survived scoring"
	}
	return &Infeasible{Reason: reason, Count: count, Counts: rej, Message: msg}
}
