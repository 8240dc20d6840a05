package pairing

import (
	"sort"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/metrics"
)

// Selection is the outcome of picking the top-K feasible candidates.
type Selection struct {
	Selected   []Scored    `json:"selected"`
	CrossCount int         `json:"cross_count"`
	Rejections Rejections  `json:"rejections"`
	Infeasible *Infeasible `json:"infeasible,omitempty"`
	// Shadow is the base snapshot with every selected edge appended.
	Shadow *graph.Snapshot `json:"-"`
}

// Rank orders candidates by combined score, descending. Ties keep
// enumeration order.
func Rank(pool []Scored) {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Combined != pool[j].Combined {
			return pool[i].Combined > pool[j].Combined
		}
		return pool[i].Index < pool[j].Index
	})
}

// Select walks the ranked pool and accepts up to k candidates. Cross-group
// candidates are always accepted. With a positive floor, a same-group
// candidate is accepted only if CSER recomputed on the shadow graph, with
// the candidate added, stays at or above floor; after the first refusal no
// further same-group candidate is considered.
func Select(s *graph.Snapshot, ranked []Scored, k int, floor float64, rej Rejections) (Selection, error) {
	sel := Selection{Rejections: rej, Shadow: s}
	closed := false

	for _, c := range ranked {
		if len(sel.Selected) >= k {
			break
		}
		if !c.Cross && floor > 0 {
			if closed {
				rej[ReasonFloor]++
				continue
			}
			trial, err := sel.Shadow.WithEdges(c.ProbeEdge())
			if err != nil {
				return Selection{}, err
			}
			if metrics.ComputeCSER(trial) < floor {
				closed = true
				rej[ReasonFloor]++
				continue
			}
			sel.Shadow = trial
			sel.Selected = append(sel.Selected, c)
			continue
		}

		next, err := sel.Shadow.WithEdges(c.ProbeEdge())
		if err != nil {
			return Selection{}, err
		}
		sel.Shadow = next
		sel.Selected = append(sel.Selected, c)
		if c.Cross {
			sel.CrossCount++
		}
	}
	return sel, nil
}
