package pairing

import (
	"sort"

	"emergent-kg/backend/internal/graph"
)

// Candidate is an unconnected node pair considered for a new edge. A is the
// earlier node in graph order.
type Candidate struct {
	// Index is the enumeration position, used to break score ties.
	Index int        `json:"index"`
	A     graph.Node `json:"-"`
	B     graph.Node `json:"-"`
	Span  int        `json:"span"`
}

// GenerateStats counts what enumeration skipped.
type GenerateStats struct {
	Pairs     int `json:"pairs"`
	Connected int `json:"connected"`
	ShortSpan int `json:"short_span"`
}

// Generate enumerates every unordered pair with no edge in either direction
// and order distance >= minSpan, ordered by the earlier node's order and
// then the later node's order. It is O(N^2) in the node count.
func Generate(s *graph.Snapshot, minSpan int) ([]Candidate, GenerateStats) {
	n := s.NodeCount()
	byOrder := make([]int, n)
	for i := range byOrder {
		byOrder[i] = i
	}
	sort.SliceStable(byOrder, func(a, b int) bool { return s.OrderAt(byOrder[a]) < s.OrderAt(byOrder[b]) })

	nodes := s.Nodes()
	var (
		out   []Candidate
		stats GenerateStats
	)
	for x := 0; x < n; x++ {
		i := byOrder[x]
		for y := x + 1; y < n; y++ {
			j := byOrder[y]
			stats.Pairs++
			a, b := nodes[i], nodes[j]
			if s.Connected(a.ID, b.ID) {
				stats.Connected++
				continue
			}
			span := s.OrderAt(j) - s.OrderAt(i)
			if span < minSpan {
				stats.ShortSpan++
				continue
			}
			out = append(out, Candidate{Index: len(out), A: a, B: b, Span: span})
		}
	}
	return out, stats
}
