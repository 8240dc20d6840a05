package pairing

import (
	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/metrics"
)

// Simulation compares metrics before and after a batch of edges.
type Simulation struct {
	Before metrics.Report `json:"before"`
	After  metrics.Report `json:"after"`
	Delta  metrics.Delta  `json:"delta"`
	// CurrentLeads is true when the current composite beats the legacy one
	// after the batch.
	CurrentLeads bool `json:"current_leads"`
}

// Simulate appends edges to a shadow copy of s and recomputes every metric.
// s itself is not modified.
func Simulate(s *graph.Snapshot, edges []graph.Edge, c metrics.Composites) (Simulation, error) {
	shadow, err := s.WithEdges(edges...)
	if err != nil {
		return Simulation{}, err
	}
	before := metrics.Compute(s, c)
	after := metrics.Compute(shadow, c)
	return Simulation{
		Before:       before,
		After:        after,
		Delta:        metrics.Diff(before, after),
		CurrentLeads: after.Current > after.Legacy,
	}, nil
}
