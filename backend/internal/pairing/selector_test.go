package pairing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/metrics"
)

// floorGraph has 20 nodes and 10 edges, 7 of them cross-group, so CSER is 0.7.
func floorGraph(t *testing.T) *graph.Snapshot {
	doc := &graph.Document{}
	for i := 1; i <= 20; i++ {
		src := "A"
		if i > 10 {
			src = "B"
		}
		doc.Nodes = append(doc.Nodes, graph.Node{ID: graph.Sequence{Prefix: "n", Next: i}.String(), Kind: "insight", Source: src})
	}
	link := func(id string, a, b int) graph.Edge {
		return graph.Edge{ID: id, From: doc.Nodes[a-1].ID, To: doc.Nodes[b-1].ID, Relation: "extends"}
	}
	doc.Edges = []graph.Edge{
		link("e-001", 1, 11), link("e-002", 2, 12), link("e-003", 3, 13), link("e-004", 4, 14),
		link("e-005", 5, 15), link("e-006", 6, 16), link("e-007", 7, 17),
		link("e-008", 1, 2), link("e-009", 11, 12), link("e-010", 3, 4),
	}
	s := snap(t, doc)
	require.Equal(t, 0.7, metrics.ComputeCSER(s))
	return s
}

func candidate(s *graph.Snapshot, idx int, from, to string, combined float64) Scored {
	return Scored{
		Candidate: Candidate{Index: idx},
		From:      from,
		To:        to,
		Cross:     s.Cross(from, to),
		Combined:  combined,
	}
}

func TestSelect_FloorVerifiedByResimulation(t *testing.T) {
	s := floorGraph(t)
	ranked := []Scored{
		candidate(s, 0, "n-008", "n-018", 0.9), // cross: 8/11
		candidate(s, 1, "n-005", "n-009", 0.8), // same: 8/12 = 0.667, accepted
		candidate(s, 2, "n-013", "n-019", 0.7), // same: 8/13 = 0.615, refused, closes
		candidate(s, 3, "n-009", "n-019", 0.6), // cross: always accepted
		candidate(s, 4, "n-001", "n-006", 0.5), // same: skipped, floor already closed
	}
	require.True(t, ranked[0].Cross)
	require.False(t, ranked[1].Cross)

	rej := Rejections{}
	sel, err := Select(s, ranked, 10, 0.65, rej)
	require.NoError(t, err)

	var picked []int
	for _, c := range sel.Selected {
		picked = append(picked, c.Index)
	}
	assert.Equal(t, []int{0, 1, 3}, picked)
	assert.Equal(t, 2, rej[ReasonFloor])
	assert.Equal(t, 2, sel.CrossCount)

	// replay the accepted edges one at a time on a fresh shadow copy
	shadow := s
	for _, c := range sel.Selected {
		shadow, err = shadow.WithEdges(c.ProbeEdge())
		require.NoError(t, err)
		if !c.Cross {
			assert.GreaterOrEqual(t, metrics.ComputeCSER(shadow), 0.65)
		}
	}
	assert.Equal(t, metrics.ComputeCSER(sel.Shadow), metrics.ComputeCSER(shadow))
	assert.Equal(t, 10, s.EdgeCount(), "the base snapshot is untouched")
}

func TestSelect_BelowFloorBlocksAllSameGroup(t *testing.T) {
	s := floorGraph(t)
	ranked := []Scored{
		candidate(s, 0, "n-005", "n-009", 0.9),
		candidate(s, 1, "n-008", "n-018", 0.8),
	}

	sel, err := Select(s, ranked, 5, 0.75, Rejections{})
	require.NoError(t, err)
	require.Len(t, sel.Selected, 1)
	assert.Equal(t, 1, sel.Selected[0].Index)
}

func TestSelect_NoFloorTakesTopK(t *testing.T) {
	s := floorGraph(t)
	ranked := []Scored{
		candidate(s, 0, "n-005", "n-009", 0.9),
		candidate(s, 1, "n-013", "n-019", 0.8),
		candidate(s, 2, "n-008", "n-018", 0.7),
	}

	sel, err := Select(s, ranked, 2, 0, Rejections{})
	require.NoError(t, err)
	assert.Len(t, sel.Selected, 2)

	sel, err = Select(s, ranked, 10, 0, Rejections{})
	require.NoError(t, err)
	assert.Len(t, sel.Selected, 3, "min(K, feasible)")
}

func TestSimulate_WorkedExample(t *testing.T) {
	doc := &graph.Document{
		Nodes: []graph.Node{
			{ID: "n-001", Source: "A"}, {ID: "n-002", Source: "A"},
			{ID: "n-003", Source: "B"}, {ID: "n-004", Source: "B"},
		},
		Edges: []graph.Edge{
			{ID: "e-001", From: "n-001", To: "n-002"},
			{ID: "e-002", From: "n-003", To: "n-004"},
			{ID: "e-003", From: "n-002", To: "n-003"},
		},
	}
	s := snap(t, doc)

	sim, err := Simulate(s, []graph.Edge{{ID: "probe", From: "n-001", To: "n-004"}}, metrics.DefaultComposites())
	require.NoError(t, err)

	assert.Equal(t, 1.0/3.0, sim.Before.CSER)
	assert.Equal(t, 0.5, sim.After.CSER)
	assert.Equal(t, 1, sim.Delta.Edges)
	assert.Equal(t, 3, s.EdgeCount())
}

func TestPipeline_ForbiddenNeverSelected(t *testing.T) {
	s := snap(t, chain(60, "question", "insight", "observation", "prediction"))

	for _, p := range Builtins() {
		plan, err := NewPipeline(p.WithOverrides(5, ModeSoft), metrics.DefaultComposites(), 3).Run(context.Background(), s, 20)
		require.NoError(t, err, p.Name)
		for _, c := range plan.Selection.Selected {
			assert.NotContains(t, []string{"answers", "addresses"}, c.Relation.Relation, p.Name)
		}
	}
}

func TestPipeline_DeterministicAndBounded(t *testing.T) {
	s := snap(t, chain(40, "insight", "observation", "experiment"))
	p := ProfileSpanDirect.WithOverrides(5, "")

	first, err := NewPipeline(p, metrics.DefaultComposites(), 4).Run(context.Background(), s, 7)
	require.NoError(t, err)
	second, err := NewPipeline(p, metrics.DefaultComposites(), 1).Run(context.Background(), s, 7)
	require.NoError(t, err)

	assert.Len(t, first.Selection.Selected, min(7, len(first.Feasible)))
	require.Equal(t, len(first.Selection.Selected), len(second.Selection.Selected))
	for i := range first.Selection.Selected {
		assert.Equal(t, first.Selection.Selected[i].Index, second.Selection.Selected[i].Index)
		assert.Equal(t, first.Selection.Selected[i].Combined, second.Selection.Selected[i].Combined)
	}
	assert.Equal(t, first.Simulation, second.Simulation)
	assert.Greater(t, first.Simulation.Delta.EdgeSpanNorm, 0.0)
}

func TestPipeline_InfeasibleExplainsConstraint(t *testing.T) {
	s := snap(t, chain(10))
	p := ProfileSpanDirect.WithOverrides(50, "")

	plan, err := NewPipeline(p, metrics.DefaultComposites(), 1).Run(context.Background(), s, 5)
	require.NoError(t, err)

	assert.Empty(t, plan.Selection.Selected)
	require.NotNil(t, plan.Selection.Infeasible)
	assert.Equal(t, ReasonShortSpan, plan.Selection.Infeasible.Reason)
	assert.Equal(t, 45, plan.Selection.Infeasible.Count)
	assert.Equal(t, plan.Simulation.Before, plan.Simulation.After)
}
