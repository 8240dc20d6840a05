package pairing

import (
	"context"

	"go.uber.org/zap"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/pkg/logger"
)

// Plan is a full recommendation pass: ranked feasible candidates, the
// constrained selection and its simulated effect.
type Plan struct {
	Profile    ScoringProfile `json:"profile"`
	Generated  GenerateStats  `json:"generated"`
	Candidates int            `json:"candidates"`
	Feasible   []Scored       `json:"feasible"`
	Selection  Selection      `json:"selection"`
	Simulation Simulation     `json:"simulation"`
}

// Edges returns the selected edges with provisional ids.
func (p *Plan) Edges() []graph.Edge {
	out := make([]graph.Edge, len(p.Selection.Selected))
	for i, c := range p.Selection.Selected {
		out[i] = c.ProbeEdge()
	}
	return out
}

// Pipeline runs candidate generation, scoring, filtering, selection and
// simulation for one profile.
type Pipeline struct {
	profile    ScoringProfile
	composites metrics.Composites
	scorer     *Scorer
	filter     *Filter
	logger     *zap.Logger
}

// NewPipeline wires a pipeline. workers <= 0 means GOMAXPROCS.
func NewPipeline(profile ScoringProfile, composites metrics.Composites, workers int) *Pipeline {
	return &Pipeline{
		profile:    profile,
		composites: composites,
		scorer:     NewScorer(profile, workers),
		filter:     NewFilter(profile),
		logger:     logger.Get(),
	}
}

// Run plans up to k new edges for s without modifying it.
func (p *Pipeline) Run(ctx context.Context, s *graph.Snapshot, k int) (*Plan, error) {
	rej := make(Rejections)

	cands, stats := Generate(s, p.profile.MinSpan)
	rej[ReasonShortSpan] = stats.ShortSpan

	items := p.filter.Relations(cands, rej)
	if err := p.scorer.Score(ctx, s, items); err != nil {
		return nil, err
	}
	pool := p.filter.Screen(items, rej)
	p.scorer.Combine(pool)
	Rank(pool)

	sel, err := Select(s, pool, k, p.profile.CSERFloor, rej)
	if err != nil {
		return nil, err
	}
	switch {
	case len(sel.Selected) > 0:
	case k <= 0:
		sel.Infeasible = &Infeasible{Counts: rej, Message: "batch size is 0"}
	default:
		sel.Infeasible = explain(rej, len(cands))
	}

	plan := &Plan{
		Profile:    p.profile,
		Generated:  stats,
		Candidates: len(cands),
		Feasible:   pool,
		Selection:  sel,
	}
	plan.Simulation, err = Simulate(s, plan.Edges(), p.composites)
	if err != nil {
		return nil, err
	}

	p.logger.Info("planned edges",
		zap.String("profile", p.profile.Name),
		zap.Int("candidates", len(cands)),
		zap.Int("feasible", len(pool)),
		zap.Int("selected", len(sel.Selected)),
		zap.Int("cross", sel.CrossCount),
		zap.Float64("current_delta", plan.Simulation.Delta.Current),
	)
	return plan, nil
}
