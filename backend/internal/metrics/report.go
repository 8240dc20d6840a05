package metrics

import "emergent-kg/backend/internal/graph"

// Report is a full metrics pass over one snapshot.
type Report struct {
	Nodes             int       `json:"nodes"`
	Edges             int       `json:"edges"`
	CSER              float64   `json:"cser"`
	DCI               float64   `json:"dci"`
	EdgeSpan          SpanStats `json:"edge_span"`
	NodeAgeDiversity  float64   `json:"node_age_diversity"`
	TagConvergence    float64   `json:"tag_convergence"`
	ConvergenceHealth float64   `json:"convergence_health"`

	Legacy  float64 `json:"legacy"`
	Current float64 `json:"current"`
	// Gap is Current - Legacy.
	Gap float64 `json:"gap"`
}

// Compute runs every metric over s and scores both composites.
func Compute(s *graph.Snapshot, c Composites) Report {
	tc := ComputeTagConvergence(s)
	r := Report{
		Nodes:             s.NodeCount(),
		Edges:             s.EdgeCount(),
		CSER:              ComputeCSER(s),
		DCI:               ComputeDCI(s),
		EdgeSpan:          ComputeEdgeSpan(s),
		NodeAgeDiversity:  ComputeNodeAgeDiversity(s),
		TagConvergence:    tc,
		ConvergenceHealth: 1 - tc,
	}
	r.Rescore(c)
	return r
}

// Rescore recomputes the composites from the stored metric values.
func (r *Report) Rescore(c Composites) {
	values := r.Values()
	r.Legacy = c.Legacy.Score(values)
	r.Current = c.Current.Score(values)
	r.Gap = r.Current - r.Legacy
}

// Values exposes the scalar metrics by name.
func (r Report) Values() map[Metric]float64 {
	return map[Metric]float64{
		CSER:              r.CSER,
		DCI:               r.DCI,
		EdgeSpanNorm:      r.EdgeSpan.Normalized,
		NodeAgeDiversity:  r.NodeAgeDiversity,
		TagConvergence:    r.TagConvergence,
		ConvergenceHealth: r.ConvergenceHealth,
	}
}

// Delta is the per-metric change between two reports.
type Delta struct {
	Nodes             int     `json:"nodes"`
	Edges             int     `json:"edges"`
	CSER              float64 `json:"cser"`
	DCI               float64 `json:"dci"`
	EdgeSpanRaw       float64 `json:"edge_span_raw"`
	EdgeSpanNorm      float64 `json:"edge_span"`
	NodeAgeDiversity  float64 `json:"node_age_diversity"`
	TagConvergence    float64 `json:"tag_convergence"`
	ConvergenceHealth float64 `json:"convergence_health"`
	Legacy            float64 `json:"legacy"`
	Current           float64 `json:"current"`
	Gap               float64 `json:"gap"`
}

// Diff returns after - before for every metric.
func Diff(before, after Report) Delta {
	return Delta{
		Nodes:             after.Nodes - before.Nodes,
		Edges:             after.Edges - before.Edges,
		CSER:              after.CSER - before.CSER,
		DCI:               after.DCI - before.DCI,
		EdgeSpanRaw:       after.EdgeSpan.Raw - before.EdgeSpan.Raw,
		EdgeSpanNorm:      after.EdgeSpan.Normalized - before.EdgeSpan.Normalized,
		NodeAgeDiversity:  after.NodeAgeDiversity - before.NodeAgeDiversity,
		TagConvergence:    after.TagConvergence - before.TagConvergence,
		ConvergenceHealth: after.ConvergenceHealth - before.ConvergenceHealth,
		Legacy:            after.Legacy - before.Legacy,
		Current:           after.Current - before.Current,
		Gap:               after.Gap - before.Gap,
	}
}
