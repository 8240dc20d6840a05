package engine

import (
	"context"
	"fmt"
	"sort"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/internal/relation"
	apperrors "emergent-kg/backend/pkg/errors"
)

// TagSaturation is the tag-convergence level at which tags stop telling
// nodes apart.
const TagSaturation = 0.80

// ViolationKind names a structural problem already present in the graph.
type ViolationKind string

const (
	ViolationCSERFloor     ViolationKind = "cser_below_floor"
	ViolationForbiddenEdge ViolationKind = "forbidden_engine_edge"
	ViolationTagSaturation ViolationKind = "tag_convergence_saturated"
)

// Violation is one diagnose finding.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
	EdgeIDs []string      `json:"edge_ids,omitempty"`
}

// Diagnosis is the current metrics plus what is already wrong.
type Diagnosis struct {
	Profile    string          `json:"profile"`
	Floor      float64         `json:"cser_floor"`
	OrderMode  graph.OrderMode `json:"order_mode"`
	Report     metrics.Report  `json:"report"`
	Violations []Violation     `json:"violations"`
}

// Healthy reports whether no violation was found.
func (d *Diagnosis) Healthy() bool { return len(d.Violations) == 0 }

// Diagnose reports current metrics and any constraint violations present in
// the persisted graph, judged against the named profile.
func (e *Engine) Diagnose(ctx context.Context, profile string) (*Diagnosis, error) {
	p, err := e.profiles.Get(profile)
	if err != nil {
		return nil, err
	}
	_, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	d := &Diagnosis{
		Profile:    p.Name,
		Floor:      p.CSERFloor,
		OrderMode:  s.Mode(),
		Report:     metrics.Compute(s, e.composites),
		Violations: []Violation{},
	}

	if p.CSERFloor > 0 && d.Report.Edges > 0 && d.Report.CSER < p.CSERFloor {
		d.Violations = append(d.Violations, Violation{
			Kind:    ViolationCSERFloor,
			Message: fmt.Sprintf("CSER %.4f is below the %.2f floor", d.Report.CSER, p.CSERFloor),
		})
	}

	var forbidden []string
	for _, edge := range s.Edges() {
		if _, ok := graph.ProvenanceOf(edge); ok && relation.IsForbidden(edge.Relation) {
			forbidden = append(forbidden, edge.ID)
		}
	}
	if len(forbidden) > 0 {
		d.Violations = append(d.Violations, Violation{
			Kind:    ViolationForbiddenEdge,
			Message: fmt.Sprintf("%d engine-generated edges carry a DCI-feeding relation", len(forbidden)),
			EdgeIDs: forbidden,
		})
	}

	if d.Report.TagConvergence >= TagSaturation {
		d.Violations = append(d.Violations, Violation{
			Kind:    ViolationTagSaturation,
			Message: fmt.Sprintf("%.0f%% of tags are shared by %d or more nodes", d.Report.TagConvergence*100, metrics.TagConvergenceMin),
		})
	}
	return d, nil
}

// SourceStats breaks the graph down by source group.
type SourceStats struct {
	Nodes       map[string]int `json:"nodes"`
	Groups      []string       `json:"groups"`
	Edges       int            `json:"edges"`
	CrossEdges  int            `json:"cross_edges"`
	EngineEdges int            `json:"engine_edges"`
	EngineCross int            `json:"engine_cross"`
	CSER        float64        `json:"cser"`
	Floor       float64        `json:"cser_floor"`
	MeetsFloor  bool           `json:"meets_floor"`
}

// SourceStats counts nodes per group and cross-group edges overall and
// among engine-generated edges.
func (e *Engine) SourceStats(ctx context.Context, profile string) (*SourceStats, error) {
	p, err := e.profiles.Get(profile)
	if err != nil {
		return nil, err
	}
	_, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	st := &SourceStats{Nodes: make(map[string]int), Edges: s.EdgeCount(), Floor: p.CSERFloor}
	for i := range s.Nodes() {
		st.Nodes[s.GroupAt(i)]++
	}
	for g := range st.Nodes {
		st.Groups = append(st.Groups, g)
	}
	sort.Strings(st.Groups)

	for _, edge := range s.Edges() {
		cross := s.Cross(edge.From, edge.To)
		if cross {
			st.CrossEdges++
		}
		if _, ok := graph.ProvenanceOf(edge); ok {
			st.EngineEdges++
			if cross {
				st.EngineCross++
			}
		}
	}
	st.CSER = metrics.ComputeCSER(s)
	st.MeetsFloor = st.CSER >= p.CSERFloor
	return st, nil
}

// Sensitivity runs the weight-perturbation analysis over the recorded
// history, with the live graph appended as the newest point.
func (e *Engine) Sensitivity(ctx context.Context, deltas []float64, tolerance int) (metrics.Analysis, error) {
	if e.history == nil {
		return metrics.Analysis{}, apperrors.NewConfigMissingRequired("HISTORY_DB")
	}
	points, err := e.history.Points(ctx)
	if err != nil {
		return metrics.Analysis{}, err
	}
	report, err := e.Metrics(ctx)
	if err != nil {
		return metrics.Analysis{}, err
	}
	live := 1
	if n := len(points); n > 0 {
		live = points[n-1].Cycle + 1
	}
	points = append(points, metrics.PointFromReport(live, report))

	if len(deltas) == 0 {
		deltas = metrics.DefaultDeltas
	}
	if tolerance <= 0 {
		tolerance = metrics.DefaultReversalTolerance
	}
	return metrics.Analyze(points, e.composites, deltas, tolerance), nil
}

// History returns the newest limit recorded measurements, oldest first.
func (e *Engine) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if e.history == nil {
		return nil, apperrors.NewConfigMissingRequired("HISTORY_DB")
	}
	return e.history.List(ctx, limit)
}

// Record stores the live metrics under cycle without committing anything.
func (e *Engine) Record(ctx context.Context, cycle int) (metrics.Report, error) {
	if e.history == nil {
		return metrics.Report{}, apperrors.NewConfigMissingRequired("HISTORY_DB")
	}
	report, err := e.Metrics(ctx)
	if err != nil {
		return metrics.Report{}, err
	}
	entry := history.Entry{Cycle: cycle, RecordedAt: e.now(), Report: report}
	if err := e.history.Record(ctx, entry); err != nil {
		return metrics.Report{}, err
	}
	return report, nil
}
