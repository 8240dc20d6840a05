// Package metrics computes structural-health scores over a graph snapshot.
// Every function is pure and total: degenerate graphs yield defined
// defaults instead of errors.
package metrics

import (
	"math"
	"sort"

	"emergent-kg/backend/internal/graph"
)

// Metric names a scalar health metric. The names double as YAML keys and
// history column names.
type Metric string

const (
	CSER              Metric = "cser"
	DCI               Metric = "dci"
	EdgeSpanNorm      Metric = "edge_span"
	NodeAgeDiversity  Metric = "node_age_diversity"
	TagConvergence    Metric = "tag_convergence"
	ConvergenceHealth Metric = "convergence_health"
)

// AllMetrics lists every scalar in report order.
var AllMetrics = []Metric{CSER, DCI, EdgeSpanNorm, NodeAgeDiversity, TagConvergence, ConvergenceHealth}

const (
	// QuestionKind marks nodes DCI measures convergence for.
	QuestionKind = "question"
	// AnswersRelation is the only relation DCI counts.
	AnswersRelation = "answers"
	// TagConvergenceMin is how many nodes must carry a tag for it to count as converged.
	TagConvergenceMin = 3
)

// ComputeCSER is the cross-source edge ratio: edges whose endpoints sit in
// different source groups over all edges.
func ComputeCSER(s *graph.Snapshot) float64 {
	edges := s.Edges()
	if len(edges) == 0 {
		return 0
	}
	cross := 0
	for _, e := range edges {
		if s.Cross(e.From, e.To) {
			cross++
		}
	}
	return float64(cross) / float64(len(edges))
}

// SpanStats describes the distribution of order distances across edges.
type SpanStats struct {
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
	Max        int     `json:"max"`
	Min        int     `json:"min"`
	Median     float64 `json:"median"`
	Stdev      float64 `json:"stdev"`
}

// ComputeEdgeSpan measures how far apart in time edges reach.
func ComputeEdgeSpan(s *graph.Snapshot) SpanStats {
	edges := s.Edges()
	if len(edges) == 0 {
		return SpanStats{}
	}

	spans := make([]float64, len(edges))
	st := SpanStats{Min: math.MaxInt}
	for i, e := range edges {
		d := s.Span(e)
		spans[i] = float64(d)
		if d > st.Max {
			st.Max = d
		}
		if d < st.Min {
			st.Min = d
		}
	}

	st.Raw = mean(spans)
	st.Normalized = st.Raw / float64(max(s.NodeCount()-1, 1))
	st.Median = median(spans)
	st.Stdev = sampleStdev(spans)
	return st
}

// ComputeNodeAgeDiversity is the sample standard deviation of node orders
// divided by the largest order.
func ComputeNodeAgeDiversity(s *graph.Snapshot) float64 {
	n := s.NodeCount()
	if n < 2 {
		return 0
	}
	orders := make([]float64, n)
	top := 0
	for i := 0; i < n; i++ {
		o := s.OrderAt(i)
		orders[i] = float64(o)
		if o > top {
			top = o
		}
	}
	if top == 0 {
		return 0
	}
	return sampleStdev(orders) / float64(top)
}

// ComputeDCI is the delayed convergence index. For every question node
// touched by an "answers" edge (in either direction) it takes the widest
// order gap, sums those gaps and divides by questions x nodes.
func ComputeDCI(s *graph.Snapshot) float64 {
	questions := make(map[string]struct{})
	for _, n := range s.Nodes() {
		if n.Kind == QuestionKind {
			questions[n.ID] = struct{}{}
		}
	}
	if len(questions) == 0 || s.NodeCount() == 0 {
		return 0
	}

	widest := make(map[string]int)
	note := func(q string, gap int) {
		if cur, ok := widest[q]; !ok || gap > cur {
			widest[q] = gap
		}
	}
	for _, e := range s.Edges() {
		if e.Relation != AnswersRelation {
			continue
		}
		gap := s.Span(e)
		if _, ok := questions[e.From]; ok {
			note(e.From, gap)
		}
		if _, ok := questions[e.To]; ok {
			note(e.To, gap)
		}
	}

	sum := 0
	for _, gap := range widest {
		sum += gap
	}
	dci := float64(sum) / float64(len(questions)*s.NodeCount())
	return math.Min(1, dci)
}

// ComputeTagConvergence is the share of distinct tags carried by at least
// TagConvergenceMin nodes.
func ComputeTagConvergence(s *graph.Snapshot) float64 {
	counts := make(map[string]int)
	for _, n := range s.Nodes() {
		for _, t := range n.Tags {
			counts[t]++
		}
	}
	if len(counts) == 0 {
		return 0
	}
	converged := 0
	for _, c := range counts {
		if c >= TagConvergenceMin {
			converged++
		}
	}
	return float64(converged) / float64(len(counts))
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// sampleStdev uses the n-1 denominator; a single value has zero spread.
func sampleStdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
