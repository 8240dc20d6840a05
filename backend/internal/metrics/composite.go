package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// Term is one weighted metric inside a composite.
type Term struct {
	Metric Metric  `json:"metric"`
	Weight float64 `json:"weight"`
}

// WeightVector is a named linear composite over metrics. Terms are summed
// in declaration order so results are reproducible to the bit.
type WeightVector struct {
	Name  string `json:"name"`
	Terms []Term `json:"terms"`
}

// Built-in composites. Legacy is the formula the research log used before
// tag convergence saturated; Current replaced it with temporal metrics.
var (
	Legacy = WeightVector{Name: "legacy", Terms: []Term{
		{CSER, 0.40},
		{DCI, 0.30},
		{TagConvergence, 0.30},
	}}
	Current = WeightVector{Name: "current", Terms: []Term{
		{CSER, 0.35},
		{DCI, 0.25},
		{EdgeSpanNorm, 0.25},
		{NodeAgeDiversity, 0.15},
	}}
)

// Score is the dot product of the weights with the metric values.
func (w WeightVector) Score(values map[Metric]float64) float64 {
	total := 0.0
	for _, t := range w.Terms {
		total += t.Weight * values[t.Metric]
	}
	return total
}

// Weight returns the weight of m, 0 when absent.
func (w WeightVector) Weight(m Metric) float64 {
	for _, t := range w.Terms {
		if t.Metric == m {
			return t.Weight
		}
	}
	return 0
}

// Sum is the total weight.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, t := range w.Terms {
		total += t.Weight
	}
	return total
}

func (w WeightVector) String() string {
	parts := make([]string, len(w.Terms))
	for i, t := range w.Terms {
		parts[i] = fmt.Sprintf("%.2f*%s", t.Weight, t.Metric)
	}
	return w.Name + "(" + strings.Join(parts, " + ") + ")"
}

// VectorFromMap builds a composite from a YAML weight map. Terms are sorted
// by metric name; unknown metric names are rejected.
func VectorFromMap(name string, weights map[string]float64) (WeightVector, error) {
	known := make(map[Metric]bool, len(AllMetrics))
	for _, m := range AllMetrics {
		known[m] = true
	}
	keys := make([]string, 0, len(weights))
	for k := range weights {
		if !known[Metric(k)] {
			return WeightVector{}, fmt.Errorf("composite %s: unknown metric %q", name, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := WeightVector{Name: name, Terms: make([]Term, len(keys))}
	for i, k := range keys {
		w.Terms[i] = Term{Metric: Metric(k), Weight: weights[k]}
	}
	return w, nil
}

// Composites pairs the legacy and current formulas compared in every report.
type Composites struct {
	Legacy  WeightVector
	Current WeightVector
}

// DefaultComposites returns the built-in pair.
func DefaultComposites() Composites {
	return Composites{Legacy: Legacy, Current: Current}
}

// CompositesFromConfig overrides the built-ins with "legacy" and "current"
// entries from the engine config.
func CompositesFromConfig(cfg map[string]map[string]float64) (Composites, error) {
	c := DefaultComposites()
	if weights, ok := cfg["legacy"]; ok {
		w, err := VectorFromMap("legacy", weights)
		if err != nil {
			return c, err
		}
		c.Legacy = w
	}
	if weights, ok := cfg["current"]; ok {
		w, err := VectorFromMap("current", weights)
		if err != nil {
			return c, err
		}
		c.Current = w
	}
	return c, nil
}
