package metrics

import "fmt"

// MinPerturbedWeight keeps a perturbed weight from vanishing.
const MinPerturbedWeight = 0.05

// DefaultDeltas are the relative perturbations tried by Analyze.
var DefaultDeltas = []float64{0.10, 0.20}

// DefaultReversalTolerance is how many cycles a variant's reversal may move
// before the conclusion counts as fragile.
const DefaultReversalTolerance = 5

// Verdict summarises a sensitivity run.
type Verdict string

const (
	VerdictRobust       Verdict = "robust"
	VerdictMostlyRobust Verdict = "mostly_robust"
	VerdictFragile      Verdict = "fragile"
)

// Point is one historical metrics record.
type Point struct {
	Cycle  int
	Values map[Metric]float64
}

// PointFromReport wraps a live report as a history point.
func PointFromReport(cycle int, r Report) Point {
	return Point{Cycle: cycle, Values: r.Values()}
}

// Perturb scales the weight of m by (1+delta), floors it at
// MinPerturbedWeight and rescales the remaining weights proportionally so
// the vector still sums to its original total.
func (w WeightVector) Perturb(m Metric, delta float64) WeightVector {
	total := w.Sum()
	base := w.Weight(m)
	changed := max(MinPerturbedWeight, base*(1+delta))
	remaining := total - changed
	others := total - base

	out := WeightVector{
		Name:  fmt.Sprintf("%s[%s%+.0f%%]", w.Name, m, delta*100),
		Terms: make([]Term, len(w.Terms)),
	}
	for i, t := range w.Terms {
		switch {
		case t.Metric == m:
			out.Terms[i] = Term{t.Metric, changed}
		case others > 0:
			out.Terms[i] = Term{t.Metric, t.Weight / others * remaining}
		default:
			out.Terms[i] = t
		}
	}
	return out
}

// Variant is one perturbed weight vector.
type Variant struct {
	Label   string
	Metric  Metric
	Delta   float64
	Weights WeightVector
}

// Variants perturbs every term of w by +delta and -delta for each delta.
func Variants(w WeightVector, deltas []float64) []Variant {
	var out []Variant
	for _, d := range deltas {
		for _, t := range w.Terms {
			for _, signed := range []float64{d, -d} {
				out = append(out, Variant{
					Label:   fmt.Sprintf("%s %+.0f%%", t.Metric, signed*100),
					Metric:  t.Metric,
					Delta:   signed,
					Weights: w.Perturb(t.Metric, signed),
				})
			}
		}
	}
	return out
}

// FirstReversal returns the first cycle where candidate scores strictly
// above baseline, or false if it never does.
func FirstReversal(history []Point, candidate, baseline WeightVector) (int, bool) {
	for _, p := range history {
		if candidate.Score(p.Values) > baseline.Score(p.Values) {
			return p.Cycle, true
		}
	}
	return 0, false
}

// VariantResult is the outcome of one variant.
type VariantResult struct {
	Label     string  `json:"label"`
	Delta     float64 `json:"delta"`
	Reversal  *int    `json:"reversal_cycle"`
	CycleDiff int     `json:"cycle_diff"`
	Robust    bool    `json:"robust"`
}

// Analysis is the full sensitivity report.
type Analysis struct {
	Base         WeightVector    `json:"base"`
	BaseReversal *int            `json:"base_reversal_cycle"`
	Results      []VariantResult `json:"results"`
	Verdict      Verdict         `json:"verdict"`
}

// Analyze checks whether "current beats legacy" and the cycle where it
// first happens survive perturbations of the current weights.
func Analyze(history []Point, c Composites, deltas []float64, tolerance int) Analysis {
	a := Analysis{Base: c.Current}
	if cycle, ok := FirstReversal(history, c.Current, c.Legacy); ok {
		a.BaseReversal = &cycle
	}

	robust := 0
	for _, v := range Variants(c.Current, deltas) {
		res := VariantResult{Label: v.Label, Delta: v.Delta}
		cycle, ok := FirstReversal(history, v.Weights, c.Legacy)
		if ok {
			res.Reversal = &cycle
		}
		switch {
		case a.BaseReversal != nil && ok:
			res.CycleDiff = abs(cycle - *a.BaseReversal)
			res.Robust = res.CycleDiff <= tolerance
		case a.BaseReversal == nil && !ok:
			res.Robust = true
		}
		if res.Robust {
			robust++
		}
		a.Results = append(a.Results, res)
	}

	switch {
	case len(a.Results) == 0 || robust == len(a.Results):
		a.Verdict = VerdictRobust
	case float64(robust)/float64(len(a.Results)) >= 0.8:
		a.Verdict = VerdictMostlyRobust
	default:
		a.Verdict = VerdictFragile
	}
	return a
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
