package pairing

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/relation"
	"emergent-kg/backend/pkg/logger"
)

// Scored is a candidate with every sub-score the pipeline computes.
type Scored struct {
	Candidate
	From string `json:"from"`
	To   string `json:"to"`

	Relation    relation.Hint `json:"relation"`
	Substituted bool          `json:"substituted"`

	SpanScore  float64 `json:"span_score"`
	TagSim     float64 `json:"tag_sim"`
	KindCompat float64 `json:"kind_compat"`
	ContentSim float64 `json:"content_sim"`
	Semantic   float64 `json:"semantic"`
	Cross      bool    `json:"cross"`

	Distance  float64 `json:"distance"`
	Asymmetry float64 `json:"asymmetry"`
	InRegion  bool    `json:"in_region"`

	Gain     float64 `json:"gain"`
	Penalty  float64 `json:"penalty"`
	Combined float64 `json:"combined"`
}

// ProbeEdge is the edge the candidate would add, with a provisional id.
func (c Scored) ProbeEdge() graph.Edge {
	return graph.Edge{
		ID:       "probe",
		From:     c.From,
		To:       c.To,
		Relation: c.Relation.Relation,
		Label:    c.Relation.Rationale,
	}
}

type features struct {
	tags   map[string]struct{}
	tokens TokenSet
}

// Scorer fills in candidate sub-scores. Candidates are independent, so
// scoring fans out over a bounded worker pool; each worker writes only its
// own slice positions, which keeps the output order fixed.
type Scorer struct {
	profile ScoringProfile
	workers int
	logger  *zap.Logger
}

// NewScorer returns a scorer for profile. workers <= 0 means GOMAXPROCS.
func NewScorer(profile ScoringProfile, workers int) *Scorer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scorer{profile: profile, workers: workers, logger: logger.Get()}
}

// Score computes span, semantic, cross and region values for items in place.
func (sc *Scorer) Score(ctx context.Context, s *graph.Snapshot, items []Scored) error {
	feats := make(map[string]features, s.NodeCount())
	for _, n := range s.Nodes() {
		feats[n.ID] = features{tags: setOf(n.Tags), tokens: Tokenize(NodeText(n.Content, n.Label))}
	}
	denom := float64(max(s.NodeCount()-1, 1))

	chunk := (len(items) + sc.workers - 1) / sc.workers
	if chunk == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.workers)
	for start := 0; start < len(items); start += chunk {
		lo, hi := start, min(start+chunk, len(items))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				sc.scoreOne(s, &items[i], feats, denom)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sc.logger.Debug("scored candidates",
		zap.String("profile", sc.profile.Name),
		zap.Int("candidates", len(items)),
		zap.Int("workers", sc.workers),
	)
	return nil
}

func (sc *Scorer) scoreOne(s *graph.Snapshot, it *Scored, feats map[string]features, denom float64) {
	p := sc.profile
	fa, fb := feats[it.A.ID], feats[it.B.ID]

	it.SpanScore = float64(it.Span) / denom
	it.TagSim = p.TagSimilarity.Similarity(fa.tags, fb.tags)
	it.KindCompat = KindCompat(it.A.Kind, it.B.Kind)
	it.ContentSim = Jaccard(fa.tokens, fb.tokens)
	it.Semantic = p.Semantic.Tag*it.TagSim + p.Semantic.Kind*it.KindCompat + p.Semantic.Content*it.ContentSim
	it.Cross = s.Cross(it.A.ID, it.B.ID)

	it.Distance = it.SpanScore
	it.Asymmetry = it.SpanScore / (it.Semantic + AsymmetryEpsilon)
	it.InRegion = p.Region.Contains(it.Distance, it.Asymmetry)
}

// Combine normalizes the metric-gain estimate across the pool and computes
// the combined score. The gain proxy is the raw span: min-max scaled, and 0
// for everyone when all spans are equal.
func (sc *Scorer) Combine(pool []Scored) {
	if len(pool) == 0 {
		return
	}
	lo, hi := pool[0].Span, pool[0].Span
	for _, c := range pool[1:] {
		lo = min(lo, c.Span)
		hi = max(hi, c.Span)
	}
	rng := float64(hi - lo)
	if rng == 0 {
		rng = 1
	}

	w := sc.profile.Weights
	for i := range pool {
		c := &pool[i]
		c.Gain = float64(c.Span-lo) / rng
		c.Combined = w.Span*c.SpanScore + w.Semantic*c.Semantic + w.Gain*c.Gain
		if c.Cross {
			c.Combined += w.CrossBonus
		}
		c.Combined -= c.Penalty
	}
}
