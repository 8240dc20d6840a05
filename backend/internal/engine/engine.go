// Package engine runs the recommend / commit / diagnose passes over the
// persisted graph. It owns no state between calls: every pass loads the
// document, works on an immutable snapshot and, for commits, writes back.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/store"
	apperrors "emergent-kg/backend/pkg/errors"
	"emergent-kg/backend/pkg/logger"
)

// SessionLog records commits.
type SessionLog interface {
	Load(ctx context.Context) (*store.SessionLog, error)
	Append(ctx context.Context, session store.Session) error
	Last(ctx context.Context) (store.Session, bool, error)
}

// History stores the per-cycle metrics series.
type History interface {
	Record(ctx context.Context, e history.Entry) error
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Points(ctx context.Context) ([]metrics.Point, error)
}

// Options tune an Engine. Zero values fall back to the built-in defaults.
type Options struct {
	Groups     *graph.GroupTable
	Composites *metrics.Composites
	Profiles   *pairing.Registry
	// Workers bounds parallel pair scoring; 0 means GOMAXPROCS.
	Workers int
	Now     func() time.Time
}

// Engine wires the store, the scoring pipeline and the logs.
type Engine struct {
	store      store.GraphStore
	sessions   SessionLog
	history    History
	groups     *graph.GroupTable
	composites metrics.Composites
	profiles   *pairing.Registry
	workers    int
	now        func() time.Time
	logger     *zap.Logger
}

// New creates an engine. sessions and hist may be nil, in which case
// commits are not logged and sensitivity has no history to read.
func New(st store.GraphStore, sessions SessionLog, hist History, opts Options) *Engine {
	e := &Engine{
		store:      st,
		sessions:   sessions,
		history:    hist,
		groups:     opts.Groups,
		composites: metrics.DefaultComposites(),
		profiles:   opts.Profiles,
		workers:    opts.Workers,
		now:        opts.Now,
		logger:     logger.Named("engine"),
	}
	if e.groups == nil {
		e.groups = graph.DefaultGroupTable()
	}
	if opts.Composites != nil {
		e.composites = *opts.Composites
	}
	if e.profiles == nil {
		e.profiles = pairing.NewRegistry()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Composites returns the composite weight vectors in use.
func (e *Engine) Composites() metrics.Composites { return e.composites }

// Profiles lists every registered profile, alphabetically.
func (e *Engine) Profiles() []pairing.ScoringProfile {
	names := e.profiles.Names()
	out := make([]pairing.ScoringProfile, 0, len(names))
	for _, n := range names {
		p, _ := e.profiles.Get(n)
		out = append(out, p)
	}
	return out
}

// DefaultProfile is the profile used when a request names none.
func (e *Engine) DefaultProfile() string { return e.profiles.Default() }

func (e *Engine) load(ctx context.Context) (*graph.Document, *graph.Snapshot, error) {
	doc, err := e.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := graph.NewSnapshot(doc, e.groups)
	if err != nil {
		return nil, nil, err
	}
	return doc, s, nil
}

// Metrics computes the current report.
func (e *Engine) Metrics(ctx context.Context) (metrics.Report, error) {
	_, s, err := e.load(ctx)
	if err != nil {
		return metrics.Report{}, err
	}
	return metrics.Compute(s, e.composites), nil
}

// Request parameterises recommend and commit.
type Request struct {
	Profile string
	// Top caps the batch. Zero plans without selecting anything.
	Top int
	// MinSpan and Mode override the profile when set.
	MinSpan int
	Mode    pairing.Mode
	// Cycle stamps committed edges; 0 takes the session log's next cycle.
	Cycle  int
	DryRun bool
}

// DefaultTop is the batch size the command line asks for by default.
const DefaultTop = 20

func (e *Engine) resolve(req Request) (pairing.ScoringProfile, int, error) {
	p, err := e.profiles.Get(req.Profile)
	if err != nil {
		return pairing.ScoringProfile{}, 0, err
	}
	p = p.WithOverrides(req.MinSpan, req.Mode)
	if err := p.Validate(); err != nil {
		return pairing.ScoringProfile{}, 0, err
	}
	if req.Top < 0 {
		return pairing.ScoringProfile{}, 0, apperrors.NewInvalidInput("top", "must not be negative")
	}
	return p, req.Top, nil
}

// Recommend plans a batch without touching the store.
func (e *Engine) Recommend(ctx context.Context, req Request) (*pairing.Plan, error) {
	p, top, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	_, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return e.plan(ctx, s, p, top)
}

func (e *Engine) plan(ctx context.Context, s *graph.Snapshot, p pairing.ScoringProfile, top int) (*pairing.Plan, error) {
	plan, err := pairing.NewPipeline(p, e.composites, e.workers).Run(ctx, s, top)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("plan edges", err)
		}
		return nil, err
	}
	return plan, nil
}
