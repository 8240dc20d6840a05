package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/relation"
	"emergent-kg/backend/internal/store"
	apperrors "emergent-kg/backend/pkg/errors"
)

// CommitResult describes a commit. With DryRun set nothing was written and
// Edges carry provisional ids.
type CommitResult struct {
	Plan    *pairing.Plan  `json:"plan"`
	Edges   []graph.Edge   `json:"edges"`
	Session *store.Session `json:"session,omitempty"`
	After   metrics.Report `json:"after"`
	DryRun  bool           `json:"dry_run"`
}

// Commit plans a batch, appends it to the graph and logs the session. An
// infeasible batch is not an error: the result carries no edges and the
// plan explains why.
func (e *Engine) Commit(ctx context.Context, req Request) (*CommitResult, error) {
	p, top, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	_, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := e.plan(ctx, s, p, top)
	if err != nil {
		return nil, err
	}

	res := &CommitResult{Plan: plan, After: plan.Simulation.After, DryRun: req.DryRun}
	if len(plan.Selection.Selected) == 0 {
		e.logger.Info("nothing to commit",
			zap.String("profile", p.Name),
			zap.String("reason", plan.Selection.Infeasible.Message),
		)
		return res, nil
	}

	cycle := req.Cycle
	if cycle <= 0 {
		cycle, err = e.nextCycle(ctx)
		if err != nil {
			return nil, err
		}
	}

	sessionID := uuid.New().String()
	stamp := e.now()
	edges := make([]graph.Edge, len(plan.Selection.Selected))
	for i, c := range plan.Selection.Selected {
		meta, err := provenance(p, c, sessionID, cycle, stamp.Format(graph.DateLayout)).Encode()
		if err != nil {
			return nil, err
		}
		edges[i] = graph.Edge{
			From:     c.From,
			To:       c.To,
			Relation: c.Relation.Relation,
			Label:    c.Relation.Rationale,
			Meta:     meta,
		}
	}

	if req.DryRun {
		for i := range edges {
			edges[i].ID = dryRunID(i)
		}
		res.Edges = edges
		return res, nil
	}

	added, err := store.CommitEdges(ctx, e.store, graph.GeneratorName, stamp, edges)
	if err != nil {
		return nil, err
	}
	res.Edges = added

	committed, err := s.WithEdges(added...)
	if err != nil {
		return nil, err
	}
	res.After = metrics.Compute(committed, e.composites)
	before := plan.Simulation.Before

	session := store.Session{
		ID:         sessionID,
		Date:       stamp.Format(graph.DateLayout),
		Profile:    p.Name,
		Cycle:      cycle,
		Added:      len(added),
		CrossCount: plan.Selection.CrossCount,
		Before:     before,
		After:      res.After,
		Delta:      metrics.Diff(before, res.After),
		Edges:      sessionEdges(added, plan.Selection.Selected),
	}
	res.Session = &session

	e.logger.Info("edges committed",
		zap.String("session", sessionID),
		zap.String("profile", p.Name),
		zap.Int("cycle", cycle),
		zap.Int("added", len(added)),
		zap.Int("cross", plan.Selection.CrossCount),
		zap.Float64("cser", res.After.CSER),
		zap.Float64("current_delta", session.Delta.Current),
	)

	// The graph is already written; log failures are reported but do not
	// undo the commit.
	if e.sessions != nil {
		if err := e.sessions.Append(ctx, session); err != nil {
			e.logger.Warn("session log append failed", zap.Error(err))
		}
	}
	if e.history != nil {
		entry := history.Entry{Cycle: cycle, RecordedAt: stamp, Profile: p.Name, Session: sessionID, Report: res.After}
		if err := e.history.Record(ctx, entry); err != nil {
			e.logger.Warn("history record failed", zap.Error(err))
		}
	}
	return res, nil
}

func (e *Engine) nextCycle(ctx context.Context) (int, error) {
	if e.sessions == nil {
		return 0, nil
	}
	log, err := e.sessions.Load(ctx)
	if err != nil {
		return 0, err
	}
	return log.Meta.NextCycle, nil
}

// dryRunID is the provisional id of the i-th dry-run edge.
func dryRunID(i int) string {
	return graph.Sequence{Prefix: "dry", Next: i + 1}.String()
}

func provenance(p pairing.ScoringProfile, c pairing.Scored, session string, cycle int, date string) graph.Provenance {
	bonus := 0.0
	if c.Cross {
		bonus = p.Weights.CrossBonus
	}
	return graph.Provenance{
		Source:      graph.GeneratorName,
		Profile:     p.Name,
		Session:     session,
		Cycle:       cycle,
		Date:        date,
		Combined:    c.Combined,
		Span:        c.Span,
		Semantic:    c.Semantic,
		CrossSource: c.Cross,
		CrossBonus:  bonus,
		Distance:    c.Distance,
		Asymmetry:   c.Asymmetry,
		InRegion:    c.InRegion,
		DCINeutral:  !relation.IsForbidden(c.Relation.Relation),
	}
}

func sessionEdges(added []graph.Edge, selected []pairing.Scored) []store.SessionEdge {
	out := make([]store.SessionEdge, len(added))
	for i, e := range added {
		c := selected[i]
		out[i] = store.SessionEdge{
			ID:        e.ID,
			From:      e.From,
			To:        e.To,
			Relation:  e.Relation,
			Span:      c.Span,
			Combined:  c.Combined,
			Cross:     c.Cross,
			Distance:  c.Distance,
			Asymmetry: c.Asymmetry,
		}
	}
	return out
}

// Verify returns the last committed session.
func (e *Engine) Verify(ctx context.Context) (store.Session, bool, error) {
	if e.sessions == nil {
		return store.Session{}, false, apperrors.NewConfigMissingRequired("SESSION_LOG_FILE")
	}
	return e.sessions.Last(ctx)
}
