// Package history keeps a per-cycle time series of graph metrics in SQLite.
// It feeds the sensitivity analysis and the history command.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"emergent-kg/backend/internal/metrics"
	apperrors "emergent-kg/backend/pkg/errors"
	"emergent-kg/backend/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle INTEGER NOT NULL,
    recorded_at TEXT NOT NULL,
    profile TEXT NOT NULL DEFAULT '',
    session TEXT NOT NULL DEFAULT '',
    nodes INTEGER NOT NULL,
    edges INTEGER NOT NULL,
    cser REAL NOT NULL,
    dci REAL NOT NULL,
    edge_span REAL NOT NULL,
    edge_span_raw REAL NOT NULL,
    node_age_diversity REAL NOT NULL,
    tag_convergence REAL NOT NULL,
    legacy REAL NOT NULL,
    current_score REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_cycle ON snapshots(cycle);
`

// Entry is one recorded measurement.
type Entry struct {
	Cycle      int            `json:"cycle"`
	RecordedAt time.Time      `json:"recorded_at"`
	Profile    string         `json:"profile,omitempty"`
	Session    string         `json:"session,omitempty"`
	Report     metrics.Report `json:"report"`
}

// Store is the SQLite-backed history.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the history database. Use ":memory:" for a
// throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("open "+dsn, err)
	}
	// one connection: an in-memory database is private to its connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.NewStoreQueryFailed("create schema", err)
	}

	return &Store{db: db, logger: logger.Get()}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends one measurement.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := e.Report
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (cycle, recorded_at, profile, session, nodes, edges, cser, dci,
			edge_span, edge_span_raw, node_age_diversity, tag_convergence, legacy, current_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Cycle, e.RecordedAt.UTC().Format(time.RFC3339), e.Profile, e.Session, r.Nodes, r.Edges, r.CSER, r.DCI,
		r.EdgeSpan.Normalized, r.EdgeSpan.Raw, r.NodeAgeDiversity, r.TagConvergence, r.Legacy, r.Current)
	if err != nil {
		return apperrors.NewStoreWriteFailed("snapshots", err)
	}

	s.logger.Debug("metrics recorded",
		zap.Int("cycle", e.Cycle),
		zap.Float64("cser", r.CSER),
		zap.Float64("current", r.Current),
	)
	return nil
}

// List returns entries oldest first. limit <= 0 returns everything; a
// positive limit keeps the newest limit entries.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT cycle, recorded_at, profile, session, nodes, edges, cser, dci,
			edge_span, edge_span_raw, node_age_diversity, tag_convergence, legacy, current_score
		FROM snapshots ORDER BY cycle, id`
	args := []any{}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT cycle, recorded_at, profile, session, nodes, edges, cser, dci,
				edge_span, edge_span_raw, node_age_diversity, tag_convergence, legacy, current_score, id
			FROM snapshots ORDER BY cycle DESC, id DESC LIMIT ?
		) ORDER BY cycle, id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("list snapshots", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			at    string
			id    int64
			dests = []any{
				&e.Cycle, &at, &e.Profile, &e.Session, &e.Report.Nodes, &e.Report.Edges,
				&e.Report.CSER, &e.Report.DCI, &e.Report.EdgeSpan.Normalized, &e.Report.EdgeSpan.Raw,
				&e.Report.NodeAgeDiversity, &e.Report.TagConvergence, &e.Report.Legacy, &e.Report.Current,
			}
		)
		if limit > 0 {
			dests = append(dests, &id)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, apperrors.NewStoreQueryFailed("scan snapshot", err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("bad recorded_at %q: %w", at, err)
		}
		e.Report.ConvergenceHealth = 1 - e.Report.TagConvergence
		e.Report.Gap = e.Report.Current - e.Report.Legacy
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreQueryFailed("list snapshots", err)
	}
	return out, nil
}

// Points returns the newest measurement of every cycle, oldest cycle first,
// in the shape the sensitivity analysis consumes.
func (s *Store) Points(ctx context.Context) ([]metrics.Point, error) {
	entries, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []metrics.Point
	for _, e := range entries {
		p := metrics.PointFromReport(e.Cycle, e.Report)
		if n := len(out); n > 0 && out[n-1].Cycle == e.Cycle {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Latest returns the newest entry; ok is false on an empty store.
func (s *Store) Latest(ctx context.Context) (e Entry, ok bool, err error) {
	entries, err := s.List(ctx, 1)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}
