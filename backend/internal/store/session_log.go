package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hack-pad/hackpadfs"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/metrics"
	apperrors "emergent-kg/backend/pkg/errors"
)

// SessionEdge summarises one committed edge.
type SessionEdge struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Relation  string  `json:"relation"`
	Span      int     `json:"span"`
	Combined  float64 `json:"combined_score"`
	Cross     bool    `json:"cross_source"`
	Distance  float64 `json:"distance"`
	Asymmetry float64 `json:"asymmetry"`
}

// Session is one commit: what was added and how the metrics moved.
type Session struct {
	ID         string         `json:"id"`
	Date       string         `json:"date"`
	Profile    string         `json:"version"`
	Cycle      int            `json:"cycle"`
	Added      int            `json:"n_added"`
	CrossCount int            `json:"cross_source_count"`
	Before     metrics.Report `json:"before"`
	After      metrics.Report `json:"after"`
	Delta      metrics.Delta  `json:"delta"`
	Edges      []SessionEdge  `json:"added_edges"`
}

// SessionMeta heads the log. NextCycle is the cycle the next commit is
// stamped with when the caller does not pass one.
type SessionMeta struct {
	Description string `json:"description"`
	Generator   string `json:"generator"`
	NextCycle   int    `json:"next_cycle"`
}

// SessionLog is the persisted commit history.
type SessionLog struct {
	Meta     SessionMeta `json:"meta"`
	Sessions []Session   `json:"sessions"`
}

func newSessionLog() *SessionLog {
	return &SessionLog{
		Meta: SessionMeta{
			Description: "edge recommendation commits with before/after metrics",
			Generator:   graph.GeneratorName,
			NextCycle:   1,
		},
		Sessions: []Session{},
	}
}

// SessionStore persists the session log beside the graph.
type SessionStore struct {
	fs   hackpadfs.FS
	path string
	mu   sync.Mutex
}

func NewSessionStore(fs hackpadfs.FS, path string) *SessionStore {
	return &SessionStore{fs: fs, path: path}
}

// OpenSessionFile serves a session log on the host filesystem.
func OpenSessionFile(path string) (*SessionStore, error) {
	fs, rel, err := hostFS(path)
	if err != nil {
		return nil, err
	}
	return NewSessionStore(fs, rel), nil
}

// Load returns the log, or a fresh one when the file does not exist yet.
func (s *SessionStore) Load(ctx context.Context) (*SessionLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("load session log", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SessionStore) load() (*SessionLog, error) {
	data, err := hackpadfs.ReadFile(s.fs, s.path)
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return newSessionLog(), nil
	}
	if err != nil {
		return nil, apperrors.NewLoadFailed(s.path, "read failed", err)
	}

	log := newSessionLog()
	if err := json.Unmarshal(data, log); err != nil {
		return nil, apperrors.NewLoadFailed(s.path, "malformed session log", err)
	}
	if log.Meta.NextCycle < 1 {
		log.Meta.NextCycle = 1
	}
	return log, nil
}

// Append records a session and advances meta.next_cycle past its cycle.
func (s *SessionStore) Append(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("append session", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load()
	if err != nil {
		return err
	}
	log.Sessions = append(log.Sessions, session)
	if session.Cycle >= log.Meta.NextCycle {
		log.Meta.NextCycle = session.Cycle + 1
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return apperrors.NewStoreWriteFailed(s.path, err)
	}
	if err := writeAtomic(s.fs, s.path, buf.Bytes()); err != nil {
		return apperrors.NewStoreWriteFailed(s.path, err)
	}
	return nil
}

// Last returns the most recent session; ok is false for an empty log.
func (s *SessionStore) Last(ctx context.Context) (session Session, ok bool, err error) {
	log, err := s.Load(ctx)
	if err != nil {
		return Session{}, false, err
	}
	if len(log.Sessions) == 0 {
		return Session{}, false, nil
	}
	return log.Sessions[len(log.Sessions)-1], true, nil
}
