// Package services opens everything a kgpair process needs from one Config:
// the graph store, the session log, the metrics history and the engine
// wired over them.
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"emergent-kg/backend/internal/engine"
	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/store"
	"emergent-kg/backend/pkg/config"
	"emergent-kg/backend/pkg/logger"
)

// Services owns the open backends. Close releases them in reverse order.
type Services struct {
	Config   *config.Config
	Store    store.GraphStore
	Sessions *store.SessionStore
	History  *history.Store
	Engine   *engine.Engine

	// GraphPath is the host path of the JSON document, empty for Neo4j.
	GraphPath string

	logger  *zap.Logger
	mu      sync.Mutex
	closers []func() error
}

// Open builds the services described by cfg. On error everything opened so
// far is closed again.
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{Config: cfg, logger: logger.Named("services")}
	if err := s.open(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) open(ctx context.Context) error {
	cfg := s.Config

	engineFile, err := config.LoadEngine(cfg.EngineConfig)
	if err != nil {
		return fmt.Errorf("failed to load engine config: %w", err)
	}
	opts, err := engineOptions(engineFile, cfg)
	if err != nil {
		return err
	}

	switch cfg.StoreBackend {
	case config.BackendNeo4j:
		neo, err := store.ConnectNeo4j(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return err
		}
		s.onClose(neo.Close)
		s.Store = neo
	default:
		js, err := store.OpenJSONFile(cfg.GraphFile)
		if err != nil {
			return err
		}
		s.Store = js
		s.GraphPath = cfg.GraphFile
	}

	if cfg.SessionLogFile != "" {
		if err := ensureDir(cfg.SessionLogFile); err != nil {
			return err
		}
		sessions, err := store.OpenSessionFile(cfg.SessionLogFile)
		if err != nil {
			return err
		}
		s.Sessions = sessions
	}

	if cfg.HistoryDB != "" {
		if cfg.HistoryDB != ":memory:" {
			if err := ensureDir(cfg.HistoryDB); err != nil {
				return err
			}
		}
		hist, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		s.onClose(hist.Close)
		s.History = hist
	}

	// Typed nils must not reach the engine's interfaces.
	var sessions engine.SessionLog
	if s.Sessions != nil {
		sessions = s.Sessions
	}
	var hist engine.History
	if s.History != nil {
		hist = s.History
	}
	s.Engine = engine.New(s.Store, sessions, hist, opts)

	s.logger.Info("services ready",
		zap.String("backend", cfg.StoreBackend),
		zap.String("graph", cfg.GraphFile),
		zap.String("profile", s.Engine.DefaultProfile()),
		zap.Bool("session_log", s.Sessions != nil),
		zap.Bool("history", s.History != nil),
	)
	return nil
}

// engineOptions turns the engine file and env into engine options.
func engineOptions(f *config.EngineFile, cfg *config.Config) (engine.Options, error) {
	composites, err := metrics.CompositesFromConfig(f.Composites)
	if err != nil {
		return engine.Options{}, err
	}
	profiles, err := pairing.RegistryFromConfig(f)
	if err != nil {
		return engine.Options{}, err
	}
	if cfg.Profile != "" {
		if err := profiles.SetDefault(cfg.Profile); err != nil {
			return engine.Options{}, err
		}
	}
	return engine.Options{
		Groups:     graph.NewGroupTable(f.Groups.Aliases, f.Groups.Fallback),
		Composites: &composites,
		Profiles:   profiles,
		Workers:    cfg.ScoreWorkers,
	}, nil
}

func (s *Services) onClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close releases every backend. It is safe to call more than once.
func (s *Services) Close() {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
