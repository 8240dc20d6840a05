package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"emergent-kg/backend/internal/seed"
	"emergent-kg/backend/internal/services"
	"emergent-kg/backend/internal/store"
	"emergent-kg/backend/pkg/config"
	"emergent-kg/backend/pkg/logger"
)

func main() {
	defaults := seed.DefaultOptions()
	nodes := flag.Int("nodes", defaults.Nodes, "Number of notes to generate")
	window := flag.Int("window", defaults.Window, "How far back a link may reach")
	crossRate := flag.Float64("cross-rate", defaults.CrossRate, "Chance a link goes to the other collaborator")
	seedValue := flag.Uint64("seed", defaults.Seed, "Random seed")
	reset := flag.Bool("reset", false, "Start from an empty graph even if one exists")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	svc, err := services.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open services", zap.Error(err))
	}
	defer svc.Close()

	if neo, ok := svc.Store.(*store.Neo4jStore); ok {
		log.Info("Creating constraints and indexes...")
		if err := neo.EnsureSchema(ctx); err != nil {
			log.Warn("Failed to create some constraints", zap.Error(err))
		}
		if *reset {
			if err := neo.Reset(ctx); err != nil {
				log.Fatal("Failed to reset Neo4j mirror", zap.Error(err))
			}
		}
	}

	fresh := *reset
	if !fresh {
		_, err := svc.Store.Load(ctx)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			fresh = true
		default:
			log.Fatal("Existing graph is unreadable (use -reset to replace it)", zap.Error(err))
		}
	}
	if fresh {
		log.Info("Starting from an empty graph", zap.String("graph", cfg.GraphFile))
		if err := svc.Store.Save(ctx, seed.Empty()); err != nil {
			log.Fatal("Failed to write empty graph", zap.Error(err))
		}
	}

	opts := defaults
	opts.Nodes = *nodes
	opts.Window = *window
	opts.CrossRate = *crossRate
	opts.Seed = *seedValue

	res, err := seed.Run(ctx, svc.Store, opts, time.Now)
	if err != nil {
		log.Fatal("Failed to seed graph", zap.Error(err))
	}

	report, err := svc.Engine.Metrics(ctx)
	if err != nil {
		log.Fatal("Failed to compute metrics", zap.Error(err))
	}

	log.Info("Seeding completed successfully!",
		zap.Int("nodes_added", len(res.Nodes)),
		zap.Int("edges_added", len(res.Edges)),
		zap.Float64("cser", report.CSER),
		zap.Float64("edge_span", report.EdgeSpan.Normalized),
		zap.Float64("current", report.Current),
	)
}
