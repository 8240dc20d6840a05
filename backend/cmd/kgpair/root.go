package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"emergent-kg/backend/internal/services"
	"emergent-kg/backend/pkg/config"
	"emergent-kg/backend/pkg/logger"
)

// app carries the persistent flags shared by every subcommand.
type app struct {
	graphFile    string
	sessionFile  string
	historyDB    string
	engineConfig string
	backend      string
	logLevel     string
	jsonOut      bool
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Graph health metrics and constrained edge recommendation",
		Long: `kgpair measures the health of a research-log knowledge graph and
proposes new edges that improve it.

Recommendations are scored by a named profile, filtered against the
profile's constraints and simulated before anything is written. Only
commit writes to the graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.graphFile, "graph", "", "Knowledge graph JSON file (overrides KG_FILE)")
	flags.StringVar(&a.sessionFile, "sessions", "", "Session log file (overrides SESSION_LOG_FILE)")
	flags.StringVar(&a.historyDB, "history", "", "Metrics history database (overrides HISTORY_DB)")
	flags.StringVar(&a.engineConfig, "engine-config", "", "Engine YAML with groups, composites and profiles (overrides ENGINE_CONFIG)")
	flags.StringVar(&a.backend, "backend", "", "Store backend: json or neo4j (overrides STORE_BACKEND)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&a.jsonOut, "json", false, "Print JSON instead of text")

	cmd.AddCommand(
		recommendCmd(a),
		commitCmd(a),
		diagnoseCmd(a),
		metricsCmd(a),
		sourcesCmd(a),
		sensitivityCmd(a),
		historyCmd(a),
		recordCmd(a),
		verifyCmd(a),
		profilesCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

// config layers the persistent flags over the environment.
func (a *app) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("graph") {
		cfg.GraphFile = a.graphFile
	}
	if flags.Changed("sessions") {
		cfg.SessionLogFile = a.sessionFile
	}
	if flags.Changed("history") {
		cfg.HistoryDB = a.historyDB
	}
	if flags.Changed("engine-config") {
		cfg.EngineConfig = a.engineConfig
	}
	if flags.Changed("backend") {
		cfg.StoreBackend = a.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	level := a.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if level == "" {
		// Reports go to stdout; keep stderr quiet unless asked.
		level = "warn"
	}
	if err := logger.InitWithLevel(cfg.Env, level); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run opens the services for one command and closes them afterwards.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, svc *services.Services) error) error {
	cfg, err := a.config(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := services.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, svc)
}
