package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"emergent-kg/backend/internal/engine"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/services"
)

// requestFlags are shared by recommend and commit.
type requestFlags struct {
	profile string
	top     int
	minSpan int
	strict  bool
	soft    bool
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "Scoring profile (default from PROFILE or the engine config)")
	cmd.Flags().IntVarP(&f.top, "top", "n", engine.DefaultTop, "Maximum number of edges to select (0 plans without selecting)")
	cmd.Flags().IntVar(&f.minSpan, "min-span", 0, "Override the profile's minimum order distance")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Drop candidates outside the target region")
	cmd.Flags().BoolVar(&f.soft, "soft", false, "Penalise candidates outside the target region")
	cmd.MarkFlagsMutuallyExclusive("strict", "soft")
}

func (f *requestFlags) request() engine.Request {
	req := engine.Request{Profile: f.profile, Top: f.top, MinSpan: f.minSpan}
	switch {
	case f.strict:
		req.Mode = pairing.ModeStrict
	case f.soft:
		req.Mode = pairing.ModeSoft
	}
	return req
}

func recommendCmd(a *app) *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank feasible new edges without changing the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				plan, err := svc.Engine.Recommend(ctx, f.request())
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), plan)
				}
				return renderPlan(cmd.OutOrStdout(), plan)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func commitCmd(a *app) *cobra.Command {
	var (
		f      requestFlags
		cycle  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Select, simulate and append a batch of edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				req := f.request()
				req.Cycle = cycle
				req.DryRun = dryRun

				res, err := svc.Engine.Commit(ctx, req)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return renderCommit(cmd.OutOrStdout(), res)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&cycle, "cycle", 0, "Cycle to stamp on the edges (default: next cycle in the session log)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be committed without writing")
	return cmd
}

func diagnoseCmd(a *app) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Report current metrics and constraint violations already in the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				d, err := svc.Engine.Diagnose(ctx, profile)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), d)
				}
				return renderDiagnosis(cmd.OutOrStdout(), d)
			})
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Profile whose constraints are checked")
	return cmd
}

func metricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print every health metric and both composites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				report, err := svc.Engine.Metrics(ctx)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return renderReport(cmd.OutOrStdout(), report, svc.Engine.Composites())
			})
		},
	}
}

func sourcesCmd(a *app) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Break nodes and cross-source edges down by source group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				st, err := svc.Engine.SourceStats(ctx, profile)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				return renderSources(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Profile whose CSER floor is reported")
	return cmd
}

func sensitivityCmd(a *app) *cobra.Command {
	var (
		deltas    []float64
		tolerance int
	)
	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Check whether the composite crossover survives weight perturbations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				analysis, err := svc.Engine.Sensitivity(ctx, deltas, tolerance)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), analysis)
				}
				return renderSensitivity(cmd.OutOrStdout(), analysis)
			})
		},
	}
	cmd.Flags().Float64SliceVar(&deltas, "delta", nil, "Relative weight perturbations, each tried up and down (default 0.10,0.20)")
	cmd.Flags().IntVar(&tolerance, "tolerance", 0, "Cycles a reversal may move and still count as robust (default 5)")
	return cmd
}

func historyCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded metric snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				entries, err := svc.Engine.History(ctx, limit)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				return renderHistory(cmd.OutOrStdout(), entries)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Show only the newest entries (0 for all)")
	return cmd
}

func recordCmd(a *app) *cobra.Command {
	var cycle int
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Store the live metrics in the history under a cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cycle <= 0 {
				return fmt.Errorf("--cycle must be positive")
			}
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				report, err := svc.Engine.Record(ctx, cycle)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded cycle %d: CSER %.4f current %.4f legacy %.4f\n",
					cycle, report.CSER, report.Current, report.Legacy)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&cycle, "cycle", 0, "Cycle number")
	_ = cmd.MarkFlagRequired("cycle")
	return cmd
}

func verifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Show the last committed session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				session, ok, err := svc.Engine.Verify(ctx)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no sessions committed yet")
					return nil
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), session)
				}
				return renderSession(cmd.OutOrStdout(), session)
			})
		},
	}
}

func profilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the scoring profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *services.Services) error {
				profiles := svc.Engine.Profiles()
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), profiles)
				}
				return renderProfiles(cmd.OutOrStdout(), profiles, svc.Engine.DefaultProfile())
			})
		},
	}
}
