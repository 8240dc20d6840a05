package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"emergent-kg/backend/internal/engine"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/store"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderPlan(w io.Writer, plan *pairing.Plan) error {
	p := plan.Profile
	fmt.Fprintf(w, "profile %s (%s, min span %d, floor %.2f)\n", p.Name, p.Mode, p.MinSpan, p.CSERFloor)
	fmt.Fprintf(w, "pairs %d  connected %d  short span %d  candidates %d  feasible %d\n\n",
		plan.Generated.Pairs, plan.Generated.Connected, plan.Generated.ShortSpan, plan.Candidates, len(plan.Feasible))

	sel := plan.Selection
	if len(sel.Selected) == 0 {
		if sel.Infeasible != nil {
			fmt.Fprintf(w, "nothing selected: %s\n", sel.Infeasible.Message)
		}
		return nil
	}

	tw := table(w)
	fmt.Fprintln(tw, "#\tFROM\tTO\tRELATION\tSPAN\tSEMANTIC\tCOMBINED\tCROSS\tREGION")
	for i, c := range sel.Selected {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%.3f\t%.4f\t%s\t%s\n",
			i+1, c.From, c.To, c.Relation.Relation, c.Span, c.Semantic, c.Combined, yesNo(c.Cross), yesNo(c.InRegion))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d selected, %d cross-source\n\n", len(sel.Selected), sel.CrossCount)
	return renderDelta(w, plan.Simulation.Before, plan.Simulation.After)
}

func renderDelta(w io.Writer, before, after metrics.Report) error {
	d := metrics.Diff(before, after)
	tw := table(w)
	fmt.Fprintln(tw, "METRIC\tBEFORE\tAFTER\tDELTA")
	rows := []struct {
		name          string
		before, after float64
		delta         float64
	}{
		{"cser", before.CSER, after.CSER, d.CSER},
		{"dci", before.DCI, after.DCI, d.DCI},
		{"edge_span", before.EdgeSpan.Normalized, after.EdgeSpan.Normalized, d.EdgeSpanNorm},
		{"edge_span_raw", before.EdgeSpan.Raw, after.EdgeSpan.Raw, d.EdgeSpanRaw},
		{"node_age_diversity", before.NodeAgeDiversity, after.NodeAgeDiversity, d.NodeAgeDiversity},
		{"tag_convergence", before.TagConvergence, after.TagConvergence, d.TagConvergence},
		{"legacy", before.Legacy, after.Legacy, d.Legacy},
		{"current", before.Current, after.Current, d.Current},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%+.4f\n", r.name, r.before, r.after, r.delta)
	}
	return tw.Flush()
}

func renderCommit(w io.Writer, res *engine.CommitResult) error {
	if err := renderPlan(w, res.Plan); err != nil {
		return err
	}
	if len(res.Edges) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	if res.DryRun {
		fmt.Fprintf(w, "dry run: %d edges not written\n", len(res.Edges))
		return nil
	}
	ids := make([]string, len(res.Edges))
	for i, e := range res.Edges {
		ids[i] = e.ID
	}
	fmt.Fprintf(w, "committed %s\n", strings.Join(ids, ", "))
	if res.Session != nil {
		fmt.Fprintf(w, "session %s, cycle %d\n", res.Session.ID, res.Session.Cycle)
	}
	return nil
}

func renderReport(w io.Writer, r metrics.Report, c metrics.Composites) error {
	fmt.Fprintf(w, "nodes %d  edges %d\n\n", r.Nodes, r.Edges)
	tw := table(w)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	fmt.Fprintf(tw, "cser\t%.4f\n", r.CSER)
	fmt.Fprintf(tw, "dci\t%.4f\n", r.DCI)
	fmt.Fprintf(tw, "edge_span\t%.4f (raw %.2f, median %.1f, min %d, max %d, stdev %.2f)\n",
		r.EdgeSpan.Normalized, r.EdgeSpan.Raw, r.EdgeSpan.Median, r.EdgeSpan.Min, r.EdgeSpan.Max, r.EdgeSpan.Stdev)
	fmt.Fprintf(tw, "node_age_diversity\t%.4f\n", r.NodeAgeDiversity)
	fmt.Fprintf(tw, "tag_convergence\t%.4f\n", r.TagConvergence)
	fmt.Fprintf(tw, "convergence_health\t%.4f\n", r.ConvergenceHealth)
	fmt.Fprintf(tw, "%s\t%.4f  %s\n", c.Legacy.Name, r.Legacy, c.Legacy)
	fmt.Fprintf(tw, "%s\t%.4f  %s\n", c.Current.Name, r.Current, c.Current)
	fmt.Fprintf(tw, "gap\t%+.4f\n", r.Gap)
	return tw.Flush()
}

func renderDiagnosis(w io.Writer, d *engine.Diagnosis) error {
	fmt.Fprintf(w, "profile %s, order %s\n", d.Profile, d.OrderMode)
	fmt.Fprintf(w, "nodes %d  edges %d  CSER %.4f (floor %.2f)  DCI %.4f  current %.4f  legacy %.4f\n",
		d.Report.Nodes, d.Report.Edges, d.Report.CSER, d.Floor, d.Report.DCI, d.Report.Current, d.Report.Legacy)
	if d.Healthy() {
		fmt.Fprintln(w, "no violations")
		return nil
	}
	for _, v := range d.Violations {
		fmt.Fprintf(w, "- %s: %s\n", v.Kind, v.Message)
		if len(v.EdgeIDs) > 0 {
			fmt.Fprintf(w, "  edges: %s\n", strings.Join(v.EdgeIDs, ", "))
		}
	}
	return nil
}

func renderSources(w io.Writer, st *engine.SourceStats) error {
	tw := table(w)
	fmt.Fprintln(tw, "GROUP\tNODES")
	for _, g := range st.Groups {
		fmt.Fprintf(tw, "%s\t%d\n", g, st.Nodes[g])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nedges %d, cross-source %d\n", st.Edges, st.CrossEdges)
	fmt.Fprintf(w, "engine edges %d, cross-source %d\n", st.EngineEdges, st.EngineCross)
	status := "meets"
	if !st.MeetsFloor {
		status = "below"
	}
	fmt.Fprintf(w, "CSER %.4f %s the %.2f floor\n", st.CSER, status, st.Floor)
	return nil
}

func renderSensitivity(w io.Writer, a metrics.Analysis) error {
	base := "never"
	if a.BaseReversal != nil {
		base = fmt.Sprintf("cycle %d", *a.BaseReversal)
	}
	fmt.Fprintf(w, "base %s: current overtakes legacy at %s\n\n", a.Base, base)

	tw := table(w)
	fmt.Fprintln(tw, "VARIANT\tREVERSAL\tSHIFT\tROBUST")
	for _, r := range a.Results {
		rev := "never"
		if r.Reversal != nil {
			rev = fmt.Sprintf("%d", *r.Reversal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Label, rev, r.CycleDiff, yesNo(r.Robust))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nverdict: %s\n", a.Verdict)
	return nil
}

func renderHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history recorded")
		return nil
	}
	tw := table(w)
	fmt.Fprintln(tw, "CYCLE\tRECORDED\tPROFILE\tNODES\tEDGES\tCSER\tDCI\tCURRENT\tLEGACY")
	for _, e := range entries {
		r := e.Report
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
			e.Cycle, e.RecordedAt.Format("2006-01-02 15:04"), e.Profile, r.Nodes, r.Edges, r.CSER, r.DCI, r.Current, r.Legacy)
	}
	return tw.Flush()
}

func renderSession(w io.Writer, s store.Session) error {
	fmt.Fprintf(w, "session %s\n", s.ID)
	fmt.Fprintf(w, "date %s  profile %s  cycle %d  added %d (%d cross-source)\n\n", s.Date, s.Profile, s.Cycle, s.Added, s.CrossCount)

	tw := table(w)
	fmt.Fprintln(tw, "ID\tFROM\tTO\tRELATION\tSPAN\tCOMBINED\tCROSS")
	for _, e := range s.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.4f\t%s\n", e.ID, e.From, e.To, e.Relation, e.Span, e.Combined, yesNo(e.Cross))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return renderDelta(w, s.Before, s.After)
}

func renderProfiles(w io.Writer, profiles []pairing.ScoringProfile, def string) error {
	tw := table(w)
	fmt.Fprintln(tw, "\tNAME\tSPAN\tSEMANTIC\tCROSS\tGAIN\tMIN SPAN\tFLOOR\tMODE\tFORBIDDEN\tDESCRIPTION")
	for _, p := range profiles {
		mark := ""
		if p.Name == def {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%.2f\t%s\t%s\t%s\n",
			mark, p.Name, p.Weights.Span, p.Weights.Semantic, p.Weights.CrossBonus, p.Weights.Gain,
			p.MinSpan, p.CSERFloor, p.Mode, p.Forbidden, p.Description)
	}
	return tw.Flush()
}
