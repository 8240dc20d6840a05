package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/store"
)

type workspace struct {
	graph    string
	sessions string
	history  string
}

func (w workspace) args(extra ...string) []string {
	return append([]string{"--graph", w.graph, "--sessions", w.sessions, "--history", w.history}, extra...)
}

func newWorkspace(t *testing.T, nodes int) workspace {
	t.Helper()
	t.Setenv("STORE_BACKEND", "json")
	t.Setenv("PROFILE", "")
	t.Setenv("ENGINE_CONFIG", "")
	t.Setenv("LOG_LEVEL", "")

	doc := &graph.Document{}
	for i := 1; i <= nodes; i++ {
		src, kind := "록이", "insight"
		if i%2 == 0 {
			src, kind = "cokac-bot", "observation"
		}
		doc.Nodes = append(doc.Nodes, graph.Node{
			ID:      fmt.Sprintf("n-%03d", i),
			Kind:    kind,
			Source:  src,
			Label:   fmt.Sprintf("note %d", i),
			Content: "emergence memory loop",
			Tags:    []string{"memory"},
		})
	}
	data, err := graph.Encode(doc)
	require.NoError(t, err)

	dir := t.TempDir()
	w := workspace{
		graph:    filepath.Join(dir, "kg.json"),
		sessions: filepath.Join(dir, "logs", "sessions.json"),
		history:  filepath.Join(dir, "history.db"),
	}
	require.NoError(t, os.WriteFile(w.graph, data, 0o644))
	return w
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func readGraph(t *testing.T, path string) *graph.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := graph.Decode(data, path)
	require.NoError(t, err)
	return doc
}

var spanDirect = []string{"--profile", "v4-span-direct", "--top", "3", "--min-span", "5"}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kgpair version "+Version)
}

func TestRecommend_JSONLeavesGraphAlone(t *testing.T) {
	w := newWorkspace(t, 30)
	before, err := os.ReadFile(w.graph)
	require.NoError(t, err)

	out, err := execute(t, w.args(append([]string{"recommend", "--json"}, spanDirect...)...)...)
	require.NoError(t, err)

	var plan pairing.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "v4-span-direct", plan.Profile.Name)
	assert.Len(t, plan.Selection.Selected, 3)
	for _, c := range plan.Selection.Selected {
		assert.GreaterOrEqual(t, c.Span, 5)
	}

	after, err := os.ReadFile(w.graph)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecommend_Text(t *testing.T) {
	w := newWorkspace(t, 30)

	out, err := execute(t, w.args(append([]string{"recommend"}, spanDirect...)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "profile v4-span-direct")
	assert.Contains(t, out, "3 selected")
	assert.Contains(t, out, "cser")
}

func TestRecommend_TopBounds(t *testing.T) {
	w := newWorkspace(t, 30)

	out, err := execute(t, w.args(append(append([]string{"recommend"}, spanDirect...), "--top", "0")...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing selected: batch size is 0")

	_, err = execute(t, w.args(append(append([]string{"recommend"}, spanDirect...), "--top", "-1")...)...)
	assert.Error(t, err)
}

func TestRecommend_StrictAndSoftConflict(t *testing.T) {
	w := newWorkspace(t, 10)

	_, err := execute(t, w.args("recommend", "--strict", "--soft")...)
	assert.Error(t, err)
}

func TestCommit_WritesEdgesSessionAndHistory(t *testing.T) {
	w := newWorkspace(t, 30)

	out, err := execute(t, w.args(append([]string{"commit", "--cycle", "7"}, spanDirect...)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "committed e-001, e-002, e-003")

	doc := readGraph(t, w.graph)
	require.Len(t, doc.Edges, 3)
	assert.Equal(t, "e-004", doc.Meta.NextEdgeID)
	assert.Equal(t, graph.GeneratorName, doc.Meta.LastUpdater)
	p, ok := graph.ProvenanceOf(doc.Edges[0])
	require.True(t, ok)
	assert.Equal(t, 7, p.Cycle)

	out, err = execute(t, w.args("verify", "--json")...)
	require.NoError(t, err)
	var session store.Session
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, 7, session.Cycle)
	assert.Equal(t, 3, session.Added)
	assert.Equal(t, "v4-span-direct", session.Profile)

	out, err = execute(t, w.args("history", "--json")...)
	require.NoError(t, err)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].Cycle)
	assert.Equal(t, 3, entries[0].Report.Edges)
}

func TestCommit_DryRun(t *testing.T) {
	w := newWorkspace(t, 30)
	before, err := os.ReadFile(w.graph)
	require.NoError(t, err)

	out, err := execute(t, w.args(append([]string{"commit", "--dry-run"}, spanDirect...)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "dry run: 3 edges not written")

	after, err := os.ReadFile(w.graph)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	out, err = execute(t, w.args("verify")...)
	require.NoError(t, err)
	assert.Contains(t, out, "no sessions committed yet")
}

func TestCommit_Infeasible(t *testing.T) {
	w := newWorkspace(t, 4)

	out, err := execute(t, w.args("commit", "--profile", "v4-span-direct", "--min-span", "50")...)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing selected")
	assert.Empty(t, readGraph(t, w.graph).Edges)
}

func TestDiagnose(t *testing.T) {
	w := newWorkspace(t, 12)

	out, err := execute(t, w.args("diagnose")...)
	require.NoError(t, err)
	assert.Contains(t, out, "profile v3-cross-floor")
	assert.Contains(t, out, "tag_convergence_saturated")

	_, err = execute(t, w.args("diagnose", "--profile", "v9")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v9")
}

func TestMetricsAndSources(t *testing.T) {
	w := newWorkspace(t, 8)

	out, err := execute(t, w.args("metrics")...)
	require.NoError(t, err)
	assert.Contains(t, out, "nodes 8  edges 0")
	assert.Contains(t, out, "node_age_diversity")

	out, err = execute(t, w.args("sources")...)
	require.NoError(t, err)
	assert.Contains(t, out, "cokac")
	assert.Contains(t, out, "록이")
}

func TestProfiles(t *testing.T) {
	w := newWorkspace(t, 2)

	out, err := execute(t, w.args("profiles")...)
	require.NoError(t, err)
	for _, p := range pairing.Builtins() {
		assert.Contains(t, out, p.Name)
	}
	assert.Contains(t, out, "*")
}

func TestRecordAndSensitivity(t *testing.T) {
	w := newWorkspace(t, 8)

	_, err := execute(t, w.args("record")...)
	assert.Error(t, err, "cycle is required")

	out, err := execute(t, w.args("record", "--cycle", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded cycle 1")

	out, err = execute(t, w.args("sensitivity", "--delta", "0.1", "--json")...)
	require.NoError(t, err)
	var analysis struct {
		Results []json.RawMessage `json:"results"`
		Verdict string            `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Len(t, analysis.Results, 8)
	assert.NotEmpty(t, analysis.Verdict)
}
