package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/history"
	"emergent-kg/backend/internal/metrics"
	"emergent-kg/backend/internal/pairing"
	"emergent-kg/backend/internal/store"
	apperrors "emergent-kg/backend/pkg/errors"
)

// Mock implementations for testing

type mockStore struct {
	doc     *graph.Document
	saves   int
	loadErr error
}

func (m *mockStore) Load(ctx context.Context) (*graph.Document, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.doc.Clone(), nil
}

func (m *mockStore) Save(ctx context.Context, doc *graph.Document) error {
	m.saves++
	m.doc = doc
	return nil
}

type mockSessions struct {
	log       store.SessionLog
	appendErr error
}

func (m *mockSessions) Load(ctx context.Context) (*store.SessionLog, error) {
	out := m.log
	return &out, nil
}

func (m *mockSessions) Append(ctx context.Context, s store.Session) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.log.Sessions = append(m.log.Sessions, s)
	m.log.Meta.NextCycle = s.Cycle + 1
	return nil
}

func (m *mockSessions) Last(ctx context.Context) (store.Session, bool, error) {
	if len(m.log.Sessions) == 0 {
		return store.Session{}, false, nil
	}
	return m.log.Sessions[len(m.log.Sessions)-1], true, nil
}

type mockHistory struct {
	entries []history.Entry
	points  []metrics.Point
}

func (m *mockHistory) Record(ctx context.Context, e history.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockHistory) List(ctx context.Context, limit int) ([]history.Entry, error) {
	return m.entries, nil
}

func (m *mockHistory) Points(ctx context.Context) ([]metrics.Point, error) {
	return m.points, nil
}

var fixed = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

// researchLog builds n nodes alternating between the two default source
// groups, kinds alternating insight/observation.
func researchLog(n int) *graph.Document {
	doc := &graph.Document{}
	for i := 1; i <= n; i++ {
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
	return doc
}

func newEngine(st *mockStore, ss *mockSessions, h *mockHistory) *Engine {
	var (
		sessions SessionLog
		hist     History
	)
	if ss != nil {
		sessions = ss
	}
	if h != nil {
		hist = h
	}
	return New(st, sessions, hist, Options{Workers: 2, Now: func() time.Time { return fixed }})
}

var spanDirect = Request{Profile: pairing.ProfileSpanDirect.Name, Top: 3, MinSpan: 5}

func TestRecommend_DoesNotMutate(t *testing.T) {
	st := &mockStore{doc: researchLog(30)}
	eng := newEngine(st, nil, nil)

	plan, err := eng.Recommend(context.Background(), spanDirect)
	require.NoError(t, err)
	assert.Len(t, plan.Selection.Selected, 3)
	assert.NotEmpty(t, plan.Feasible)
	assert.Zero(t, st.saves)
	assert.Empty(t, st.doc.Edges)
}

func TestCommit_AppendsEdgesWithProvenance(t *testing.T) {
	st := &mockStore{doc: researchLog(30)}
	ss := &mockSessions{log: store.SessionLog{Meta: store.SessionMeta{NextCycle: 12}}}
	h := &mockHistory{}
	eng := newEngine(st, ss, h)

	res, err := eng.Commit(context.Background(), spanDirect)
	require.NoError(t, err)
	require.Len(t, res.Edges, 3)
	assert.Equal(t, 1, st.saves)

	assert.Equal(t, []string{"e-001", "e-002", "e-003"}, []string{res.Edges[0].ID, res.Edges[1].ID, res.Edges[2].ID})
	assert.Equal(t, "e-004", st.doc.Meta.NextEdgeID)
	assert.Equal(t, 3, st.doc.Meta.TotalEdges)
	assert.Equal(t, graph.GeneratorName, st.doc.Meta.LastUpdater)
	assert.Equal(t, "2026-04-02", st.doc.Meta.LastUpdated)

	for i, e := range st.doc.Edges {
		prov, ok := graph.ProvenanceOf(e)
		require.True(t, ok)
		assert.Equal(t, "v4-span-direct", prov.Profile)
		assert.Equal(t, 12, prov.Cycle)
		assert.Equal(t, "2026-04-02", prov.Date)
		assert.True(t, prov.DCINeutral)
		assert.Equal(t, res.Session.ID, prov.Session)
		assert.Equal(t, res.Plan.Selection.Selected[i].Combined, prov.Combined)
	}

	assert.Equal(t, res.Plan.Simulation.After, res.After, "the simulation predicted the committed state")
	require.Len(t, ss.log.Sessions, 1)
	assert.Equal(t, 3, ss.log.Sessions[0].Added)
	assert.Equal(t, 3, ss.log.Sessions[0].Delta.Edges)
	require.Len(t, h.entries, 1)
	assert.Equal(t, 12, h.entries[0].Cycle)
	assert.Equal(t, res.Session.ID, h.entries[0].Session)

	last, ok, err := eng.Verify(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Session.ID, last.ID)
}

func TestCommit_SecondBatchSkipsConnectedPairs(t *testing.T) {
	st := &mockStore{doc: researchLog(30)}
	eng := newEngine(st, &mockSessions{log: store.SessionLog{Meta: store.SessionMeta{NextCycle: 1}}}, nil)

	first, err := eng.Commit(context.Background(), spanDirect)
	require.NoError(t, err)
	second, err := eng.Commit(context.Background(), spanDirect)
	require.NoError(t, err)

	seen := map[[2]string]bool{}
	for _, e := range append(first.Edges, second.Edges...) {
		key := [2]string{e.From, e.To}
		assert.False(t, seen[key], "pair %v proposed twice", key)
		seen[key] = true
	}
	assert.Equal(t, "e-004", second.Edges[0].ID)
	assert.Len(t, st.doc.Edges, 6)
}

func TestCommit_DryRunWritesNothing(t *testing.T) {
	st := &mockStore{doc: researchLog(30)}
	ss := &mockSessions{}
	eng := newEngine(st, ss, nil)

	req := spanDirect
	req.DryRun = true
	req.Cycle = 4
	res, err := eng.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	require.Len(t, res.Edges, 3)
	assert.Equal(t, "dry-001", res.Edges[0].ID)
	assert.Zero(t, st.saves)
	assert.Empty(t, ss.log.Sessions)
}

func TestCommit_InfeasibleIsNotAnError(t *testing.T) {
	st := &mockStore{doc: researchLog(10)}
	ss := &mockSessions{}
	eng := newEngine(st, ss, nil)

	req := spanDirect
	req.MinSpan = 100
	res, err := eng.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	require.NotNil(t, res.Plan.Selection.Infeasible)
	assert.Equal(t, pairing.ReasonShortSpan, res.Plan.Selection.Infeasible.Reason)
	assert.Zero(t, st.saves)
	assert.Empty(t, ss.log.Sessions)
}

func TestCommit_LogFailureKeepsCommit(t *testing.T) {
	st := &mockStore{doc: researchLog(30)}
	ss := &mockSessions{appendErr: errors.New("disk full")}
	eng := newEngine(st, ss, nil)

	res, err := eng.Commit(context.Background(), spanDirect)
	require.NoError(t, err)
	assert.Len(t, res.Edges, 3)
	assert.Equal(t, 1, st.saves)
}

func TestRequests_BatchSize(t *testing.T) {
	st := &mockStore{doc: researchLog(30)}
	eng := newEngine(st, nil, nil)

	zero := spanDirect
	zero.Top = 0
	plan, err := eng.Recommend(context.Background(), zero)
	require.NoError(t, err)
	assert.Empty(t, plan.Selection.Selected)
	assert.NotEmpty(t, plan.Feasible)
	require.NotNil(t, plan.Selection.Infeasible)
	assert.Equal(t, "batch size is 0", plan.Selection.Infeasible.Message)

	res, err := eng.Commit(context.Background(), zero)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	assert.Zero(t, st.saves)

	negative := spanDirect
	negative.Top = -1
	_, err = eng.Recommend(context.Background(), negative)
	var invalid *apperrors.ErrInvalidInput
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "top", invalid.Field)
}

func TestRequests_ResolveProfiles(t *testing.T) {
	eng := newEngine(&mockStore{doc: researchLog(5)}, nil, nil)

	_, err := eng.Recommend(context.Background(), Request{Profile: "v0-unknown"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeProfile))

	_, err = eng.Recommend(context.Background(), Request{Mode: "lenient"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeProfile))

	assert.Equal(t, pairing.DefaultProfileName, eng.DefaultProfile())
	assert.Len(t, eng.Profiles(), 4)
}

func TestLoadErrorsPropagate(t *testing.T) {
	eng := newEngine(&mockStore{loadErr: apperrors.NewDanglingEdge("e-009", "n-404")}, nil, nil)

	_, err := eng.Metrics(context.Background())
	assert.True(t, apperrors.IsLoadError(err))
	_, err = eng.Commit(context.Background(), spanDirect)
	assert.True(t, apperrors.IsLoadError(err))
}

func TestDiagnose(t *testing.T) {
	doc := researchLog(4)
	for i := range doc.Nodes {
		doc.Nodes[i].Source = "록이"
	}
	doc.Nodes[3].Kind = "question"
	prov, err := graph.Provenance{Source: graph.GeneratorName, Profile: "v1-span-semantic"}.Encode()
	require.NoError(t, err)
	doc.Edges = []graph.Edge{
		{ID: "e-001", From: "n-001", To: "n-004", Relation: "answers", Meta: prov},
		{ID: "e-002", From: "n-002", To: "n-004", Relation: "answers"},
	}
	eng := newEngine(&mockStore{doc: doc}, nil, nil)

	d, err := eng.Diagnose(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, d.Healthy())
	assert.Equal(t, graph.OrderBySuffix, d.OrderMode)

	kinds := map[ViolationKind]Violation{}
	for _, v := range d.Violations {
		kinds[v.Kind] = v
	}
	assert.Contains(t, kinds, ViolationCSERFloor, "CSER 0 is below 0.65")
	require.Contains(t, kinds, ViolationForbiddenEdge)
	assert.Equal(t, []string{"e-001"}, kinds[ViolationForbiddenEdge].EdgeIDs, "hand-written edges are not flagged")
	assert.Contains(t, kinds, ViolationTagSaturation, "the only tag is on every node")

	d, err = eng.Diagnose(context.Background(), pairing.ProfileSpanDirect.Name)
	require.NoError(t, err)
	for _, v := range d.Violations {
		assert.NotEqual(t, ViolationCSERFloor, v.Kind, "v4 has no floor")
	}
}

func TestSourceStats(t *testing.T) {
	doc := researchLog(4)
	prov, err := graph.Provenance{Source: graph.GeneratorName, CrossSource: true}.Encode()
	require.NoError(t, err)
	doc.Edges = []graph.Edge{
		{ID: "e-001", From: "n-001", To: "n-002", Relation: "grounds", Meta: prov},
		{ID: "e-002", From: "n-001", To: "n-003", Relation: "extends"},
	}
	eng := newEngine(&mockStore{doc: doc}, nil, nil)

	st, err := eng.SourceStats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cokac", "록이"}, st.Groups)
	assert.Equal(t, 2, st.Nodes["cokac"])
	assert.Equal(t, 1, st.CrossEdges)
	assert.Equal(t, 1, st.EngineEdges)
	assert.Equal(t, 1, st.EngineCross)
	assert.Equal(t, 0.5, st.CSER)
	assert.False(t, st.MeetsFloor)
}

func TestSensitivity(t *testing.T) {
	st := &mockStore{doc: researchLog(6)}

	_, err := newEngine(st, nil, nil).Sensitivity(context.Background(), nil, 0)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))

	h := &mockHistory{points: []metrics.Point{
		{Cycle: 1, Values: map[metrics.Metric]float64{metrics.TagConvergence: 1}},
		{Cycle: 2, Values: map[metrics.Metric]float64{metrics.TagConvergence: 1}},
	}}
	a, err := newEngine(st, nil, h).Sensitivity(context.Background(), []float64{0.1}, 3)
	require.NoError(t, err)
	assert.Len(t, a.Results, 8, "four current weights, plus and minus")
	assert.NotEmpty(t, a.Verdict)
}

func TestRecord(t *testing.T) {
	h := &mockHistory{}
	eng := newEngine(&mockStore{doc: researchLog(6)}, nil, h)

	r, err := eng.Record(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, h.entries, 1)
	assert.Equal(t, 9, h.entries[0].Cycle)
	assert.Equal(t, r, h.entries[0].Report)
	assert.Equal(t, fixed, h.entries[0].RecordedAt)
}
