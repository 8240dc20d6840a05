package graph

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "emergent-kg/backend/pkg/errors"
)

const sampleDoc = `{
  "meta": {
    "next_node_id": "n-005",
    "next_edge_id": "e-004",
    "total_nodes": 4,
    "total_edges": 3,
    "project": "emergent",
    "cycle_notes": {"last": 41}
  },
  "nodes": [
    {"id": "n-001", "type": "decision", "label": "start", "source": "록이", "tags": ["memory"], "confidence": 0.9},
    {"id": "n-002", "type": "observation", "label": "obs", "source": "cokac", "tags": []},
    {"id": "n-003", "type": "question", "label": "why <a & b>?", "source": "상록", "tags": ["memory"]},
    {"id": "n-004", "type": "insight", "label": "ok", "source": "cokac-bot", "tags": []}
  ],
  "edges": [
    {"id": "e-001", "from": "n-001", "to": "n-002", "relation": "causes"},
    {"id": "e-002", "from": "n-002", "to": "n-003", "relation": "relates_to", "weight": 2},
    {"id": "e-003", "from": "n-003", "to": "n-004", "relation": "answers"}
  ],
  "schema": "kg/1"
}`

func TestDecode_PreservesUnknownFields(t *testing.T) {
	doc, err := Decode([]byte(sampleDoc), "kg.json")
	require.NoError(t, err)

	assert.Len(t, doc.Nodes, 4)
	assert.Equal(t, "question", doc.Nodes[2].Kind)
	assert.JSONEq(t, `0.9`, string(doc.Nodes[0].Extra["confidence"]))
	assert.JSONEq(t, `2`, string(doc.Edges[1].Extra["weight"]))
	assert.JSONEq(t, `"emergent"`, string(doc.Meta.Extra["project"]))
	assert.JSONEq(t, `"kg/1"`, string(doc.Extra["schema"]))

	out, err := Encode(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(out), "\n"))
	assert.Contains(t, string(out), "why <a & b>?", "HTML characters stay unescaped")
	assert.Contains(t, string(out), "록이", "non-ASCII stays unescaped")

	again, err := Decode(out, "kg.json")
	require.NoError(t, err)
	assert.JSONEq(t, `"emergent"`, string(again.Meta.Extra["project"]))
	assert.Equal(t, doc.Nodes[0].Extra, again.Nodes[0].Extra)
	assert.JSONEq(t, `{"last": 41}`, string(again.Meta.Extra["cycle_notes"]))

	third, err := Encode(again)
	require.NoError(t, err)
	assert.Equal(t, string(out), string(third), "rewrite is stable")
}

func TestDecode_DanglingEdgeFailsFast(t *testing.T) {
	raw := `{"meta": {}, "nodes": [{"id": "n-001", "type": "insight", "label": "a", "source": "x", "tags": []}],
	  "edges": [{"id": "e-001", "from": "n-001", "to": "n-404", "relation": "relates_to"}]}`

	_, err := Decode([]byte(raw), "kg.json")
	require.Error(t, err)

	var dangling *apperrors.ErrDanglingEdge
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "e-001", dangling.EdgeID)
	assert.Equal(t, "n-404", dangling.NodeID)
	assert.True(t, apperrors.IsLoadError(err))
}

func TestDecode_DuplicateNode(t *testing.T) {
	raw := `{"meta": {}, "nodes": [
	  {"id": "n-001", "type": "insight", "label": "a", "source": "x", "tags": []},
	  {"id": "n-001", "type": "insight", "label": "b", "source": "x", "tags": []}], "edges": []}`

	_, err := Decode([]byte(raw), "kg.json")
	var dup *apperrors.ErrDuplicateNode
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "n-001", dup.NodeID)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"nodes": [`), "kg.json")
	require.Error(t, err)
	assert.True(t, apperrors.IsLoadError(err))
}

func TestSnapshot_SuffixOrderAndGroups(t *testing.T) {
	doc, err := Decode([]byte(sampleDoc), "kg.json")
	require.NoError(t, err)

	s, err := NewSnapshot(doc, DefaultGroupTable())
	require.NoError(t, err)

	assert.Equal(t, OrderBySuffix, s.Mode())
	assert.Equal(t, 3, s.Order("n-003"))
	assert.Equal(t, -1, s.Order("n-999"))
	assert.Equal(t, "록이", s.Group("n-003"), "상록 folds into 록이")
	assert.Equal(t, "cokac", s.Group("n-004"))
	assert.True(t, s.Cross("n-001", "n-002"))
	assert.False(t, s.Cross("n-001", "n-003"))
	assert.True(t, s.Connected("n-002", "n-001"), "connectivity ignores direction")
	assert.False(t, s.Connected("n-001", "n-004"))
	assert.Equal(t, 1, s.Span(doc.Edges[0]))
}

func TestSnapshot_RankOrderFallback(t *testing.T) {
	doc := &Document{Nodes: []Node{
		{ID: "beta", Kind: "insight"},
		{ID: "alpha", Kind: "insight"},
		{ID: "n-7", Kind: "insight"},
	}}

	s, err := NewSnapshot(doc, nil)
	require.NoError(t, err)

	assert.Equal(t, OrderByRank, s.Mode())
	assert.Equal(t, 1, s.Order("alpha"))
	assert.Equal(t, 2, s.Order("beta"))
	assert.Equal(t, 3, s.Order("n-7"))
}

func TestSnapshot_CollidingSuffixesFallBackToRank(t *testing.T) {
	doc := &Document{Nodes: []Node{{ID: "n-001"}, {ID: "m-001"}}}

	s, err := NewSnapshot(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, OrderByRank, s.Mode())
	assert.Equal(t, 1, s.Order("m-001"))
}

func TestSnapshot_WithEdgesLeavesBaseUntouched(t *testing.T) {
	doc, err := Decode([]byte(sampleDoc), "kg.json")
	require.NoError(t, err)
	base, err := NewSnapshot(doc, DefaultGroupTable())
	require.NoError(t, err)

	shadow, err := base.WithEdges(Edge{ID: "e-004", From: "n-001", To: "n-004", Relation: "relates_to"})
	require.NoError(t, err)

	assert.Equal(t, 3, base.EdgeCount())
	assert.Equal(t, 4, shadow.EdgeCount())
	assert.False(t, base.Connected("n-001", "n-004"))
	assert.True(t, shadow.Connected("n-004", "n-001"))

	_, err = base.WithEdges(Edge{ID: "e-x", From: "n-001", To: "n-404"})
	assert.Error(t, err)
}

func TestSequence(t *testing.T) {
	seq, err := ParseSequence("e-009")
	require.NoError(t, err)

	id, seq := seq.Take()
	assert.Equal(t, "e-009", id)
	id, seq = seq.Take()
	assert.Equal(t, "e-010", id)
	assert.Equal(t, "e-011", seq.String())

	big, err := ParseSequence("e-1042")
	require.NoError(t, err)
	assert.Equal(t, "e-1042", big.String())

	for _, bad := range []string{"", "e-", "-5", "e-x"} {
		_, err := ParseSequence(bad)
		assert.Error(t, err, bad)
	}
}

func TestDocumentSequences_SeedWhenMissing(t *testing.T) {
	doc := &Document{
		Nodes: []Node{{ID: "n-003"}, {ID: "n-010"}},
		Edges: []Edge{{ID: "e-041", From: "n-003", To: "n-010"}},
	}
	assert.Equal(t, "n-011", doc.NodeSequence().String())
	assert.Equal(t, "e-042", doc.EdgeSequence().String())

	doc.Meta.NextEdgeID = "e-100"
	assert.Equal(t, "e-100", doc.EdgeSequence().String(), "an explicit counter wins")
}

func TestTouch(t *testing.T) {
	doc := &Document{Nodes: []Node{{ID: "n-001"}}}
	doc.Touch(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, "2026-03-04", doc.Meta.LastUpdated)
	assert.Equal(t, 1, doc.Meta.TotalNodes)
	assert.Equal(t, 0, doc.Meta.TotalEdges)
}

func TestProvenanceOf(t *testing.T) {
	meta, err := Provenance{Source: GeneratorName, Profile: "v3-cross-floor", Cycle: 12, DCINeutral: true}.Encode()
	require.NoError(t, err)

	p, ok := ProvenanceOf(Edge{Meta: meta})
	require.True(t, ok)
	assert.Equal(t, 12, p.Cycle)
	assert.Equal(t, "v3-cross-floor", p.Profile)

	_, ok = ProvenanceOf(Edge{Meta: json.RawMessage(`{"source": "manual"}`)})
	assert.False(t, ok)
	_, ok = ProvenanceOf(Edge{})
	assert.False(t, ok)
}

func TestInputValidation(t *testing.T) {
	assert.NoError(t, NodeInput{Kind: "insight", Label: "x", Source: "cokac", Tags: []string{"a"}}.Validate())

	err := NodeInput{Kind: "insight", Source: "cokac"}.Validate()
	var invalid *apperrors.ErrInvalidInput
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "label", invalid.Field)

	assert.Error(t, NodeInput{Kind: "insight", Label: "x", Source: "cokac", Tags: []string{""}}.Validate())

	assert.NoError(t, EdgeInput{From: "n-001", To: "n-002", Relation: "extends"}.Validate())
	assert.Error(t, EdgeInput{From: "n-001", To: "n-001", Relation: "extends"}.Validate(), "self loops are rejected")
	assert.Error(t, EdgeInput{From: "n-001", To: "n-002"}.Validate())
}
