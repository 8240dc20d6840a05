package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergent-kg/backend/internal/graph"
)

// TestNeo4jStore requires a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD to run it.
func TestNeo4jStore_RoundTrip(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if testing.Short() || uri == "" {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	st, err := ConnectNeo4j(ctx, uri, os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Reset(ctx))
	defer st.Reset(ctx)
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx), "schema statements are idempotent")

	doc, err := graph.Decode([]byte(seedDoc), "seed")
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, doc))

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 3)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "n-002", loaded.Nodes[1].ID)
	assert.Equal(t, []string{"memory"}, loaded.Nodes[0].Tags)
	assert.JSONEq(t, `0.7`, string(loaded.Nodes[2].Extra["confidence"]))
	assert.Equal(t, "e-002", loaded.Meta.NextEdgeID)
	assert.JSONEq(t, `"emergent"`, string(loaded.Meta.Extra["project"]))
}
