package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"emergent-kg/backend/internal/graph"
	apperrors "emergent-kg/backend/pkg/errors"
	"emergent-kg/backend/pkg/logger"
)

// Neo4jStore mirrors the document into Neo4j as (:KGNode) nodes joined by
// [:KG_EDGE] relationships, plus a single (:KGMeta) header node. Fields the
// graph package does not model travel as JSON strings.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	mu     sync.Mutex
	logger *zap.Logger
}

// NewNeo4jStore wraps an open driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
		logger: logger.Get(),
	}
}

// ConnectNeo4j opens a driver and verifies connectivity.
func ConnectNeo4j(ctx context.Context, uri, user, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("connect", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, apperrors.NewStoreQueryFailed("verify connectivity", err)
	}
	return NewNeo4jStore(driver), nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// Update runs fn between a Load and a Save while holding the store lock, so
// appends through this process never interleave.
func (s *Neo4jStore) Update(ctx context.Context, fn func(doc *graph.Document) (*graph.Document, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(doc)
	if err != nil {
		return err
	}
	return s.Save(ctx, next)
}

// Load reads the mirrored document back in stored order.
func (s *Neo4jStore) Load(ctx context.Context) (*graph.Document, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	doc := &graph.Document{}

	metaQuery := `
		MATCH (m:KGMeta {key: 'graph'})
		RETURN m.meta as meta, m.extra as extra
	`
	result, err := session.Run(ctx, metaQuery, nil)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("load meta", err)
	}
	if result.Next(ctx) {
		record := result.Record()
		if raw := getString(record, "meta"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &doc.Meta); err != nil {
				return nil, apperrors.NewLoadFailed("neo4j:KGMeta", "malformed meta", err)
			}
		}
		extra, err := decodeExtra(getString(record, "extra"))
		if err != nil {
			return nil, apperrors.NewLoadFailed("neo4j:KGMeta", "malformed extra", err)
		}
		doc.Extra = extra
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewStoreQueryFailed("load meta", err)
	}

	nodeQuery := `
		MATCH (n:KGNode)
		RETURN n.id as id, n.type as type, n.label as label, n.content as content,
		       n.source as source, n.timestamp as timestamp, n.tags as tags, n.extra as extra
		ORDER BY n.seq
	`
	result, err = session.Run(ctx, nodeQuery, nil)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("load nodes", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		n := graph.Node{
			ID:        getString(record, "id"),
			Kind:      getString(record, "type"),
			Label:     getString(record, "label"),
			Content:   getString(record, "content"),
			Source:    getString(record, "source"),
			Timestamp: getString(record, "timestamp"),
			Tags:      getStringSlice(record, "tags"),
		}
		if n.Extra, err = decodeExtra(getString(record, "extra")); err != nil {
			return nil, apperrors.NewLoadFailed("neo4j:KGNode", "malformed extra on "+n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewStoreQueryFailed("load nodes", err)
	}

	edgeQuery := `
		MATCH (a:KGNode)-[r:KG_EDGE]->(b:KGNode)
		RETURN r.id as id, a.id as from, b.id as to, r.relation as relation,
		       r.label as label, r.meta as meta, r.extra as extra
		ORDER BY r.seq
	`
	result, err = session.Run(ctx, edgeQuery, nil)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("load edges", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		e := graph.Edge{
			ID:       getString(record, "id"),
			From:     getString(record, "from"),
			To:       getString(record, "to"),
			Relation: getString(record, "relation"),
			Label:    getString(record, "label"),
		}
		if meta := getString(record, "meta"); meta != "" {
			e.Meta = json.RawMessage(meta)
		}
		if e.Extra, err = decodeExtra(getString(record, "extra")); err != nil {
			return nil, apperrors.NewLoadFailed("neo4j:KG_EDGE", "malformed extra on "+e.ID, err)
		}
		doc.Edges = append(doc.Edges, e)
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewStoreQueryFailed("load edges", err)
	}

	if err := doc.Check(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save upserts every node and edge by id and rewrites the header. The engine
// only appends, so nodes and edges missing from doc are left alone.
func (s *Neo4jStore) Save(ctx context.Context, doc *graph.Document) error {
	nodes := make([]map[string]any, len(doc.Nodes))
	for i, n := range doc.Nodes {
		extra, err := encodeExtra(n.Extra)
		if err != nil {
			return apperrors.NewStoreWriteFailed("neo4j:KGNode "+n.ID, err)
		}
		tags := n.Tags
		if tags == nil {
			tags = []string{}
		}
		nodes[i] = map[string]any{
			"id": n.ID, "type": n.Kind, "label": n.Label, "content": n.Content,
			"source": n.Source, "timestamp": n.Timestamp, "tags": tags, "extra": extra, "seq": i,
		}
	}
	edges := make([]map[string]any, len(doc.Edges))
	for i, e := range doc.Edges {
		extra, err := encodeExtra(e.Extra)
		if err != nil {
			return apperrors.NewStoreWriteFailed("neo4j:KG_EDGE "+e.ID, err)
		}
		edges[i] = map[string]any{
			"id": e.ID, "from": e.From, "to": e.To, "relation": e.Relation,
			"label": e.Label, "meta": string(e.Meta), "extra": extra, "seq": i,
		}
	}
	meta, err := json.Marshal(doc.Meta)
	if err != nil {
		return apperrors.NewStoreWriteFailed("neo4j:KGMeta", err)
	}
	docExtra, err := encodeExtra(doc.Extra)
	if err != nil {
		return apperrors.NewStoreWriteFailed("neo4j:KGMeta", err)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodeQuery := `
			UNWIND $nodes AS row
			MERGE (n:KGNode {id: row.id})
			SET n.type = row.type,
			    n.label = row.label,
			    n.content = row.content,
			    n.source = row.source,
			    n.timestamp = row.timestamp,
			    n.tags = row.tags,
			    n.extra = row.extra,
			    n.seq = row.seq
		`
		if _, err := tx.Run(ctx, nodeQuery, map[string]any{"nodes": nodes}); err != nil {
			return nil, fmt.Errorf("failed to upsert nodes: %w", err)
		}

		edgeQuery := `
			UNWIND $edges AS row
			MATCH (a:KGNode {id: row.from}), (b:KGNode {id: row.to})
			MERGE (a)-[r:KG_EDGE {id: row.id}]->(b)
			SET r.relation = row.relation,
			    r.label = row.label,
			    r.meta = row.meta,
			    r.extra = row.extra,
			    r.seq = row.seq
		`
		if _, err := tx.Run(ctx, edgeQuery, map[string]any{"edges": edges}); err != nil {
			return nil, fmt.Errorf("failed to upsert edges: %w", err)
		}

		metaQuery := `
			MERGE (m:KGMeta {key: 'graph'})
			SET m.meta = $meta, m.extra = $extra
		`
		if _, err := tx.Run(ctx, metaQuery, map[string]any{"meta": string(meta), "extra": docExtra}); err != nil {
			return nil, fmt.Errorf("failed to write meta: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.NewStoreWriteFailed("neo4j", err)
	}

	s.logger.Info("Graph mirrored to Neo4j",
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
	)
	return nil
}

func encodeExtra(extra map[string]json.RawMessage) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeExtra(raw string) (map[string]json.RawMessage, error) {
	if raw == "" {
		return nil, nil
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil, err
	}
	return extra, nil
}

// Helper functions

func getString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getStringSlice(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	if slice, ok := val.([]interface{}); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

// EnsureSchema creates the id constraints and the ordering indexes the
// mirror relies on. Statements that already hold are no-ops.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT kg_node_id_unique IF NOT EXISTS FOR (n:KGNode) REQUIRE n.id IS UNIQUE",
		"CREATE CONSTRAINT kg_meta_key_unique IF NOT EXISTS FOR (m:KGMeta) REQUIRE m.key IS UNIQUE",
		"CREATE INDEX kg_node_seq IF NOT EXISTS FOR (n:KGNode) ON (n.seq)",
		"CREATE INDEX kg_node_source IF NOT EXISTS FOR (n:KGNode) ON (n.source)",
		"CREATE INDEX kg_edge_id IF NOT EXISTS FOR ()-[r:KG_EDGE]-() ON (r.id)",
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.NewStoreQueryFailed(stmt, err)
		}
	}
	return nil
}

// Reset deletes the mirrored graph and its header.
func (s *Neo4jStore) Reset(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (n)
		WHERE n:KGNode OR n:KGMeta
		DETACH DELETE n
	`
	if _, err := session.Run(ctx, query, nil); err != nil {
		return apperrors.NewStoreQueryFailed("reset", err)
	}
	s.logger.Info("Neo4j mirror reset")
	return nil
}
