package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"emergent-kg/backend/internal/graph"
	apperrors "emergent-kg/backend/pkg/errors"
)

// GraphStore loads and rewrites the whole knowledge graph document.
type GraphStore interface {
	Load(ctx context.Context) (*graph.Document, error)
	Save(ctx context.Context, doc *graph.Document) error
}

// Updater is a GraphStore that runs a whole load, modify and save cycle
// under one lock. fn receives a freshly loaded document and returns the one
// to save.
type Updater interface {
	Update(ctx context.Context, fn func(doc *graph.Document) (*graph.Document, error)) error
}

// updateMu serializes read-modify-write cycles on stores without Update.
var updateMu sync.Mutex

// update runs fn between a Load and a Save that no other append in this
// process can interleave with.
func update(ctx context.Context, st GraphStore, fn func(doc *graph.Document) (*graph.Document, error)) error {
	if u, ok := st.(Updater); ok {
		return u.Update(ctx, fn)
	}

	updateMu.Lock()
	defer updateMu.Unlock()

	doc, err := st.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(doc)
	if err != nil {
		return err
	}
	return st.Save(ctx, next)
}

// Clock lets tests pin the date written into meta and edge provenance.
type Clock func() time.Time

// AppendNodes validates the inputs, allocates ids from meta.next_node_id and
// saves the document once. It returns the new nodes in input order.
func AppendNodes(ctx context.Context, st GraphStore, updater string, now Clock, inputs ...graph.NodeInput) ([]graph.Node, error) {
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, err
		}
	}

	stamp := now()
	var added []graph.Node
	err := update(ctx, st, func(doc *graph.Document) (*graph.Document, error) {
		doc = doc.Clone()
		seq := doc.NodeSequence()
		added = make([]graph.Node, 0, len(inputs))
		for _, in := range inputs {
			var id string
			id, seq = seq.Take()
			for doc.HasNode(id) {
				id, seq = seq.Take()
			}
			n := graph.Node{
				ID:        id,
				Kind:      in.Kind,
				Label:     in.Label,
				Content:   in.Content,
				Source:    in.Source,
				Timestamp: stamp.UTC().Format(time.RFC3339),
				Tags:      append([]string(nil), in.Tags...),
			}
			doc.Nodes = append(doc.Nodes, n)
			added = append(added, n)
		}
		doc.Meta.NextNodeID = seq.String()
		if updater != "" {
			doc.Meta.LastUpdater = updater
		}
		doc.Touch(stamp)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// AppendEdges validates the inputs against the current document, allocates
// ids from meta.next_edge_id and saves once.
func AppendEdges(ctx context.Context, st GraphStore, updater string, now Clock, inputs ...graph.EdgeInput) ([]graph.Edge, error) {
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, err
		}
	}

	edges := make([]graph.Edge, len(inputs))
	for i, in := range inputs {
		edges[i] = graph.Edge{From: in.From, To: in.To, Relation: in.Relation, Label: in.Label}
	}
	return appendEdges(ctx, st, updater, now(), edges, true)
}

// CommitEdges appends fully formed edges to the stored document (ids are
// reassigned from the counter). Used by the engine, which has already
// checked the endpoints against the snapshot it planned on.
func CommitEdges(ctx context.Context, st GraphStore, updater string, stamp time.Time, edges []graph.Edge) ([]graph.Edge, error) {
	return appendEdges(ctx, st, updater, stamp, edges, false)
}

func appendEdges(ctx context.Context, st GraphStore, updater string, stamp time.Time, edges []graph.Edge, checkEnds bool) ([]graph.Edge, error) {
	var added []graph.Edge
	err := update(ctx, st, func(doc *graph.Document) (*graph.Document, error) {
		if checkEnds {
			for _, e := range edges {
				for _, end := range []string{e.From, e.To} {
					if !doc.HasNode(end) {
						return nil, apperrors.NewInvalidInput("endpoint", fmt.Sprintf("node %s does not exist", end))
					}
				}
			}
		}

		doc = doc.Clone()
		seq := doc.EdgeSequence()
		taken := make(map[string]struct{}, len(doc.Edges))
		for _, e := range doc.Edges {
			taken[e.ID] = struct{}{}
		}
		added = make([]graph.Edge, len(edges))
		for i, e := range edges {
			for {
				e.ID, seq = seq.Take()
				if _, dup := taken[e.ID]; !dup {
					break
				}
			}
			taken[e.ID] = struct{}{}
			doc.Edges = append(doc.Edges, e)
			added[i] = e
		}
		if err := doc.Check(); err != nil {
			return nil, err
		}
		doc.Meta.NextEdgeID = seq.String()
		if updater != "" {
			doc.Meta.LastUpdater = updater
		}
		doc.Touch(stamp)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}
