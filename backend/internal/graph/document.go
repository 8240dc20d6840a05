package graph

import (
	"bytes"
	"encoding/json"
	"time"

	apperrors "emergent-kg/backend/pkg/errors"
)

// DateLayout is the day-resolution stamp used in meta.last_updated and
// edge provenance.
const DateLayout = "2006-01-02"

// Decode parses a persisted document and checks its referential integrity.
// A dangling edge or a duplicate node id rejects the whole document.
func Decode(data []byte, path string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewLoadFailed(path, "malformed JSON", err)
	}
	if err := doc.Check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode renders the document the way it is kept on disk: two-space indent,
// non-ASCII and HTML characters unescaped, trailing newline.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Check verifies node ids are unique and every edge endpoint exists.
func (d *Document) Check() error {
	ids := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		if _, dup := ids[n.ID]; dup {
			return apperrors.NewDuplicateNode(n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	for _, e := range d.Edges {
		if _, ok := ids[e.From]; !ok {
			return apperrors.NewDanglingEdge(e.ID, e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return apperrors.NewDanglingEdge(e.ID, e.To)
		}
	}
	return nil
}

// Touch refreshes the derived header fields before a rewrite.
func (d *Document) Touch(now time.Time) {
	d.Meta.LastUpdated = now.Format(DateLayout)
	d.Meta.TotalNodes = len(d.Nodes)
	d.Meta.TotalEdges = len(d.Edges)
}

// Clone returns a deep enough copy for append-only mutation: the node and
// edge slices are fresh, element payloads are shared.
func (d *Document) Clone() *Document {
	out := *d
	out.Nodes = append([]Node(nil), d.Nodes...)
	out.Edges = append([]Edge(nil), d.Edges...)
	return &out
}

// HasNode reports whether a node with the given id exists.
func (d *Document) HasNode(id string) bool {
	for _, n := range d.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
