package graph

import (
	"bytes"
	"encoding/json"
	"sort"
)

// ============================================================================
// Persisted Document Types
// ============================================================================

// Node is a typed note in the research log.
type Node struct {
	ID        string   `json:"id"`
	Kind      string   `json:"type"`
	Label     string   `json:"label"`
	Content   string   `json:"content,omitempty"`
	Source    string   `json:"source"`
	Timestamp string   `json:"timestamp,omitempty"`
	Tags      []string `json:"tags"`

	// Extra keeps fields this package does not model, verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// Edge is a directed relation between two nodes.
type Edge struct {
	ID       string          `json:"id"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Relation string          `json:"relation"`
	Label    string          `json:"label,omitempty"`
	Meta     json.RawMessage `json:"meta,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Meta is the document header. Counters are explicit: the engine reads them,
// advances them and writes them back; it never rescans ids.
type Meta struct {
	NextNodeID  string `json:"next_node_id,omitempty"`
	NextEdgeID  string `json:"next_edge_id,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	TotalNodes  int    `json:"total_nodes"`
	TotalEdges  int    `json:"total_edges"`
	LastUpdater string `json:"last_updater,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Document is the whole persisted knowledge graph.
type Document struct {
	Meta  Meta   `json:"meta"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ============================================================================
// JSON with unknown-field preservation
// ============================================================================

var (
	nodeFields = []string{"id", "type", "label", "content", "source", "timestamp", "tags"}
	edgeFields = []string{"id", "from", "to", "relation", "label", "meta"}
	metaFields = []string{"next_node_id", "next_edge_id", "last_updated", "total_nodes", "total_edges", "last_updater"}
	docFields  = []string{"meta", "nodes", "edges"}
)

func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := leftovers(data, nodeFields)
	if err != nil {
		return err
	}
	*n = Node(p)
	n.Extra = extra
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	type plain Node
	p := plain(n)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return withExtra(p, n.Extra)
}

func (e *Edge) UnmarshalJSON(data []byte) error {
	type plain Edge
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := leftovers(data, edgeFields)
	if err != nil {
		return err
	}
	*e = Edge(p)
	e.Extra = extra
	return nil
}

func (e Edge) MarshalJSON() ([]byte, error) {
	type plain Edge
	return withExtra(plain(e), e.Extra)
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	type plain Meta
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := leftovers(data, metaFields)
	if err != nil {
		return err
	}
	*m = Meta(p)
	m.Extra = extra
	return nil
}

func (m Meta) MarshalJSON() ([]byte, error) {
	type plain Meta
	return withExtra(plain(m), m.Extra)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := leftovers(data, docFields)
	if err != nil {
		return err
	}
	*d = Document(p)
	d.Extra = extra
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	p := plain(d)
	if p.Nodes == nil {
		p.Nodes = []Node{}
	}
	if p.Edges == nil {
		p.Edges = []Edge{}
	}
	return withExtra(p, d.Extra)
}

// leftovers returns the object members not named in known.
func leftovers(data []byte, known []string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// withExtra encodes v and appends the extra members, sorted by key, before
// the closing brace.
func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := marshalRaw(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	first := bytes.Equal(bytes.TrimSpace(b), []byte("{}"))
	for _, k := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := marshalRaw(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalRaw is json.Marshal without HTML escaping, so labels such as
// "a<->b" survive a rewrite unchanged.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
