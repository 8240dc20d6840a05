package graph

import (
	"sort"

	apperrors "emergent-kg/backend/pkg/errors"
)

// OrderMode records how node ids were mapped onto the temporal axis.
type OrderMode string

const (
	// OrderBySuffix uses the integer after the last '-' ("n-042" -> 42).
	OrderBySuffix OrderMode = "suffix"
	// OrderByRank uses the 1-based position in lexicographic id order. It is
	// chosen when some id has no numeric suffix or two suffixes collide.
	OrderByRank OrderMode = "rank"
)

type pairKey struct{ a, b int }

func keyOf(i, j int) pairKey {
	if i > j {
		i, j = j, i
	}
	return pairKey{i, j}
}

// Snapshot is an immutable, indexed view of a document used for one
// metrics or recommendation pass.
type Snapshot struct {
	nodes  []Node
	edges  []Edge
	index  map[string]int
	order  []int
	groups []string
	linked map[pairKey]struct{}
	mode   OrderMode
}

// NewSnapshot indexes doc. It fails on duplicate node ids and dangling edges.
func NewSnapshot(doc *Document, table *GroupTable) (*Snapshot, error) {
	if err := doc.Check(); err != nil {
		return nil, err
	}

	s := &Snapshot{
		nodes:  doc.Nodes,
		edges:  doc.Edges,
		index:  make(map[string]int, len(doc.Nodes)),
		order:  make([]int, len(doc.Nodes)),
		groups: make([]string, len(doc.Nodes)),
		linked: make(map[pairKey]struct{}, len(doc.Edges)),
	}
	for i, n := range doc.Nodes {
		s.index[n.ID] = i
		s.groups[i] = table.Group(n.Source)
	}
	s.assignOrder()
	for _, e := range doc.Edges {
		s.linked[keyOf(s.index[e.From], s.index[e.To])] = struct{}{}
	}
	return s, nil
}

func (s *Snapshot) assignOrder() {
	seen := make(map[int]struct{}, len(s.nodes))
	s.mode = OrderBySuffix
	for i, n := range s.nodes {
		v, ok := numericSuffix(n.ID)
		if _, dup := seen[v]; !ok || dup {
			s.mode = OrderByRank
			break
		}
		seen[v] = struct{}{}
		s.order[i] = v
	}
	if s.mode == OrderBySuffix {
		return
	}

	pos := make([]int, len(s.nodes))
	for i := range pos {
		pos[i] = i
	}
	sort.Slice(pos, func(a, b int) bool { return s.nodes[pos[a]].ID < s.nodes[pos[b]].ID })
	for rank, i := range pos {
		s.order[i] = rank + 1
	}
}

// WithEdges returns a shadow snapshot with extra edges appended. The receiver
// is left untouched.
func (s *Snapshot) WithEdges(extra ...Edge) (*Snapshot, error) {
	out := *s
	out.edges = make([]Edge, 0, len(s.edges)+len(extra))
	out.edges = append(out.edges, s.edges...)
	out.linked = make(map[pairKey]struct{}, len(s.linked)+len(extra))
	for k := range s.linked {
		out.linked[k] = struct{}{}
	}
	for _, e := range extra {
		i, ok := s.index[e.From]
		if !ok {
			return nil, apperrors.NewDanglingEdge(e.ID, e.From)
		}
		j, ok := s.index[e.To]
		if !ok {
			return nil, apperrors.NewDanglingEdge(e.ID, e.To)
		}
		out.edges = append(out.edges, e)
		out.linked[keyOf(i, j)] = struct{}{}
	}
	return &out, nil
}

// Nodes returns the nodes in document order. Callers must not modify them.
func (s *Snapshot) Nodes() []Node { return s.nodes }

// Edges returns the edges in document order. Callers must not modify them.
func (s *Snapshot) Edges() []Edge { return s.edges }

func (s *Snapshot) NodeCount() int { return len(s.nodes) }
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Mode reports how orders were assigned.
func (s *Snapshot) Mode() OrderMode { return s.mode }

// Node looks a node up by id.
func (s *Snapshot) Node(id string) (Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Order is the temporal position of a node, or -1 for unknown ids.
func (s *Snapshot) Order(id string) int {
	i, ok := s.index[id]
	if !ok {
		return -1
	}
	return s.order[i]
}

// OrderAt is the temporal position of the i-th node in document order.
func (s *Snapshot) OrderAt(i int) int { return s.order[i] }

// GroupAt is the source group of the i-th node in document order.
func (s *Snapshot) GroupAt(i int) string { return s.groups[i] }

// Group returns the source group of a node, or "" for unknown ids.
func (s *Snapshot) Group(id string) string {
	i, ok := s.index[id]
	if !ok {
		return ""
	}
	return s.groups[i]
}

// Cross reports whether two nodes sit in different source groups.
func (s *Snapshot) Cross(a, b string) bool {
	return s.Group(a) != s.Group(b)
}

// Connected reports whether an edge joins a and b in either direction.
func (s *Snapshot) Connected(a, b string) bool {
	i, ok := s.index[a]
	if !ok {
		return false
	}
	j, ok := s.index[b]
	if !ok {
		return false
	}
	_, linked := s.linked[keyOf(i, j)]
	return linked
}

// Span is the order distance between the endpoints of e.
func (s *Snapshot) Span(e Edge) int {
	d := s.Order(e.From) - s.Order(e.To)
	if d < 0 {
		d = -d
	}
	return d
}
