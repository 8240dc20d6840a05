package graph

import (
	"fmt"
	"strconv"
	"strings"
)

const sequenceWidth = 3

// Sequence is a "prefix-NNN" id counter such as meta.next_edge_id.
type Sequence struct {
	Prefix string
	Next   int
}

// ParseSequence reads a counter value like "n-009" or "e-1042".
func ParseSequence(s string) (Sequence, error) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return Sequence{}, fmt.Errorf("malformed id counter %q", s)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return Sequence{}, fmt.Errorf("malformed id counter %q", s)
	}
	return Sequence{Prefix: s[:i], Next: n}, nil
}

// String formats the pending id.
func (s Sequence) String() string {
	return fmt.Sprintf("%s-%0*d", s.Prefix, sequenceWidth, s.Next)
}

// Take returns the pending id and the advanced counter.
func (s Sequence) Take() (string, Sequence) {
	id := s.String()
	s.Next++
	return id, s
}

// numericSuffix returns the integer after the last '-' in id, or the whole
// id when it is a bare number.
func numericSuffix(id string) (int, bool) {
	tail := id
	if i := strings.LastIndex(id, "-"); i >= 0 {
		tail = id[i+1:]
	}
	if tail == "" {
		return 0, false
	}
	n, err := strconv.Atoi(tail)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// seedSequence builds a counter one past the highest numeric suffix among ids.
func seedSequence(prefix string, ids []string) Sequence {
	next := 1
	for _, id := range ids {
		if n, ok := numericSuffix(id); ok && n+1 > next {
			next = n + 1
		}
	}
	return Sequence{Prefix: prefix, Next: next}
}

// NodeSequence returns the node counter from meta. Documents that never
// carried one get a counter seeded from the existing ids.
func (d *Document) NodeSequence() Sequence {
	if seq, err := ParseSequence(d.Meta.NextNodeID); err == nil {
		return seq
	}
	ids := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		ids[i] = n.ID
	}
	return seedSequence("n", ids)
}

// EdgeSequence returns the edge counter from meta, seeded like NodeSequence.
func (d *Document) EdgeSequence() Sequence {
	if seq, err := ParseSequence(d.Meta.NextEdgeID); err == nil {
		return seq
	}
	ids := make([]string, len(d.Edges))
	for i, e := range d.Edges {
		ids[i] = e.ID
	}
	return seedSequence("e", ids)
}
