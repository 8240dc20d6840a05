package graph

// GroupTable folds raw node sources into source groups. Two nodes are
// "cross" when their groups differ.
type GroupTable struct {
	aliases  map[string]string
	fallback string
}

// NewGroupTable builds a table from an alias map. Sources missing from the
// map fold into fallback, or stand as their own group when fallback is empty.
func NewGroupTable(aliases map[string]string, fallback string) *GroupTable {
	copied := make(map[string]string, len(aliases))
	for raw, group := range aliases {
		copied[raw] = group
	}
	return &GroupTable{aliases: copied, fallback: fallback}
}

// DefaultGroupTable is the research log's two-author table.
func DefaultGroupTable() *GroupTable {
	return NewGroupTable(map[string]string{
		"록이":        "록이",
		"상록":        "록이",
		"cokac":     "cokac",
		"cokac-bot": "cokac",
	}, "")
}

// Group returns the group for a raw source string.
func (t *GroupTable) Group(source string) string {
	if t == nil {
		return source
	}
	if g, ok := t.aliases[source]; ok {
		return g
	}
	if t.fallback != "" {
		return t.fallback
	}
	return source
}
