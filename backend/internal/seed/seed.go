// Package seed generates a demo research log: two collaborators taking
// turns, mostly linking notes inside their own recent thread. The result
// has the short spans and low cross-source ratio the engine is built to
// repair.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/relation"
	"emergent-kg/backend/internal/store"
	"emergent-kg/backend/pkg/logger"
)

// Updater is recorded as meta.last_updater on seeded documents.
const Updater = "seed"

// Options shape the generated log.
type Options struct {
	Nodes int
	// EdgesPerNode is how many earlier notes each note links back to.
	EdgesPerNode int
	// Window bounds how far back a link may reach.
	Window int
	// CrossRate is the chance a link goes to the other collaborator.
	CrossRate float64
	Seed      uint64
	Sources   []string
}

// DefaultOptions is a 60-note log with a narrow link window.
func DefaultOptions() Options {
	return Options{
		Nodes:        60,
		EdgesPerNode: 1,
		Window:       6,
		CrossRate:    0.2,
		Seed:         7,
		Sources:      []string{"록이", "cokac-bot"},
	}
}

var kinds = []string{"observation", "question", "insight", "decision", "finding", "prediction", "experiment", "synthesis"}

var topics = []string{"memory", "emergence", "convergence", "feedback", "drift", "cadence", "span", "resonance", "loop", "signal"}

var verbs = []string{"shapes", "delays", "amplifies", "dampens", "reframes", "anchors"}

// Corpus builds the node and link plan without touching a store. Links are
// index pairs into the returned nodes, later note first.
func Corpus(opts Options) ([]graph.NodeInput, [][2]int) {
	if len(opts.Sources) == 0 {
		opts.Sources = DefaultOptions().Sources
	}
	if opts.Window <= 0 {
		opts.Window = 1
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	nodes := make([]graph.NodeInput, opts.Nodes)
	for i := range nodes {
		a := topics[rng.IntN(len(topics))]
		b := topics[rng.IntN(len(topics))]
		verb := verbs[rng.IntN(len(verbs))]
		tags := []string{a}
		if b != a {
			tags = append(tags, b)
		}
		nodes[i] = graph.NodeInput{
			Kind:    kinds[rng.IntN(len(kinds))],
			Label:   fmt.Sprintf("%s %s %s", a, verb, b),
			Content: fmt.Sprintf("Note %d: %s %s %s across cycles.", i+1, strings.ToUpper(a[:1])+a[1:], verb, b),
			Source:  opts.Sources[i%len(opts.Sources)],
			Tags:    tags,
		}
	}

	var links [][2]int
	seen := make(map[[2]int]bool)
	for i := 1; i < len(nodes); i++ {
		for k := 0; k < opts.EdgesPerNode; k++ {
			j := pickTarget(rng, nodes, i, opts)
			if j < 0 || seen[[2]int{i, j}] {
				continue
			}
			seen[[2]int{i, j}] = true
			links = append(links, [2]int{i, j})
		}
	}
	return nodes, links
}

// pickTarget chooses an earlier note within the window, preferring the same
// source unless the roll says cross.
func pickTarget(rng *rand.Rand, nodes []graph.NodeInput, i int, opts Options) int {
	cross := rng.Float64() < opts.CrossRate
	lo := max(0, i-opts.Window)
	var pool []int
	for j := lo; j < i; j++ {
		if (nodes[j].Source != nodes[i].Source) == cross {
			pool = append(pool, j)
		}
	}
	if len(pool) == 0 {
		return -1
	}
	return pool[rng.IntN(len(pool))]
}

// Result reports what was appended.
type Result struct {
	Nodes []graph.Node
	Edges []graph.Edge
}

// Run appends the corpus to st. The store must already hold a document,
// possibly empty.
func Run(ctx context.Context, st store.GraphStore, opts Options, now store.Clock) (*Result, error) {
	log := logger.Named("seed")
	inputs, links := Corpus(opts)

	nodes, err := store.AppendNodes(ctx, st, Updater, now, inputs...)
	if err != nil {
		return nil, fmt.Errorf("failed to append nodes: %w", err)
	}

	edges := make([]graph.EdgeInput, len(links))
	for k, l := range links {
		from, to := nodes[l[0]], nodes[l[1]]
		hint := relation.Infer(from.Kind, to.Kind)
		edges[k] = graph.EdgeInput{From: from.ID, To: to.ID, Relation: hint.Relation, Label: hint.Rationale}
	}
	added, err := store.AppendEdges(ctx, st, Updater, now, edges...)
	if err != nil {
		return nil, fmt.Errorf("failed to append edges: %w", err)
	}

	log.Info("Seeded research log",
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(added)),
	)
	return &Result{Nodes: nodes, Edges: added}, nil
}

// Empty is the document a fresh store starts from.
func Empty() *graph.Document {
	return &graph.Document{
		Meta:  graph.Meta{NextNodeID: "n-001", NextEdgeID: "e-001", LastUpdater: Updater},
		Nodes: []graph.Node{},
		Edges: []graph.Edge{},
	}
}
