// Package layer implements the typed DAG of overlay layers: layers,
// inter-layer adjacencies with a distribution policy, optional
// intra-layer communication, acyclicity enforcement and DAG→tree
// reduction.
package layer

import (
	"fmt"
	"sort"

	"github.com/viant/weaver/internal/diagnostics"
)

// DistributionKind is how events fan out over an adjacency.
type DistributionKind int

const (
	Uniform DistributionKind = iota
	ByBlock
)

// Distribution describes how records are distributed across an
// adjacency's fan-out.
type Distribution struct {
	Kind      DistributionKind
	BlockSize int // meaningful only when Kind == ByBlock
}

// Adjacency is a directed edge between two layers.
type Adjacency struct {
	From         int // source layer order id
	To           int // target layer order id
	Strategy     string
	Distribution Distribution
}

// Merge declares that two layers share one module-configuration document:
// the higher layer's module instances are emitted inside the lower
// layer's document, keeping their originating-layer id.
type Merge struct {
	High int
	Low  int
}

// Layer is one tier of the overlay; order id 0 is the application.
type Layer struct {
	Order           int
	Size            int
	Place           string
	AssignedModules []string
	IntraComm       string // strategy name, empty if none

	InEdges  []*Adjacency
	OutEdges []*Adjacency
}

// Graph is the layer DAG, reduced to a tree before code synthesis.
type Graph struct {
	layers   map[int]*Layer
	edges    []*Adjacency
	reduced  bool
}

// NewGraph creates an empty layer graph.
func NewGraph() *Graph {
	return &Graph{layers: map[int]*Layer{}}
}

// AddLayer registers a layer by its order id. Order id 0 is reserved for
// the application layer.
func (g *Graph) AddLayer(l *Layer) error {
	if _, exists := g.layers[l.Order]; exists {
		return diagnostics.NewConstraintViolationError("layer", fmt.Sprintf("duplicate layer order %d", l.Order))
	}
	g.layers[l.Order] = l
	return nil
}

// Layer looks up a layer by order id.
func (g *Graph) Layer(order int) (*Layer, bool) {
	l, ok := g.layers[order]
	return l, ok
}

// Layers returns every layer sorted by order id.
func (g *Graph) Layers() []*Layer {
	out := make([]*Layer, 0, len(g.layers))
	for _, l := range g.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// AddAdjacency adds a directed edge from one layer to another.
func (g *Graph) AddAdjacency(a *Adjacency) error {
	from, ok := g.layers[a.From]
	if !ok {
		return diagnostics.NewUnresolvedReferenceError("layer", fmt.Sprintf("%d", a.From))
	}
	to, ok := g.layers[a.To]
	if !ok {
		return diagnostics.NewUnresolvedReferenceError("layer", fmt.Sprintf("%d", a.To))
	}
	from.OutEdges = append(from.OutEdges, a)
	to.InEdges = append(to.InEdges, a)
	g.edges = append(g.edges, a)
	return nil
}

// SetIntraComm assigns the intra-layer communication strategy to a layer.
func (g *Graph) SetIntraComm(order int, strategy string) error {
	l, ok := g.layers[order]
	if !ok {
		return diagnostics.NewUnresolvedReferenceError("layer", fmt.Sprintf("%d", order))
	}
	l.IntraComm = strategy
	return nil
}

// CheckAcyclic performs a DFS cycle check over the current edge set.
// Returns a LayoutError naming one layer on a detected cycle.
func (g *Graph) CheckAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int]int{}
	var visit func(order int) error
	visit = func(order int) error {
		color[order] = gray
		l := g.layers[order]
		for _, e := range l.OutEdges {
			switch color[e.To] {
			case gray:
				return diagnostics.NewLayoutError(fmt.Sprintf("cycle detected through layer %d", e.To))
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}
		color[order] = black
		return nil
	}
	for _, l := range g.Layers() {
		if color[l.Order] == white {
			if err := visit(l.Order); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckReachability fails with a LayoutError if any non-root layer cannot
// be reached from the application layer (order 0) by following out-edges.
func (g *Graph) CheckReachability() error {
	root, ok := g.layers[0]
	if !ok {
		return diagnostics.NewLayoutError("no layer with order 0 (application layer)")
	}
	seen := map[int]bool{root.Order: true}
	queue := []int{root.Order}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.layers[cur].OutEdges {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	for _, l := range g.Layers() {
		if !seen[l.Order] {
			return diagnostics.NewLayoutError(fmt.Sprintf("layer %d is unreachable from the application layer", l.Order))
		}
	}
	return nil
}

// CheckWrapAcrossUsage fails with a LayoutError if any layer hosts a
// wrap-across-creating module without an intra-communication.
func (g *Graph) CheckWrapAcrossUsage(hostsWrapAcross func(order int) bool) error {
	for _, l := range g.Layers() {
		if hostsWrapAcross(l.Order) && l.IntraComm == "" {
			return diagnostics.NewLayoutError(fmt.Sprintf("layer %d hosts a wrap-across module without an intra-communication", l.Order))
		}
	}
	return nil
}

// ReduceToTree keeps, for every layer with multiple predecessors, only the
// in-edge from the predecessor with the highest order id (closest to the
// root), discarding the rest. It is idempotent.
func (g *Graph) ReduceToTree() {
	for _, l := range g.Layers() {
		if len(l.InEdges) <= 1 {
			continue
		}
		best := l.InEdges[0]
		for _, e := range l.InEdges[1:] {
			if e.From > best.From {
				best = e
			}
		}
		for _, e := range l.InEdges {
			if e == best {
				continue
			}
			removeAdjacency(g.layers[e.From], e, true, false)
		}
		l.InEdges = []*Adjacency{best}
	}
	// Drop edges from the graph's flat edge list and from the surviving
	// source layers' OutEdges wherever they were pruned above.
	var kept []*Adjacency
	for _, e := range g.edges {
		to := g.layers[e.To]
		stillPresent := false
		for _, in := range to.InEdges {
			if in == e {
				stillPresent = true
				break
			}
		}
		if stillPresent {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	g.reduced = true
}

func removeAdjacency(from *Layer, e *Adjacency, pruneOut, pruneIn bool) {
	if pruneOut {
		var kept []*Adjacency
		for _, o := range from.OutEdges {
			if o != e {
				kept = append(kept, o)
			}
		}
		from.OutEdges = kept
	}
}

// Reduced reports whether ReduceToTree has run.
func (g *Graph) Reduced() bool {
	return g.reduced
}

// ForwardTargets returns the layers order forwards records to after tree
// reduction (its out-neighbours): the tiers closer to the front-end root of
// the real overlay tree.
func (g *Graph) ForwardTargets(order int) []int {
	l, ok := g.layers[order]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(l.OutEdges))
	for _, e := range l.OutEdges {
		out = append(out, e.To)
	}
	return out
}

// FeedSources returns the layers that forward records into order (its
// in-neighbours): the tiers closer to the application processes, i.e.
// order's children in the overlay tree's physical (application-rooted)
// sense. The call-properties solver's Pass B aggregates a layer's
// args_to_receive from exactly these sources.
func (g *Graph) FeedSources(order int) []int {
	l, ok := g.layers[order]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(l.InEdges))
	for _, e := range l.InEdges {
		out = append(out, e.From)
	}
	return out
}

// MaxFanIn returns the largest number of sub-channels any single node of
// the overlay receives on, used by the channel-id plan. Fan-in is a
// property of the layer sizes, not of the layer-graph edges: an adjacency
// from a 128-process layer into a 16-place layer gives every receiving
// place 8 sub-channels even though the graph carries a single edge.
// Layers with no declared size count as size 1.
func (g *Graph) MaxFanIn() int {
	max := 0
	for _, l := range g.layers {
		fanIn := 0
		for _, e := range l.InEdges {
			from := sizeOrOne(g.layers[e.From])
			to := sizeOrOne(l)
			fanIn += (from + to - 1) / to
		}
		if fanIn > max {
			max = fanIn
		}
	}
	return max
}

func sizeOrOne(l *Layer) int {
	if l == nil || l.Size < 1 {
		return 1
	}
	return l.Size
}

// Depth returns the length of the longest path from the application layer
// to any leaf, used by the channel-id plan.
func (g *Graph) Depth() int {
	memo := map[int]int{}
	var depth func(order int) int
	depth = func(order int) int {
		if d, ok := memo[order]; ok {
			return d
		}
		best := 0
		for _, next := range g.ForwardTargets(order) {
			if d := depth(next) + 1; d > best {
				best = d
			}
		}
		memo[order] = best
		return best
	}
	return depth(0)
}
