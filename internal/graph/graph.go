package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrGraphStructure wraps every structural violation.
	ErrGraphStructure = errors.New("invalid graph structure")
	ErrCycle          = fmt.Errorf("%w: cycle detected", ErrGraphStructure)
)

// Graph is the set of nodes and pipes of one pipeline run.
type Graph struct {
	nodes    []Node
	index    map[int64]Node
	edges    []*Pipe
	strategy Strategy
}

// New creates an empty graph whose nodes fetch through strategy.
func New(strategy Strategy) *Graph {
	if strategy == nil {
		strategy = Synchronous{}
	}
	return &Graph{index: make(map[int64]Node), strategy: strategy}
}

func (g *Graph) Strategy() Strategy { return g.strategy }

// Nodes returns the registered nodes in insertion order.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// Edges returns the pipes in insertion order.
func (g *Graph) Edges() []*Pipe { return slices.Clone(g.edges) }

// Node looks a node up by id.
func (g *Graph) Node(id int64) (Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

func (g *Graph) addNode(n Node) bool {
	b := n.base()
	if _, ok := g.index[b.id]; ok {
		return false
	}
	b.strategy = g.strategy
	g.index[b.id] = n
	g.nodes = append(g.nodes, n)
	return true
}

func (g *Graph) removeNode(n Node) {
	id := n.base().id
	delete(g.index, id)
	g.nodes = slices.DeleteFunc(g.nodes, func(m Node) bool { return m.base().id == id })
}

// AddPipe registers both nodes, links them and re-validates the graph.
func (g *Graph) AddPipe(source, sink Node) (*Pipe, error) {
	src, dst := source.base(), sink.base()
	if src.id == dst.id {
		return nil, fmt.Errorf("%w: node %s cannot feed itself", ErrCycle, src)
	}
	if existing, ok := dst.sources[src.conceptID]; ok {
		if existing.source.base().id == src.id {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s already has a source for concept %q (%s)",
			ErrGraphStructure, dst, src.conceptID, existing.source.base())
	}

	newSource := g.addNode(source)
	newSink := g.addNode(sink)
	p := &Pipe{source: source, sink: sink}
	src.sinks[dst.id] = p
	dst.sources[src.conceptID] = p
	g.edges = append(g.edges, p)

	if err := g.Validate(); err != nil {
		// Unlink so the graph is left as it was before the call.
		delete(src.sinks, dst.id)
		delete(dst.sources, src.conceptID)
		g.edges = g.edges[:len(g.edges)-1]
		if newSource {
			g.removeNode(source)
		}
		if newSink {
			g.removeNode(sink)
		}
		return nil, err
	}
	return p, nil
}

// Sources returns the nodes without inbound pipes.
func (g *Graph) Sources() []Node {
	var out []Node
	for _, n := range g.nodes {
		if len(n.base().sources) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Sinks returns the nodes without outbound pipes.
func (g *Graph) Sinks() []Node {
	var out []Node
	for _, n := range g.nodes {
		if len(n.base().sinks) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks that a non-empty graph has sources and sinks and contains
// no cycle.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return nil
	}
	if len(g.Sources()) == 0 {
		return fmt.Errorf("%w: no source node (every node has an input)", ErrGraphStructure)
	}
	sinks := g.Sinks()
	if len(sinks) == 0 {
		return fmt.Errorf("%w: no sink node (every node has an output)", ErrGraphStructure)
	}

	done := make(map[int64]bool)
	for _, n := range sinks {
		if err := g.walk(n, nil, done); err != nil {
			return err
		}
	}
	// Nodes that cannot reach a sink are walked too.
	for _, n := range g.nodes {
		if err := g.walk(n, nil, done); err != nil {
			return err
		}
	}
	return nil
}

// walk follows sources depth first, carrying the current path from the
// starting sink.
func (g *Graph) walk(n Node, path []Node, done map[int64]bool) error {
	b := n.base()
	if done[b.id] {
		return nil
	}
	for i, p := range path {
		if p.base().id == b.id {
			return fmt.Errorf("%w involving node %s: %s", ErrCycle, b, renderPath(append(path[i:], n)))
		}
	}
	path = append(path, n)
	for _, p := range b.Sources() {
		if err := g.walk(p.source, path, done); err != nil {
			return err
		}
	}
	done[b.id] = true
	return nil
}

// Paths lists every route from a sink down to a leaf.
func (g *Graph) Paths() [][]Node {
	var out [][]Node
	var visit func(n Node, path []Node)
	visit = func(n Node, path []Node) {
		path = append(slices.Clone(path), n)
		srcs := n.base().Sources()
		if len(srcs) == 0 {
			out = append(out, path)
			return
		}
		for _, p := range srcs {
			visit(p.source, path)
		}
	}
	for _, s := range g.Sinks() {
		visit(s, nil)
	}
	return out
}

// String renders each sink to leaf path on its own line.
func (g *Graph) String() string {
	var b strings.Builder
	for _, p := range g.Paths() {
		b.WriteString(renderPath(p))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderPath(path []Node) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = n.base().String()
	}
	return strings.Join(parts, " <- ")
}
