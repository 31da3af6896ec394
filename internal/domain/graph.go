package domain

// Graph is the arena-style provenance multigraph: nodes held in an
// identity-keyed map, edges as records referencing those keys rather than
// pointers, so de-duplication is a hashmap lookup and merging is immune to
// the graph's natural cycles (Host -> IP -> Network <- IP <- Host).
type Graph struct {
	nodes    map[string]*Node
	edges    []Edge
	edgeSeen map[edgeKey]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edgeSeen: make(map[edgeKey]struct{}),
	}
}

// UpsertNode inserts a node if its identity is new, or returns the
// existing node with the same identity otherwise (merge policy: never
// duplicate by identity).
func (g *Graph) UpsertNode(n *Node) *Node {
	if existing, ok := g.nodes[n.ID]; ok {
		return existing
	}
	g.nodes[n.ID] = n
	return n
}

// Node looks up a node by its identity string.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in the graph. Order is unspecified.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// NodesByKind returns every node of the given kind.
func (g *Graph) NodesByKind(kind Kind) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// AddEdge inserts an edge unless an identical (from, to, rel_type) triple
// already exists (invariant I2). Returns true if the edge was added.
func (g *Graph) AddEdge(e Edge) bool {
	k := edgeKey{from: e.From, to: e.To, rel: e.RelType}
	if _, ok := g.edgeSeen[k]; ok {
		return false
	}
	g.edgeSeen[k] = struct{}{}
	g.edges = append(g.edges, e)
	return true
}

// Edges returns every edge in the graph in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgesFrom returns every edge whose source is the given node identity.
func (g *Graph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns every edge whose destination is the given node identity.
func (g *Graph) EdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }
