// Package graph is the host-side graph model consumed by forcelayout.
//
// A Graph owns Nodes, which expose a mutable 2-D position and a locked flag,
// and Edges, which connect nodes by ID and carry the spring parameters the
// layout reads. Partitions group the nodes that are laid out together.
//
// Graph is safe for concurrent reads and for AddNode/AddEdge from multiple
// goroutines. Node positions are written by the layout without locking;
// callers must not lay out the same partition from two goroutines.
//
// Errors:
//
//	ErrNilNode       - node or edge pointer is nil.
//	ErrEmptyNodeID   - node ID is the empty string.
//	ErrDuplicateNode - a node with the same ID already exists.
//	ErrNodeNotFound  - an edge references an unknown node.
package graph

import (
	"errors"
	"sync"
)

// Sentinel errors for graph construction.
var (
	// ErrNilNode indicates a nil *Node or *Edge was passed.
	ErrNilNode = errors.New("graph: nil node or edge")

	// ErrEmptyNodeID indicates that the provided Node has an empty ID.
	ErrEmptyNodeID = errors.New("graph: node ID is empty")

	// ErrDuplicateNode indicates that a node with the same ID was already added.
	ErrDuplicateNode = errors.New("graph: duplicate node ID")

	// ErrNodeNotFound indicates an edge endpoint that is not part of the graph.
	ErrNodeNotFound = errors.New("graph: node not found")
)

// Node is a movable layout node.
type Node struct {
	// ID uniquely identifies the node within its Graph.
	ID string

	// X and Y are the current position. The layout overwrites them for
	// every node that is not Locked.
	X, Y float64

	// Locked nodes keep their position.
	Locked bool

	// Mass overrides the layout's default node mass when positive.
	Mass float64
}

// Edge connects two nodes by ID. Edges are undirected for layout purposes.
type Edge struct {
	Source string
	Target string

	// Weight is the normalized edge weight in (0, 1]. Zero means the edge is
	// unweighted. EdgeWeighter.Apply fills it from Attrs.
	Weight float64

	// Coefficient overrides the default spring coefficient when positive.
	Coefficient float64

	// Length overrides the default spring rest length when positive.
	Length float64

	// Attrs holds numeric attributes an EdgeWeighter can read.
	Attrs map[string]float64
}

// Graph is an insertion-ordered collection of nodes and edges.
type Graph struct {
	mu    sync.RWMutex
	nodes []*Node
	index map[string]*Node
	edges []*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]*Node)}
}

// AddNode adds n to the graph.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return ErrNilNode
	}
	if n.ID == "" {
		return ErrEmptyNodeID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[n.ID]; ok {
		return ErrDuplicateNode
	}
	g.index[n.ID] = n
	g.nodes = append(g.nodes, n)
	return nil
}

// AddEdge adds e to the graph. Both endpoints must already exist.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil {
		return ErrNilNode
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[e.Source]; !ok {
		return ErrNodeNotFound
	}
	if _, ok := g.index[e.Target]; !ok {
		return ErrNodeNotFound
	}
	g.edges = append(g.edges, e)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.index[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
// The returned slice is a copy; the nodes are shared.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
