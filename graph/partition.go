package graph

import (
	"math"
	"sort"
)

// Partition is a group of nodes laid out independently of the rest of the
// graph, together with the edges between them.
type Partition struct {
	// Index is the partition's position in the slice returned by Partitions.
	Index int

	Nodes []*Node
	Edges []*Edge
}

// Partitions splits g into connected components, largest first. Ties keep
// the order in which the components' first nodes were added. When single is
// true the whole graph is returned as one partition.
//
// Time: O(V + E).
func Partitions(g *Graph, single bool) []*Partition {
	nodes := g.Nodes()
	edges := g.Edges()
	if len(nodes) == 0 {
		return nil
	}
	if single {
		return []*Partition{{Index: 0, Nodes: nodes, Edges: edges}}
	}

	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n.ID] = i
	}
	adj := make([][]int, len(nodes))
	for _, e := range edges {
		s, t := pos[e.Source], pos[e.Target]
		adj[s] = append(adj[s], t)
		adj[t] = append(adj[t], s)
	}

	comp := make([]int, len(nodes))
	for i := range comp {
		comp[i] = -1
	}
	var parts []*Partition
	for start := range nodes {
		if comp[start] >= 0 {
			continue
		}
		id := len(parts)
		p := &Partition{}
		queue := []int{start}
		comp[start] = id
		for qi := 0; qi < len(queue); qi++ {
			u := queue[qi]
			p.Nodes = append(p.Nodes, nodes[u])
			for _, v := range adj[u] {
				if comp[v] < 0 {
					comp[v] = id
					queue = append(queue, v)
				}
			}
		}
		parts = append(parts, p)
	}
	for _, e := range edges {
		p := parts[comp[pos[e.Source]]]
		p.Edges = append(p.Edges, e)
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return len(parts[i].Nodes) > len(parts[j].Nodes)
	})
	for i, p := range parts {
		p.Index = i
	}
	return parts
}

// Bounds returns the bounding box of the partition's nodes.
// An empty partition returns all zeros.
func (p *Partition) Bounds() (minX, minY, maxX, maxY float64) {
	if len(p.Nodes) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, n := range p.Nodes {
		minX = math.Min(minX, n.X)
		minY = math.Min(minY, n.Y)
		maxX = math.Max(maxX, n.X)
		maxY = math.Max(maxY, n.Y)
	}
	return minX, minY, maxX, maxY
}

// HasLocked reports whether any node of the partition is locked.
func (p *Partition) HasLocked() bool {
	for _, n := range p.Nodes {
		if n.Locked {
			return true
		}
	}
	return false
}

// Translate moves every unlocked node by (dx, dy).
func (p *Partition) Translate(dx, dy float64) {
	for _, n := range p.Nodes {
		if n.Locked {
			continue
		}
		n.X += dx
		n.Y += dy
	}
}
