// Package flatten converts a graph partition into the dense, padded arrays
// the layout kernels read.
//
// Node i of a Network is Nodes[i]. Per-node arrays have NumNodesPadded
// entries; padding nodes sit at the origin with zero mass so they exert no
// force. Spring edges are stored once per direction in CSR form
// (EdgeOffsets, EdgeCounts, Edges). Repulsion pairs are the deduplicated,
// unordered edges padded to NumEdgesUniquePadded with (0, 0) pairs of zero
// mass.
package flatten

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/graph"
)

// Sentinel errors.
var (
	// ErrInvalidPadding indicates a padding below 1.
	ErrInvalidPadding = errors.New("flatten: padding must be at least 1")

	// ErrUnknownNode indicates an edge endpoint outside the partition.
	ErrUnknownNode = errors.New("flatten: edge endpoint not in partition")
)

// DefaultPadding is the node and pair alignment the kernels expect.
const DefaultPadding = 16

// Options controls flattening.
type Options struct {
	// Padding is the alignment of NumNodesPadded and NumEdgesUniquePadded.
	Padding int

	// Repulsion builds the deduplicated repulsion pairs.
	Repulsion bool

	// Deterministic assigns node indices in collated ID order and sorts
	// springs by endpoint index, so the arrays do not depend on insertion
	// order. Otherwise nodes and springs keep partition order.
	Deterministic bool

	DefaultNodeMass          float32
	DefaultSpringCoefficient float32
	DefaultSpringLength      float32
}

// DefaultOptions returns options matching the layout defaults.
func DefaultOptions() Options {
	return Options{
		Padding:                  DefaultPadding,
		DefaultNodeMass:          3,
		DefaultSpringCoefficient: 1e-4,
		DefaultSpringLength:      50,
	}
}

// Network is a flattened partition.
type Network struct {
	NumNodes             int
	NumNodesPadded       int
	NumEdgesUnique       int
	NumEdgesUniquePadded int

	// Nodes maps dense index to graph node; Index is its inverse.
	Nodes []*graph.Node
	Index map[string]int

	PosX []float32
	PosY []float32
	Mass []float32

	Edges       []int32
	EdgeOffsets []int32
	EdgeCounts  []int32
	EdgeCoeffs  []float32
	EdgeLengths []float32

	UniqueSources []int32
	UniqueTargets []int32
	MassStart     []float32
	MassEnd       []float32
}

// New flattens part. The partition is not modified.
func New(part *graph.Partition, opts Options) (*Network, error) {
	if opts.Padding < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPadding, opts.Padding)
	}

	nodes := slices.Clone(part.Nodes)
	if opts.Deterministic {
		sortNodes(nodes)
	}

	n := len(nodes)
	np := compute.RoundUp(n, opts.Padding)
	net := &Network{
		NumNodes:       n,
		NumNodesPadded: np,
		Nodes:          nodes,
		Index:          make(map[string]int, n),
		PosX:           make([]float32, np),
		PosY:           make([]float32, np),
		Mass:           make([]float32, np),
		EdgeOffsets:    make([]int32, n),
		EdgeCounts:     make([]int32, n),
	}
	for i, node := range nodes {
		net.Index[node.ID] = i
		net.PosX[i] = float32(node.X)
		net.PosY[i] = float32(node.Y)
		net.Mass[i] = opts.DefaultNodeMass
		if node.Mass > 0 {
			net.Mass[i] = float32(node.Mass)
		}
	}

	// Resolve endpoints and count both directions per node.
	type spring struct {
		src, dst      int32
		coeff, length float32
	}
	springs := make([]spring, 0, len(part.Edges))
	for _, e := range part.Edges {
		s, ok := net.Index[e.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, e.Source)
		}
		t, ok := net.Index[e.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, e.Target)
		}
		if s == t {
			continue
		}
		springs = append(springs, spring{
			src:    int32(s),
			dst:    int32(t),
			coeff:  coefficient(e, opts),
			length: restLength(e, opts),
		})
		net.EdgeCounts[s]++
		net.EdgeCounts[t]++
	}
	if opts.Deterministic {
		for i := range springs {
			if sp := &springs[i]; sp.src > sp.dst {
				sp.src, sp.dst = sp.dst, sp.src
			}
		}
		slices.SortStableFunc(springs, func(a, b spring) int {
			return cmp.Or(
				cmp.Compare(a.src, b.src),
				cmp.Compare(a.dst, b.dst),
				cmp.Compare(a.coeff, b.coeff),
				cmp.Compare(a.length, b.length))
		})
	}

	var off int32
	for i := range n {
		net.EdgeOffsets[i] = off
		off += net.EdgeCounts[i]
	}
	net.Edges = make([]int32, off)
	net.EdgeCoeffs = make([]float32, off)
	net.EdgeLengths = make([]float32, off)

	fill := make([]int32, n)
	copy(fill, net.EdgeOffsets)
	put := func(from, to int32, sp spring) {
		k := fill[from]
		net.Edges[k] = to
		net.EdgeCoeffs[k] = sp.coeff
		net.EdgeLengths[k] = sp.length
		fill[from]++
	}
	for _, sp := range springs {
		put(sp.src, sp.dst, sp)
		put(sp.dst, sp.src, sp)
	}

	if opts.Repulsion {
		pairs := make([][2]int32, len(springs))
		for i, sp := range springs {
			pairs[i] = [2]int32{sp.src, sp.dst}
		}
		net.buildPairs(pairs, opts.Padding)
	}
	return net, nil
}

// buildPairs keeps the first occurrence of every unordered pair.
func (net *Network) buildPairs(pairs [][2]int32, padding int) {
	seen := make(map[[2]int32]struct{}, len(pairs))
	for _, p := range pairs {
		key := p
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		net.UniqueSources = append(net.UniqueSources, p[0])
		net.UniqueTargets = append(net.UniqueTargets, p[1])
	}

	nu := len(net.UniqueSources)
	nup := compute.RoundUp(nu, padding)
	net.NumEdgesUnique = nu
	net.NumEdgesUniquePadded = nup
	net.UniqueSources = slices.Grow(net.UniqueSources, nup-nu)[:nup]
	net.UniqueTargets = slices.Grow(net.UniqueTargets, nup-nu)[:nup]
	net.MassStart = make([]float32, nup)
	net.MassEnd = make([]float32, nup)
	for i := range nu {
		net.MassStart[i] = net.Mass[net.UniqueSources[i]]
		net.MassEnd[i] = net.Mass[net.UniqueTargets[i]]
	}
}

// Problem returns the launch sizes of the network.
func (net *Network) Problem() compute.Problem {
	return compute.Problem{
		NumNodes:             net.NumNodes,
		NumNodesPadded:       net.NumNodesPadded,
		NumEdgesUnique:       net.NumEdgesUnique,
		NumEdgesUniquePadded: net.NumEdgesUniquePadded,
	}
}

// WriteBack copies positions to every node that is not locked and returns
// the number of nodes written.
func (net *Network) WriteBack() int {
	written := 0
	for i, node := range net.Nodes {
		if node.Locked {
			continue
		}
		node.X = float64(net.PosX[i])
		node.Y = float64(net.PosY[i])
		written++
	}
	return written
}

func coefficient(e *graph.Edge, opts Options) float32 {
	if e.Coefficient > 0 {
		return float32(e.Coefficient)
	}
	return opts.DefaultSpringCoefficient
}

func restLength(e *graph.Edge, opts Options) float32 {
	switch {
	case e.Length > 0:
		return float32(e.Length)
	case e.Weight > 0:
		return float32(float64(opts.DefaultSpringLength) / e.Weight)
	default:
		return opts.DefaultSpringLength
	}
}

// sortNodes orders nodes by ID under a numeric, locale-neutral collation so
// "n2" sorts before "n10". Collation ties are broken bytewise.
func sortNodes(nodes []*graph.Node) {
	col := collate.New(language.Und, collate.Numeric)
	slices.SortStableFunc(nodes, func(a, b *graph.Node) int {
		if c := col.CompareString(a.ID, b.ID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
