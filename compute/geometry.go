package compute

import "fmt"

const (
	// SpringLanes is the number of work-items that share one node's edge
	// list in the GPU spring kernel.
	SpringLanes = 16

	// MaxRepulsionWorkItems caps the global size of PrepareEdgeRepulsion.
	// The kernel loops over the remaining pairs.
	MaxRepulsionWorkItems = 65536

	// float32Bytes is the size of one float32 in local scratch.
	float32Bytes = 4
)

// Launch is the geometry of one kernel launch.
type Launch struct {
	// Global is the number of work-items per dimension.
	Global []int

	// Local is the work-group size per dimension. Nil lets the device
	// choose.
	Local []int

	// Scratch lists local (work-group shared) scratch buffers in bytes.
	// Empty for launch shapes that do not tile.
	Scratch []int
}

// Groups returns the number of work-groups per dimension.
func (l Launch) Groups() ([]int, error) {
	if len(l.Global) == 0 || len(l.Global) > 3 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrGeometry, len(l.Global))
	}
	if l.Local != nil && len(l.Local) != len(l.Global) {
		return nil, fmt.Errorf("%w: global %v, local %v", ErrGeometry, l.Global, l.Local)
	}
	groups := make([]int, len(l.Global))
	for d, g := range l.Global {
		local := 1
		if l.Local != nil {
			local = l.Local[d]
		}
		if g < 0 || local <= 0 || g%local != 0 {
			return nil, fmt.Errorf("%w: global %v not a multiple of local %v", ErrGeometry, l.Global, l.Local)
		}
		groups[d] = g / local
	}
	return groups, nil
}

// Problem holds the sizes that determine launch geometry.
type Problem struct {
	NumNodes             int
	NumNodesPadded       int
	NumEdgesUnique       int
	NumEdgesUniquePadded int
}

// LaunchStrategy computes the launch geometry of every kernel for one class
// of device. A strategy is chosen once per device.
type LaunchStrategy interface {
	Geometry(k KernelID, p Problem) Launch
}

// StrategyFor returns the launch strategy matching the device type.
func StrategyFor(d Device) LaunchStrategy {
	if d.Type() == DeviceTypeGPU {
		return NewGPUStrategy(d.BestBlockSize())
	}
	return NewCPUStrategy(d.BestBlockSize())
}

// RoundUp returns the smallest multiple of m that is >= n.
func RoundUp(n, m int) int {
	if m <= 1 {
		return n
	}
	return (n + m - 1) / m * m
}

// GPUStrategy tiles gravity and repulsion through local scratch and runs
// the spring kernel as a 2-D grid of SpringLanes lanes per node.
type GPUStrategy struct {
	Block int
}

// NewGPUStrategy returns a GPU strategy. The block size is rounded up to a
// multiple of SpringLanes.
func NewGPUStrategy(block int) GPUStrategy {
	return GPUStrategy{Block: RoundUp(max(block, SpringLanes), SpringLanes)}
}

// Geometry implements LaunchStrategy.
func (s GPUStrategy) Geometry(k KernelID, p Problem) Launch {
	b := s.Block
	nodes := Launch{Global: []int{RoundUp(p.NumNodes, b)}, Local: []int{b}}

	switch k {
	case KernelGravity:
		nodes.Scratch = repeat(b*float32Bytes, 3)
		return nodes
	case KernelEdgeRepulsion:
		nodes.Scratch = repeat(b*float32Bytes, 7)
		return nodes
	case KernelPrepareEdgeRepulsion:
		return repulsionPairs(p, b)
	case KernelSpringDrag:
		rows := b / SpringLanes
		return Launch{
			Global:  []int{SpringLanes, RoundUp(p.NumNodes, rows)},
			Local:   []int{SpringLanes, rows},
			Scratch: []int{SpringLanes * rows * 2 * float32Bytes},
		}
	default:
		return nodes
	}
}

// CPUStrategy runs one work-item per node without local scratch. Gravity
// processes two nodes per work-item.
type CPUStrategy struct {
	Block int
}

// NewCPUStrategy returns a CPU strategy.
func NewCPUStrategy(block int) CPUStrategy {
	return CPUStrategy{Block: max(block, 1)}
}

// Geometry implements LaunchStrategy.
func (s CPUStrategy) Geometry(k KernelID, p Problem) Launch {
	b := s.Block
	switch k {
	case KernelInit:
		return Launch{Global: []int{p.NumNodes}}
	case KernelGravity, KernelEdgeRepulsion:
		return Launch{Global: []int{(p.NumNodesPadded + 1) / 2}}
	case KernelPrepareEdgeRepulsion:
		return repulsionPairs(p, b)
	case KernelSpringDrag:
		return Launch{Global: []int{p.NumNodes}, Local: []int{1}}
	default:
		return Launch{Global: []int{RoundUp(p.NumNodes, b)}, Local: []int{b}}
	}
}

// repulsionPairs is the pair-parallel geometry shared by both strategies.
func repulsionPairs(p Problem, b int) Launch {
	g := min(MaxRepulsionWorkItems, RoundUp(p.NumEdgesUnique, b))
	if g%b != 0 {
		// b does not divide the cap.
		g = MaxRepulsionWorkItems / b * b
	}
	return Launch{Global: []int{g}, Local: []int{b}}
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
