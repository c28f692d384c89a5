package forcelayout

import "github.com/gogpu/forcelayout/internal/sim"

// Phase identifies a simulation phase in progress reports.
type Phase = sim.Phase

// Simulation phases.
const (
	PhaseCoarse    = sim.PhaseCoarse
	PhaseRepulsion = sim.PhaseRepulsion
)

// Progress reports one completed timestep of a partition.
type Progress struct {
	// Partition is the index of the partition in Result.Partitions.
	Partition int

	Phase Phase

	// Iteration counts completed timesteps of Phase, starting at 1.
	Iteration int
	Total     int
}

// Monitor receives progress reports. Partitions run concurrently, so
// Progress may be called from several goroutines at once.
type Monitor interface {
	Progress(p Progress)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(Progress)

// Progress implements Monitor.
func (f MonitorFunc) Progress(p Progress) { f(p) }
