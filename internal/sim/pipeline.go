// Package sim runs the layout simulation on a compute device.
//
// A Pipeline holds the compiled kernels of one device and launches them with
// the geometry of the device's launch strategy. Buffers owns the device
// buffers of one partition run, and Stepper drives the Runge-Kutta or Euler
// time stepping over them.
//
// Pipelines are shared by concurrent partition runs; each run holds the
// pipeline through Exclusive for its whole duration.
package sim

import (
	"fmt"
	"sync"

	"github.com/gogpu/forcelayout/compute"
)

// Pipeline is the compiled kernel program of one device.
type Pipeline struct {
	mu sync.Mutex

	dev      compute.Device
	prog     compute.Program
	strategy compute.LaunchStrategy
	phys     compute.Physics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithStrategy overrides the launch strategy derived from the device type.
func WithStrategy(s compute.LaunchStrategy) PipelineOption {
	return func(p *Pipeline) { p.strategy = s }
}

// NewPipeline compiles every kernel on dev with the given physics.
func NewPipeline(dev compute.Device, phys compute.Physics, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{dev: dev, phys: phys}
	for _, opt := range opts {
		opt(p)
	}
	if p.strategy == nil {
		p.strategy = compute.StrategyFor(dev)
	}

	prog, err := dev.BuildProgram(compute.AllKernels(), phys)
	if err != nil {
		return nil, fmt.Errorf("sim: build program on %s: %w", dev.Name(), err)
	}
	p.prog = prog
	slogger().Info("sim: pipeline ready",
		"device", dev.Name(),
		"type", dev.Type(),
		"block", dev.BestBlockSize(),
		"strategy", fmt.Sprintf("%T", p.strategy))
	return p, nil
}

// Device returns the pipeline's device.
func (p *Pipeline) Device() compute.Device { return p.dev }

// Physics returns the constants the program was built with.
func (p *Pipeline) Physics() compute.Physics { return p.phys }

// Exclusive runs fn while holding the pipeline. Launches made by fn do not
// interleave with those of other callers.
func (p *Pipeline) Exclusive(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// Close releases the program. The device stays open.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prog.Close()
}

func (p *Pipeline) launch(k compute.KernelID, prob compute.Problem, args ...any) error {
	if err := p.prog.Launch(k, p.strategy.Geometry(k, prob), args...); err != nil {
		return fmt.Errorf("sim: launch %v: %w", k, err)
	}
	return nil
}

// Init zeroes the velocity buffer.
func (p *Pipeline) Init(b *Buffers, prob compute.Problem) error {
	if !b.Initialized() {
		return ErrBuffersNotInitialized
	}
	return p.launch(compute.KernelInit, prob, b.Velocity, int32(prob.NumNodes))
}

// Forces evaluates gravity, edge repulsion when requested, then springs and
// drag into the force buffer.
func (p *Pipeline) Forces(b *Buffers, prob compute.Problem, repulsion bool) error {
	n, np := int32(prob.NumNodes), int32(prob.NumNodesPadded)

	if err := p.launch(compute.KernelGravity, prob,
		b.PosX, b.PosY, b.Mass, b.Force, n, np); err != nil {
		return err
	}

	if repulsion {
		if !b.Repulsion() {
			return fmt.Errorf("%w: repulsion buffers", ErrBuffersNotInitialized)
		}
		if err := p.launch(compute.KernelPrepareEdgeRepulsion, prob,
			b.PosX, b.PosY, b.UniqueSources, b.UniqueTargets,
			b.StartX, b.StartY, b.TangentX, b.TangentY, b.CurrentLength,
			int32(prob.NumEdgesUnique)); err != nil {
			return err
		}
		if err := p.launch(compute.KernelEdgeRepulsion, prob,
			b.PosX, b.PosY, b.Mass,
			b.StartX, b.StartY, b.TangentX, b.TangentY, b.CurrentLength,
			b.MassStart, b.MassEnd, b.Force,
			n, int32(prob.NumEdgesUniquePadded)); err != nil {
			return err
		}
	}

	return p.launch(compute.KernelSpringDrag, prob,
		b.PosX, b.PosY, b.Edges, b.EdgeOffsets, b.EdgeCounts,
		b.EdgeCoeffs, b.EdgeLengths, b.Velocity, b.Force, n)
}

// rkKernels are the Runge-Kutta stages in order.
var rkKernels = [4]compute.KernelID{
	compute.KernelIntegrateRK0,
	compute.KernelIntegrateRK1,
	compute.KernelIntegrateRK2,
	compute.KernelIntegrateRK3,
}

// IntegrateRK launches Runge-Kutta stage 0..3. Stages 1..3 use unit stage
// weight.
func (p *Pipeline) IntegrateRK(stage int, b *Buffers, prob compute.Problem, timestep float32) error {
	if stage < 0 || stage >= len(rkKernels) {
		return fmt.Errorf("sim: invalid Runge-Kutta stage %d", stage)
	}
	n := int32(prob.NumNodes)
	if stage == 0 {
		return p.launch(compute.KernelIntegrateRK0, prob,
			b.PosX, b.PosY, b.Mass, b.NodeK, b.NodeL, b.Velocity, b.Force,
			timestep, n)
	}
	return p.launch(rkKernels[stage], prob,
		b.PosX, b.PosY, b.Mass, b.NodeK, b.NodeL, b.Velocity, b.Force,
		float32(1), timestep, n)
}

// IntegrateEuler launches one explicit Euler step.
func (p *Pipeline) IntegrateEuler(b *Buffers, prob compute.Problem, timestep float32) error {
	return p.launch(compute.KernelIntegrateEuler, prob,
		b.PosX, b.PosY, b.Mass, b.Velocity, b.Force, timestep, int32(prob.NumNodes))
}

// Finish waits for every launch to complete.
func (p *Pipeline) Finish() error {
	if err := p.prog.Finish(); err != nil {
		return fmt.Errorf("sim: finish: %w", err)
	}
	return nil
}
