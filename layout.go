package forcelayout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/graph"
	"github.com/gogpu/forcelayout/internal/flatten"
	"github.com/gogpu/forcelayout/internal/sim"
)

// PartitionResult describes the layout of one partition.
type PartitionResult struct {
	Index int
	Nodes int

	// Springs is the number of edges laid out, self-loops excluded.
	Springs int

	Timesteps          int
	RepulsiveTimesteps int

	// Cancelled reports that the context stopped the simulation early.
	// The positions reached so far are written back.
	Cancelled bool

	Duration time.Duration
}

// Result describes a Run.
type Result struct {
	Device     string
	Partitions []PartitionResult

	// Cancelled is true when any partition was cancelled.
	Cancelled bool
}

// Layout lays out graphs on one compute device. The kernels are compiled
// once, in New, and shared by every Run.
type Layout struct {
	cfg     Config
	monitor Monitor

	dev     compute.Device
	ownsDev bool
	pipe    *sim.Pipeline
	closed  atomic.Bool
}

// New compiles the layout kernels on dev. A nil dev opens
// compute.DefaultDevice, which Close then releases.
func New(dev compute.Device, opts ...Option) (*Layout, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	owns := false
	if dev == nil {
		d, err := compute.DefaultDevice()
		if err != nil {
			return nil, err
		}
		dev, owns = d, true
	}

	var pipeOpts []sim.PipelineOption
	if o.strategy != nil {
		pipeOpts = append(pipeOpts, sim.WithStrategy(o.strategy))
	}
	pipe, err := sim.NewPipeline(dev, o.cfg.Physics, pipeOpts...)
	if err != nil {
		if owns {
			_ = dev.Close()
		}
		return nil, err
	}

	slogger().Info("forcelayout: layout ready", "device", dev.Name())
	return &Layout{
		cfg:     o.cfg,
		monitor: o.monitor,
		dev:     dev,
		ownsDev: owns,
		pipe:    pipe,
	}, nil
}

// Config returns the layout configuration.
func (l *Layout) Config() Config { return l.cfg }

// Device returns the compute device.
func (l *Layout) Device() compute.Device { return l.dev }

// Close releases the compiled kernels, and the device when New opened it.
// Close must not be called while Run is in progress.
func (l *Layout) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.pipe.Close()
	if l.ownsDev {
		err = errors.Join(err, l.dev.Close())
	}
	return err
}

// Run lays out every partition of g concurrently, writes the positions back
// to the unlocked nodes and, unless SinglePartition is set, packs the
// partitions side by side.
//
// Failed partitions keep their positions; their errors are joined. A
// cancelled ctx is not an error, see Result.Cancelled.
func (l *Layout) Run(ctx context.Context, g *graph.Graph) (Result, error) {
	res := Result{Device: l.dev.Name()}
	if l.closed.Load() {
		return res, ErrClosed
	}

	parts := graph.Partitions(g, l.cfg.SinglePartition)
	res.Partitions = make([]PartitionResult, len(parts))
	errs := make([]error, len(parts))

	var wg sync.WaitGroup
	for i, p := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Partitions[i], errs[i] = l.LayoutPartition(ctx, p)
		}()
	}
	wg.Wait()

	done := make([]*graph.Partition, 0, len(parts))
	for i, p := range parts {
		if errs[i] == nil {
			done = append(done, p)
		}
		res.Cancelled = res.Cancelled || res.Partitions[i].Cancelled
	}
	if !l.cfg.SinglePartition {
		graph.Arrange(done, l.cfg.spacing())
	}

	slogger().Debug("forcelayout: run done",
		"partitions", len(parts),
		"failed", len(parts)-len(done),
		"cancelled", res.Cancelled)
	return res, errors.Join(errs...)
}

// LayoutPartition lays out one partition and writes the positions back to
// its unlocked nodes.
//
// The partition's edges are weighted when Config.EdgeWeight names an
// attribute, then the partition is flattened, seeded (see
// Config.FromScratch) and simulated while holding the compiled kernels. Device buffers are released on every path.
func (l *Layout) LayoutPartition(ctx context.Context, p *graph.Partition) (PartitionResult, error) {
	res := PartitionResult{Index: p.Index, Nodes: len(p.Nodes)}
	if l.closed.Load() {
		return res, ErrClosed
	}
	if len(p.Nodes) == 0 {
		return res, nil
	}
	start := time.Now()

	// Weights already on the edges stand unless an attribute is configured.
	if l.cfg.EdgeWeight.Enabled() {
		l.cfg.EdgeWeight.Apply(p.Edges)
	}

	net, err := flatten.New(p, l.cfg.flattenOptions())
	if err != nil {
		return res, fmt.Errorf("forcelayout: partition %d: %w", p.Index, err)
	}
	res.Springs = len(net.Edges) / 2
	if l.cfg.FromScratch {
		seed(net, l.cfg.Seed)
	}

	sched := sim.Schedule{
		Iterations:          l.cfg.NumIterations,
		RepulsiveIterations: l.cfg.NumIterationsEdgeRepulsive,
		Euler:               l.cfg.Integrator == IntegratorEuler,
	}
	var progress func(sim.Progress)
	if m := l.monitor; m != nil {
		progress = func(sp sim.Progress) {
			m.Progress(Progress{Partition: p.Index, Phase: sp.Phase, Iteration: sp.Iteration, Total: sp.Total})
		}
	}

	var stats sim.Stats
	err = l.pipe.Exclusive(func() error {
		bufs := sim.NewBuffers(l.dev)
		if err := bufs.Initialize(net, sched.RepulsiveIterations > 0); err != nil {
			return err
		}
		defer func() {
			if ferr := bufs.Free(); ferr != nil {
				slogger().Warn("forcelayout: release buffers", "partition", p.Index, "err", ferr)
			}
		}()

		var err error
		stats, err = sim.NewStepper(l.pipe, bufs, net.Problem(), sched, progress).Run(ctx)
		if err != nil {
			return err
		}
		return bufs.Positions(net)
	})
	if err != nil {
		return res, fmt.Errorf("forcelayout: partition %d: %w", p.Index, err)
	}

	net.WriteBack()
	res.Timesteps = stats.Timesteps
	res.RepulsiveTimesteps = stats.RepulsiveTimesteps
	res.Cancelled = stats.Cancelled
	res.Duration = time.Since(start)

	slogger().Debug("forcelayout: partition done",
		"partition", p.Index,
		"nodes", res.Nodes,
		"springs", res.Springs,
		"timesteps", res.Timesteps,
		"repulsive_timesteps", res.RepulsiveTimesteps,
		"cancelled", res.Cancelled,
		"duration", res.Duration)
	return res, nil
}

// seed places every unlocked node of net at a pseudo-random point of
// [-1, 1]², drawing in node index order. Locked nodes still consume their
// draws so a node's seed position does not depend on which other nodes are
// locked.
func seed(net *flatten.Network, s uint64) {
	r := rand.New(rand.NewPCG(s, s))
	for i, n := range net.Nodes {
		x := (r.Float32() - 0.5) * 2
		y := (r.Float32() - 0.5) * 2
		if !n.Locked {
			net.PosX[i], net.PosY[i] = x, y
		}
	}
}
