package forcelayout

import "github.com/gogpu/forcelayout/compute"

// Option configures a Layout during creation.
//
// Example:
//
//	l, err := forcelayout.New(dev,
//	    forcelayout.WithIterations(200),
//	    forcelayout.WithEdgeRepulsion(50),
//	    forcelayout.WithDeterministic(true))
type Option func(*options)

type options struct {
	cfg      Config
	monitor  Monitor
	strategy compute.LaunchStrategy
}

func defaultOptions() options {
	return options{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Options applied after it
// override individual fields.
func WithConfig(c Config) Option {
	return func(o *options) {
		o.cfg = c
	}
}

// WithIterations sets the number of coarse-phase timesteps.
func WithIterations(n int) Option {
	return func(o *options) {
		o.cfg.NumIterations = n
	}
}

// WithEdgeRepulsion sets the number of edge-repulsion timesteps run after
// the coarse phase. Zero disables edge repulsion.
func WithEdgeRepulsion(n int) Option {
	return func(o *options) {
		o.cfg.NumIterationsEdgeRepulsive = n
	}
}

// WithDeterministic enables collated node ordering.
func WithDeterministic(on bool) Option {
	return func(o *options) {
		o.cfg.Deterministic = on
	}
}

// WithFromScratch discards current positions and seeds nodes randomly.
func WithFromScratch(on bool) Option {
	return func(o *options) {
		o.cfg.FromScratch = on
	}
}

// WithSinglePartition lays out the whole graph as one partition.
func WithSinglePartition(on bool) Option {
	return func(o *options) {
		o.cfg.SinglePartition = on
	}
}

// WithPhysics sets the force and integration constants compiled into the
// kernels.
func WithPhysics(p compute.Physics) Option {
	return func(o *options) {
		o.cfg.Physics = p
	}
}

// WithMonitor receives progress reports and may cancel through the context
// passed to Run.
func WithMonitor(m Monitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

// WithStrategy overrides the launch geometry chosen from the device type.
// Any strategy computes the same forces; it exists for tests and tuning.
func WithStrategy(s compute.LaunchStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}
