package forcelayout

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/graph"
	"github.com/gogpu/forcelayout/internal/flatten"
)

// Integrator selects the time integration scheme.
type Integrator string

const (
	// IntegratorRK4 evaluates forces four times per timestep.
	IntegratorRK4 Integrator = "rk4"

	// IntegratorEuler evaluates forces once per timestep.
	IntegratorEuler Integrator = "euler"
)

// Config holds the layout parameters. The YAML keys match the CLI's config
// file.
type Config struct {
	// FromScratch seeds every node at a random position in [-1, 1]²
	// instead of its current coordinates.
	FromScratch bool `yaml:"fromScratch"`

	// Deterministic orders nodes by collated ID before flattening, so
	// equal graphs give bit-identical layouts regardless of insertion
	// order.
	Deterministic bool `yaml:"isDeterministic"`

	DefaultNodeMass          float64 `yaml:"defaultNodeMass"`
	DefaultSpringCoefficient float64 `yaml:"defaultSpringCoefficient"`
	DefaultSpringLength      float64 `yaml:"defaultSpringLength"`

	// NumIterations is the number of coarse-phase timesteps.
	NumIterations int `yaml:"numIterations"`

	// NumIterationsEdgeRepulsive is the number of edge-repulsion timesteps
	// after the coarse phase. Zero disables repulsion entirely.
	NumIterationsEdgeRepulsive int `yaml:"numIterationsEdgeRepulsive"`

	// SinglePartition lays the whole graph out as one partition and skips
	// packing.
	SinglePartition bool `yaml:"singlePartition"`

	// Seed seeds the per-partition random source used by FromScratch.
	Seed uint64 `yaml:"seed"`

	Integrator Integrator `yaml:"integrator"`

	// Padding aligns node and pair arrays.
	Padding int `yaml:"padding"`

	// PartitionSpacing separates packed partitions. Zero uses twice the
	// default spring length.
	PartitionSpacing float64 `yaml:"partitionSpacing"`

	EdgeWeight graph.EdgeWeighter `yaml:"edgeWeight"`
	Physics    compute.Physics    `yaml:"physics"`
}

// DefaultConfig returns the default layout parameters.
func DefaultConfig() Config {
	return Config{
		DefaultNodeMass:          3,
		DefaultSpringCoefficient: 1e-4,
		DefaultSpringLength:      50,
		NumIterations:            100,
		Seed:                     123,
		Integrator:               IntegratorRK4,
		Padding:                  flatten.DefaultPadding,
		Physics:                  compute.DefaultPhysics(),
	}
}

// Validate reports every invalid field, each wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !positive(c.DefaultNodeMass) {
		bad("defaultNodeMass %v must be positive", c.DefaultNodeMass)
	}
	if !positive(c.DefaultSpringCoefficient) {
		bad("defaultSpringCoefficient %v must be positive", c.DefaultSpringCoefficient)
	}
	if !positive(c.DefaultSpringLength) {
		bad("defaultSpringLength %v must be positive", c.DefaultSpringLength)
	}
	if c.NumIterations < 0 {
		bad("numIterations %d must not be negative", c.NumIterations)
	}
	if c.NumIterationsEdgeRepulsive < 0 {
		bad("numIterationsEdgeRepulsive %d must not be negative", c.NumIterationsEdgeRepulsive)
	}
	if c.Padding < 1 {
		bad("padding %d must be at least 1", c.Padding)
	}
	if c.PartitionSpacing < 0 || math.IsNaN(c.PartitionSpacing) {
		bad("partitionSpacing %v must not be negative", c.PartitionSpacing)
	}
	switch c.Integrator {
	case IntegratorRK4, IntegratorEuler:
	default:
		bad("unknown integrator %q", c.Integrator)
	}
	if err := c.Physics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	return errors.Join(errs...)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// spacing returns the gap between packed partitions.
func (c Config) spacing() float64 {
	if c.PartitionSpacing > 0 {
		return c.PartitionSpacing
	}
	return 2 * c.DefaultSpringLength
}

func (c Config) flattenOptions() flatten.Options {
	return flatten.Options{
		Padding:                  c.Padding,
		Repulsion:                c.NumIterationsEdgeRepulsive > 0,
		Deterministic:            c.Deterministic,
		DefaultNodeMass:          float32(c.DefaultNodeMass),
		DefaultSpringCoefficient: float32(c.DefaultSpringCoefficient),
		DefaultSpringLength:      float32(c.DefaultSpringLength),
	}
}
