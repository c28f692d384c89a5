package compute

import (
	"errors"
	"fmt"
)

// Physics holds the constants compiled into a program.
type Physics struct {
	// Gravity scales the all-pairs force m_i*m_j/d^2. Negative values repel.
	Gravity float32 `yaml:"gravity"`

	// Drag is the velocity-proportional damping coefficient.
	Drag float32 `yaml:"drag"`

	// EdgeRepulsion scales node-to-edge repulsion in the repulsion phase.
	EdgeRepulsion float32 `yaml:"edgeRepulsion"`

	// Softening is added to squared distances so coincident nodes stay
	// finite.
	Softening float32 `yaml:"softening"`

	// TimeScale converts the stepper's timestep into integration time.
	TimeScale float32 `yaml:"timeScale"`

	// SpeedLimit bounds the velocity change of one step.
	SpeedLimit float32 `yaml:"speedLimit"`

	// EdgeMargin is the fraction of an edge's length near each endpoint
	// where the edge does not repel nodes.
	EdgeMargin float32 `yaml:"edgeMargin"`
}

// DefaultPhysics returns constants tuned for the default spring length of 50
// and node mass of 3.
func DefaultPhysics() Physics {
	return Physics{
		Gravity:       -1,
		Drag:          0.01,
		EdgeRepulsion: 1,
		Softening:     1e-4,
		TimeScale:     1,
		SpeedLimit:    1,
		EdgeMargin:    0.01,
	}
}

// Validate checks that the constants keep the kernels finite.
func (p Physics) Validate() error {
	var errs []error
	if p.Softening <= 0 {
		errs = append(errs, fmt.Errorf("softening %v must be positive", p.Softening))
	}
	if p.TimeScale <= 0 {
		errs = append(errs, fmt.Errorf("timeScale %v must be positive", p.TimeScale))
	}
	if p.SpeedLimit <= 0 {
		errs = append(errs, fmt.Errorf("speedLimit %v must be positive", p.SpeedLimit))
	}
	if p.Drag < 0 {
		errs = append(errs, fmt.Errorf("drag %v must not be negative", p.Drag))
	}
	if p.EdgeMargin < 0 || p.EdgeMargin >= 0.5 {
		errs = append(errs, fmt.Errorf("edgeMargin %v must be in [0, 0.5)", p.EdgeMargin))
	}
	if len(errs) > 0 {
		return fmt.Errorf("compute: invalid physics: %w", errors.Join(errs...))
	}
	return nil
}
