package sim

import (
	"context"
	"fmt"

	"github.com/gogpu/forcelayout/compute"
)

// Timestep schedule.
const (
	// CoarseInitialTimestep starts the decaying timestep of the coarse phase.
	CoarseInitialTimestep = 1000

	// CoarseTimestepOffset is added to the decayed timestep before use.
	CoarseTimestepOffset = 50

	// RepulsionInitialTimestep starts the repulsion phase's decaying
	// timestep, which is reported but not used for stepping.
	RepulsionInitialTimestep = 10

	// RepulsionStep is the step of every repulsion-phase iteration.
	RepulsionStep = 0.25
)

// Phase identifies a simulation phase.
type Phase int

const (
	// PhaseCoarse runs gravity and springs with a decaying timestep.
	PhaseCoarse Phase = iota

	// PhaseRepulsion adds edge repulsion at a constant step.
	PhaseRepulsion
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCoarse:
		return "coarse"
	case PhaseRepulsion:
		return "repulsion"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Progress reports a completed iteration.
type Progress struct {
	Phase Phase

	// Iteration counts completed iterations of Phase, starting at 1.
	Iteration int
	Total     int
}

// Schedule is the iteration plan of one run.
type Schedule struct {
	// Iterations is the number of coarse-phase timesteps.
	Iterations int

	// RepulsiveIterations is the number of repulsion-phase timesteps. Zero
	// skips the phase.
	RepulsiveIterations int

	// Euler replaces the four Runge-Kutta stages by one Euler step.
	Euler bool
}

// Stats summarizes a run.
type Stats struct {
	Timesteps          int
	RepulsiveTimesteps int

	// Cancelled reports that the context ended the run early. Positions
	// reflect the completed timesteps.
	Cancelled bool
}

// Stepper advances one partition's simulation.
type Stepper struct {
	pipe     *Pipeline
	bufs     *Buffers
	prob     compute.Problem
	sched    Schedule
	progress func(Progress)
}

// NewStepper returns a stepper over initialized buffers. progress may be
// nil; it is called after every iteration from the calling goroutine.
func NewStepper(pipe *Pipeline, bufs *Buffers, prob compute.Problem, sched Schedule, progress func(Progress)) *Stepper {
	return &Stepper{pipe: pipe, bufs: bufs, prob: prob, sched: sched, progress: progress}
}

// Step advances the simulation by one timestep.
func (s *Stepper) Step(timestep float32, repulsion bool) error {
	if s.sched.Euler {
		if err := s.pipe.Forces(s.bufs, s.prob, repulsion); err != nil {
			return err
		}
		if err := s.pipe.IntegrateEuler(s.bufs, s.prob, timestep); err != nil {
			return err
		}
		return s.pipe.Finish()
	}

	for stage := range rkKernels {
		if err := s.pipe.Forces(s.bufs, s.prob, repulsion); err != nil {
			return err
		}
		if err := s.pipe.IntegrateRK(stage, s.bufs, s.prob, timestep); err != nil {
			return err
		}
	}
	return s.pipe.Finish()
}

// Run zeroes velocity and runs the coarse phase, then the repulsion phase
// when scheduled. Cancellation of ctx stops the run between timesteps and
// is reported in Stats, not as an error.
func (s *Stepper) Run(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.pipe.Init(s.bufs, s.prob); err != nil {
		return st, err
	}

	n := s.sched.Iterations
	timestep := float32(CoarseInitialTimestep)
	for i := range n {
		if ctx.Err() != nil {
			st.Cancelled = true
			break
		}
		timestep *= 1 - float32(i)/float32(n)
		if err := s.Step(timestep+CoarseTimestepOffset, false); err != nil {
			return st, fmt.Errorf("sim: coarse timestep %d: %w", i, err)
		}
		st.Timesteps++
		s.report(PhaseCoarse, i+1, n)
	}
	slogger().Debug("sim: coarse phase done", "timesteps", st.Timesteps, "cancelled", st.Cancelled)

	nr := s.sched.RepulsiveIterations
	if st.Cancelled || nr <= 0 {
		return st, nil
	}

	if err := s.pipe.Init(s.bufs, s.prob); err != nil {
		return st, err
	}
	timestep = RepulsionInitialTimestep
	for i := range nr {
		if ctx.Err() != nil {
			st.Cancelled = true
			break
		}
		// The decayed timestep follows the coarse schedule and only feeds
		// the log; every repulsion step is RepulsionStep.
		if n > 0 {
			timestep *= 1 - float32(i)/float32(n)
		}
		if err := s.Step(RepulsionStep, true); err != nil {
			return st, fmt.Errorf("sim: repulsion timestep %d: %w", i, err)
		}
		st.RepulsiveTimesteps++
		slogger().Debug("sim: repulsion timestep", "iteration", i, "step", RepulsionStep, "timestep", timestep)
		s.report(PhaseRepulsion, i+1, nr)
	}
	slogger().Debug("sim: repulsion phase done", "timesteps", st.RepulsiveTimesteps, "cancelled", st.Cancelled)
	return st, nil
}

func (s *Stepper) report(phase Phase, iter, total int) {
	if s.progress != nil {
		s.progress(Progress{Phase: phase, Iteration: iter, Total: total})
	}
}
