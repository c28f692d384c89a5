package sim

import (
	"errors"
	"fmt"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/internal/flatten"
)

// Buffer manager errors.
var (
	// ErrBuffersInitialized is returned by Initialize when the buffers are
	// already allocated.
	ErrBuffersInitialized = errors.New("sim: buffers already initialized")

	// ErrBuffersNotInitialized is returned when buffers are used before
	// Initialize.
	ErrBuffersNotInitialized = errors.New("sim: buffers not initialized")
)

// Buffers holds the device buffers of one partition run.
//
// Repulsion buffers are nil unless Initialize was called with repulsion
// enabled. Buffers are not safe for concurrent use.
type Buffers struct {
	dev compute.Device

	PosX compute.Buffer
	PosY compute.Buffer
	Mass compute.Buffer

	Edges       compute.Buffer
	EdgeOffsets compute.Buffer
	EdgeCounts  compute.Buffer
	EdgeCoeffs  compute.Buffer
	EdgeLengths compute.Buffer

	UniqueSources compute.Buffer
	UniqueTargets compute.Buffer
	StartX        compute.Buffer
	StartY        compute.Buffer
	TangentX      compute.Buffer
	TangentY      compute.Buffer
	CurrentLength compute.Buffer
	MassStart     compute.Buffer
	MassEnd       compute.Buffer

	Force    compute.Buffer
	Velocity compute.Buffer
	NodeK    compute.Buffer
	NodeL    compute.Buffer

	// allocated lists every live buffer in allocation order; Free walks it
	// so each buffer is released exactly once.
	allocated []compute.Buffer
	repulsion bool
	ready     bool
}

// NewBuffers returns an uninitialized buffer set on dev.
func NewBuffers(dev compute.Device) *Buffers {
	return &Buffers{dev: dev}
}

// bufSpec describes one buffer: uploaded from data when data is non-nil,
// zero-filled with n elements of kind otherwise.
type bufSpec struct {
	target *compute.Buffer
	label  string
	data   any
	kind   compute.ElemKind
	n      int
}

// Initialize allocates every buffer the network needs and uploads its
// arrays. Repulsion adds the pair buffers. On failure every buffer created
// so far is freed before the error returns.
func (b *Buffers) Initialize(net *flatten.Network, repulsion bool) error {
	if b.ready {
		return ErrBuffersInitialized
	}

	specs := []bufSpec{
		{&b.PosX, "posX", net.PosX, compute.Float32, 0},
		{&b.PosY, "posY", net.PosY, compute.Float32, 0},
		{&b.Mass, "mass", net.Mass, compute.Float32, 0},
		{&b.Edges, "edges", net.Edges, compute.Int32, 0},
		{&b.EdgeCoeffs, "edgeCoeffs", net.EdgeCoeffs, compute.Float32, 0},
		{&b.EdgeLengths, "edgeLengths", net.EdgeLengths, compute.Float32, 0},
		{&b.EdgeOffsets, "edgeOffsets", net.EdgeOffsets, compute.Int32, 0},
		{&b.EdgeCounts, "edgeCounts", net.EdgeCounts, compute.Int32, 0},
	}
	if repulsion {
		nup := net.NumEdgesUniquePadded
		specs = append(specs,
			bufSpec{&b.UniqueSources, "uniqueSources", net.UniqueSources, compute.Int32, 0},
			bufSpec{&b.UniqueTargets, "uniqueTargets", net.UniqueTargets, compute.Int32, 0},
			bufSpec{&b.StartX, "startX", nil, compute.Float32, nup},
			bufSpec{&b.StartY, "startY", nil, compute.Float32, nup},
			bufSpec{&b.TangentX, "tangentX", nil, compute.Float32, nup},
			bufSpec{&b.TangentY, "tangentY", nil, compute.Float32, nup},
			bufSpec{&b.CurrentLength, "currentLength", nil, compute.Float32, nup},
			bufSpec{&b.MassStart, "massStart", net.MassStart, compute.Float32, 0},
			bufSpec{&b.MassEnd, "massEnd", net.MassEnd, compute.Float32, 0},
		)
	}
	specs = append(specs,
		bufSpec{&b.Force, "force", nil, compute.Float32, 2 * net.NumNodesPadded},
		bufSpec{&b.Velocity, "velocity", nil, compute.Float32, 2 * net.NumNodes},
		bufSpec{&b.NodeK, "nodeK", nil, compute.Float32, 8 * net.NumNodes},
		bufSpec{&b.NodeL, "nodeL", nil, compute.Float32, 6 * net.NumNodes},
	)

	for _, s := range specs {
		var (
			buf compute.Buffer
			err error
		)
		if s.data != nil {
			buf, err = b.dev.NewBuffer(s.label, s.data)
		} else {
			buf, err = b.dev.NewZeroBuffer(s.label, s.kind, s.n)
		}
		if err != nil {
			if ferr := b.release(); ferr != nil {
				slogger().Warn("sim: release after failed allocation", "err", ferr)
			}
			return fmt.Errorf("sim: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
		b.allocated = append(b.allocated, buf)
	}

	b.repulsion = repulsion
	b.ready = true
	slogger().Debug("sim: buffers allocated",
		"buffers", len(b.allocated),
		"nodes", net.NumNodes,
		"nodes_padded", net.NumNodesPadded,
		"edges", len(net.Edges),
		"pairs_padded", net.NumEdgesUniquePadded,
		"repulsion", repulsion)
	return nil
}

// Initialized reports whether the buffers are allocated.
func (b *Buffers) Initialized() bool { return b.ready }

// Repulsion reports whether the repulsion buffers are allocated.
func (b *Buffers) Repulsion() bool { return b.ready && b.repulsion }

// Positions downloads the position buffers into net.PosX and net.PosY.
func (b *Buffers) Positions(net *flatten.Network) error {
	if !b.ready {
		return ErrBuffersNotInitialized
	}
	if err := b.PosX.Download(net.PosX); err != nil {
		return fmt.Errorf("sim: download posX: %w", err)
	}
	if err := b.PosY.Download(net.PosY); err != nil {
		return fmt.Errorf("sim: download posY: %w", err)
	}
	return nil
}

// Free releases every allocated buffer. It is a no-op when the buffers are
// not initialized, so it may be deferred and called again.
func (b *Buffers) Free() error {
	if !b.ready {
		return nil
	}
	return b.release()
}

func (b *Buffers) release() error {
	var errs []error
	for _, buf := range b.allocated {
		if err := buf.Free(); err != nil {
			errs = append(errs, fmt.Errorf("sim: free %s: %w", buf.Label(), err))
		}
	}
	*b = Buffers{dev: b.dev}
	return errors.Join(errs...)
}
