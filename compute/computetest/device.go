// Package computetest provides a recording compute.Device for tests.
//
// The device stores buffer contents on the host but never executes
// kernels: Launch validates the arguments and geometry, then appends a Call.
// Tests read the call log to check kernel order and launch shapes, and the
// buffer counters to check that every allocation is freed exactly once.
package computetest

import (
	"fmt"
	"sync"

	"github.com/gogpu/forcelayout/compute"
)

// Call is one recorded kernel launch.
type Call struct {
	Kernel compute.KernelID
	Launch compute.Launch
	Args   []any
}

// Device records launches and tracks buffers.
type Device struct {
	// FailAllocAt makes the n-th allocation (1-based) fail with
	// compute.ErrAllocation. Zero disables the failure.
	FailAllocAt int

	// FailBuild is returned, wrapped in compute.ErrCompile, by BuildProgram.
	FailBuild error

	typ   compute.DeviceType
	block int

	mu       sync.Mutex
	allocs   int
	frees    int
	live     map[*Buffer]struct{}
	calls    []Call
	programs int
}

var _ compute.Device = (*Device)(nil)

// NewDevice returns a recording device of the given type and block size.
func NewDevice(typ compute.DeviceType, block int) *Device {
	return &Device{typ: typ, block: block, live: make(map[*Buffer]struct{})}
}

func (d *Device) Name() string { return fmt.Sprintf("recorder (%s)", d.typ) }

func (d *Device) Type() compute.DeviceType { return d.typ }

func (d *Device) BestBlockSize() int { return d.block }

func (d *Device) Close() error { return nil }

// NewBuffer implements compute.Device.
func (d *Device) NewBuffer(label string, data any) (compute.Buffer, error) {
	kind, n, err := compute.DataKind(data)
	if err != nil {
		return nil, err
	}
	b, err := d.alloc(label, kind, n)
	if err != nil {
		return nil, err
	}
	if err := b.Upload(data); err != nil {
		return nil, err
	}
	return b, nil
}

// NewZeroBuffer implements compute.Device.
func (d *Device) NewZeroBuffer(label string, kind compute.ElemKind, n int) (compute.Buffer, error) {
	return d.alloc(label, kind, n)
}

func (d *Device) alloc(label string, kind compute.ElemKind, n int) (*Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocs++
	if d.FailAllocAt > 0 && d.allocs == d.FailAllocAt {
		return nil, fmt.Errorf("%w: %s: injected failure", compute.ErrAllocation, label)
	}
	b := &Buffer{dev: d, label: label, kind: kind}
	if kind == compute.Int32 {
		b.i32 = make([]int32, n)
	} else {
		b.f32 = make([]float32, n)
	}
	d.live[b] = struct{}{}
	return b, nil
}

// BuildProgram implements compute.Device.
func (d *Device) BuildProgram(kernels []compute.KernelID, phys compute.Physics) (compute.Program, error) {
	if d.FailBuild != nil {
		return nil, fmt.Errorf("%w: %w", compute.ErrCompile, d.FailBuild)
	}
	for _, k := range kernels {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown kernel %v", compute.ErrCompile, k)
		}
	}
	d.mu.Lock()
	d.programs++
	d.mu.Unlock()
	return &program{dev: d}, nil
}

// Calls returns a copy of the recorded launches.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Kernels returns the recorded kernel sequence.
func (d *Device) Kernels() []compute.KernelID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]compute.KernelID, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.Kernel
	}
	return out
}

// Reset clears the call log.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Allocations returns the number of allocation attempts.
func (d *Device) Allocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocs
}

// Frees returns the number of successful Free calls.
func (d *Device) Frees() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frees
}

// Live returns the labels of buffers not yet freed.
func (d *Device) Live() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for b := range d.live {
		out = append(out, b.label)
	}
	return out
}

// Programs returns how many programs were built.
func (d *Device) Programs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.programs
}

type program struct {
	dev    *Device
	closed bool
}

func (p *program) Launch(k compute.KernelID, l compute.Launch, args ...any) error {
	if p.closed {
		return compute.ErrProgramClosed
	}
	if _, err := l.Groups(); err != nil {
		return fmt.Errorf("%v: %w", k, err)
	}
	if err := compute.CheckArgs(k, args); err != nil {
		return err
	}
	for _, a := range args {
		if b, ok := a.(*Buffer); ok && b.freed {
			return fmt.Errorf("%v: %s: %w", k, b.label, compute.ErrBufferFreed)
		}
	}
	p.dev.mu.Lock()
	p.dev.calls = append(p.dev.calls, Call{Kernel: k, Launch: l, Args: append([]any(nil), args...)})
	p.dev.mu.Unlock()
	return nil
}

func (p *program) Finish() error { return nil }

func (p *program) Close() error {
	p.closed = true
	return nil
}
