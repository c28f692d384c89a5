// Package compute defines the compute-device abstraction the layout runs on.
//
// A Device allocates typed buffers and builds a Program holding the layout
// kernels. Programs launch kernels with an explicit Launch geometry chosen by
// a LaunchStrategy, so kernel invocation code never branches on the device
// type.
//
// Two implementations ship with the module:
//
//   - compute/wgpu: GPU device on the wgpu HAL (build tag !nogpu)
//   - compute/cpu: multi-core CPU treated as a compute device
//
// Devices register factories with Register; DefaultDevice returns the
// highest-priority device that initializes successfully.
package compute

import "fmt"

// DeviceType distinguishes GPU-like devices from CPU devices.
// It selects the launch strategy, never the kernel semantics.
type DeviceType int

const (
	// DeviceTypeGPU is a GPU with work-group local memory.
	DeviceTypeGPU DeviceType = iota

	// DeviceTypeCPU is a multi-core CPU.
	DeviceTypeCPU
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeCPU:
		return "CPU"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// ElemKind is the element type of a device buffer.
type ElemKind int

const (
	// Float32 buffers hold []float32.
	Float32 ElemKind = iota

	// Int32 buffers hold []int32.
	Int32
)

// String returns the element kind name.
func (k ElemKind) String() string {
	switch k {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("ElemKind(%d)", int(k))
	}
}

// Device is a compute device.
//
// Devices are safe for concurrent use. Programs are not: callers serialize
// launches on one Program themselves.
type Device interface {
	// Name identifies the device for logs, for example "cpu (8 workers)".
	Name() string

	// Type reports whether the device is GPU-like or a CPU.
	Type() DeviceType

	// BestBlockSize is the preferred work-group size.
	BestBlockSize() int

	// NewBuffer allocates a buffer and uploads data, which must be a
	// []float32 or []int32.
	NewBuffer(label string, data any) (Buffer, error)

	// NewZeroBuffer allocates a zero-filled buffer of n elements.
	NewZeroBuffer(label string, kind ElemKind, n int) (Buffer, error)

	// BuildProgram compiles the given kernels with the physics constants.
	BuildProgram(kernels []KernelID, phys Physics) (Program, error)

	// Close releases the device.
	Close() error
}

// Buffer is device memory holding elements of one kind.
type Buffer interface {
	Label() string
	Kind() ElemKind
	Len() int

	// Upload copies src ([]float32 or []int32 of the buffer's kind, at most
	// Len elements) to the start of the buffer.
	Upload(src any) error

	// Download copies the start of the buffer into dst.
	Download(dst any) error

	// Free releases the buffer. Further calls return ErrBufferFreed.
	Free() error
}

// Program is a set of compiled kernels.
type Program interface {
	// Launch enqueues kernel k. args follow Signature(k): Buffer, int32
	// or float32 values. Launches execute in order and each observes the
	// writes of the previous ones.
	Launch(k KernelID, l Launch, args ...any) error

	// Finish blocks until every enqueued launch has completed.
	Finish() error

	// Close releases the compiled kernels.
	Close() error
}

// elemLen returns the kind and length of a []float32 or []int32.
func elemLen(data any) (ElemKind, int, bool) {
	switch d := data.(type) {
	case []float32:
		return Float32, len(d), true
	case []int32:
		return Int32, len(d), true
	default:
		return 0, 0, false
	}
}

// CheckData validates host data for an upload into or download from a
// buffer of the given kind and length.
func CheckData(kind ElemKind, n int, data any) error {
	k, l, ok := elemLen(data)
	if !ok {
		return fmt.Errorf("%w: unsupported host type %T", ErrBufferData, data)
	}
	if k != kind {
		return fmt.Errorf("%w: %s data for %s buffer", ErrBufferData, k, kind)
	}
	if l > n {
		return fmt.Errorf("%w: %d elements for buffer of %d", ErrBufferData, l, n)
	}
	return nil
}

// DataKind returns the element kind and length of host data.
func DataKind(data any) (ElemKind, int, error) {
	k, l, ok := elemLen(data)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unsupported host type %T", ErrBufferData, data)
	}
	return k, l, nil
}
