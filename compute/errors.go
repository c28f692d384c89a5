package compute

import "errors"

// Sentinel errors shared by all devices.
var (
	// ErrNoDevice is returned when no compute device can be initialized.
	ErrNoDevice = errors.New("compute: no compute device available")

	// ErrCompile is returned when a program fails to build.
	ErrCompile = errors.New("compute: program build failed")

	// ErrAllocation is returned when a device buffer cannot be allocated.
	ErrAllocation = errors.New("compute: buffer allocation failed")

	// ErrBufferFreed is returned when a freed buffer is used or freed again.
	ErrBufferFreed = errors.New("compute: buffer already freed")

	// ErrBufferData is returned for host data of the wrong type or size.
	ErrBufferData = errors.New("compute: host data does not match buffer")

	// ErrKernelArgs is returned when launch arguments do not match the
	// kernel signature.
	ErrKernelArgs = errors.New("compute: kernel arguments do not match signature")

	// ErrGeometry is returned for an invalid launch geometry.
	ErrGeometry = errors.New("compute: invalid launch geometry")

	// ErrProgramClosed is returned when launching on a closed program.
	ErrProgramClosed = errors.New("compute: program closed")
)
