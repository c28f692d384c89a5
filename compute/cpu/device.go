// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cpu implements compute.Device on the host CPU.
//
// Kernels are Go functions executed one work-group at a time. Work-groups are
// spread over an internal/parallel.WorkerPool; within a group the work-items
// run in order, and local scratch is a per-group []float32, so launches
// shaped for a GPU (tiled, 2-D) run here unchanged. Every node's output is
// produced by exactly one work-item with a fixed summation order, which makes
// results independent of goroutine scheduling.
//
// Importing the package registers the device under compute.DeviceCPU.
package cpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/internal/parallel"
)

func init() {
	compute.Register(compute.DeviceCPU, func() (compute.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	workers int
	block   int
}

// WithWorkers sets the number of worker goroutines. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithBlockSize overrides the block size reported by BestBlockSize.
func WithBlockSize(n int) Option {
	return func(o *options) { o.block = n }
}

// Device is a CPU compute device.
type Device struct {
	pool   *parallel.WorkerPool
	block  int
	closed atomic.Bool
}

var _ compute.Device = (*Device)(nil)

// New creates a CPU device.
func New(opts ...Option) *Device {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.block <= 0 {
		o.block = simdBlockSize()
	}

	d := &Device{
		pool:  parallel.NewWorkerPool(o.workers),
		block: o.block,
	}
	slogger().Info("cpu: compute device ready",
		"workers", d.pool.Workers(),
		"block", d.block,
		"simd", simdName())
	return d
}

// Name implements compute.Device.
func (d *Device) Name() string {
	return fmt.Sprintf("cpu (%d workers, %s)", d.pool.Workers(), simdName())
}

// Type implements compute.Device.
func (d *Device) Type() compute.DeviceType { return compute.DeviceTypeCPU }

// BestBlockSize implements compute.Device.
func (d *Device) BestBlockSize() int { return d.block }

// NewBuffer implements compute.Device.
func (d *Device) NewBuffer(label string, data any) (compute.Buffer, error) {
	kind, n, err := compute.DataKind(data)
	if err != nil {
		return nil, err
	}
	b, err := d.newBuffer(label, kind, n)
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
	return d.newBuffer(label, kind, n)
}

func (d *Device) newBuffer(label string, kind compute.ElemKind, n int) (*buffer, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("%w: %s: device closed", compute.ErrAllocation, label)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s: negative length %d", compute.ErrAllocation, label, n)
	}
	b := &buffer{label: label, kind: kind}
	switch kind {
	case compute.Float32:
		b.f32 = make([]float32, n)
	case compute.Int32:
		b.i32 = make([]int32, n)
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %v", compute.ErrAllocation, label, kind)
	}
	return b, nil
}

// BuildProgram implements compute.Device. Every kernel is a Go function, so
// building only checks that the requested kernels exist.
func (d *Device) BuildProgram(kernels []compute.KernelID, phys compute.Physics) (compute.Program, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("%w: device closed", compute.ErrCompile)
	}
	if err := phys.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", compute.ErrCompile, err)
	}

	p := &program{dev: d, phys: phys}
	for _, k := range kernels {
		if !k.Valid() || kernelTable[k] == nil {
			return nil, fmt.Errorf("%w: unknown kernel %v", compute.ErrCompile, k)
		}
		p.built[k] = true
	}
	slogger().Debug("cpu: program built", "kernels", len(kernels))
	return p, nil
}

// Close stops the worker pool. Buffers stay readable.
func (d *Device) Close() error {
	if d.closed.CompareAndSwap(false, true) {
		d.pool.Close()
	}
	return nil
}
