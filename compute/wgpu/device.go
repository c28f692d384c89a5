// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package wgpu implements compute.Device on a GPU through the wgpu HAL.
//
// Kernels are WGSL compute shaders compiled to SPIR-V with naga, one
// pipeline per kernel. Launches are recorded into a single command encoder
// and submitted together by Program.Finish, or by any buffer transfer that
// must observe their results, followed by a fence wait.
//
// Importing the package registers the device under compute.DeviceWGPU.
// Build with the nogpu tag to leave it out.
package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/forcelayout/compute"
)

const (
	// DefaultBlockSize is the work-group size used when none is given.
	DefaultBlockSize = 64

	// fencePoll is how long one fence wait blocks before the device logs
	// that the GPU is still busy and waits again. Waits are unbounded.
	fencePoll = 5 * time.Second

	// requiredStorageBuffers is the largest number of storage buffers a
	// kernel binds (CalcForcesEdgeRepulsion binds 11).
	requiredStorageBuffers = 16

	// maxWorkgroupsPerDimension is the WebGPU dispatch limit.
	maxWorkgroupsPerDimension = 65535
)

// errDeviceLost reports a failed wait on submitted work. The device is
// unusable afterwards and GPU objects that submission may still reference
// are leaked rather than destroyed.
var errDeviceLost = errors.New("wgpu: device lost")

func init() {
	compute.Register(compute.DeviceWGPU, func() (compute.Device, error) {
		return Open()
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	block int
}

// WithBlockSize sets the work-group size kernels are compiled for. It is
// rounded up to a multiple of compute.SpringLanes.
func WithBlockSize(n int) Option {
	return func(o *options) { o.block = n }
}

// Device is a GPU compute device.
type Device struct {
	// mu serializes queue access and guards rec.
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool

	name   string
	block  int
	closed atomic.Bool
	lost   atomic.Bool

	rec *recording
}

var _ compute.Device = (*Device)(nil)

// recording is the command encoder of launches not yet submitted, with the
// per-launch resources to release once they have run.
type recording struct {
	encoder    hal.CommandEncoder
	bindGroups []hal.BindGroup
	uniforms   []hal.Buffer
	launches   int
}

func newOptions(opts []Option) options {
	o := options{block: DefaultBlockSize}
	for _, opt := range opts {
		opt(&o)
	}
	o.block = compute.RoundUp(max(o.block, compute.SpringLanes), compute.SpringLanes)
	return o
}

// Open brings up a standalone device on the first discrete or integrated
// Vulkan adapter, falling back to the first adapter found.
func Open(opts ...Option) (*Device, error) {
	o := newOptions(opts)

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", compute.ErrNoDevice)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", compute.ErrNoDevice, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", compute.ErrNoDevice)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
		slogger().Warn("wgpu: no discrete or integrated adapter, using fallback",
			"adapter", selected.Info.Name)
	}

	limits := gputypes.DefaultLimits()
	limits.MaxStorageBuffersPerShaderStage = max(limits.MaxStorageBuffersPerShaderStage, requiredStorageBuffers)
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open %s: %w", compute.ErrNoDevice, selected.Info.Name, err)
	}

	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     fmt.Sprintf("wgpu (%s)", selected.Info.Name),
		block:    o.block,
	}
	slogger().Info("wgpu: compute device ready", "adapter", selected.Info.Name, "block", d.block)
	return d, nil
}

// NewDeviceFromProvider shares the device and queue of a host application.
// The provider must also expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. Close leaves the shared device open.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", compute.ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", compute.ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", compute.ErrNoDevice)
	}

	o := newOptions(opts)
	d := &Device{
		device:   device,
		queue:    queue,
		external: true,
		name:     "wgpu (shared)",
		block:    o.block,
	}
	slogger().Info("wgpu: using shared GPU device", "block", d.block)
	return d, nil
}

// Name implements compute.Device.
func (d *Device) Name() string { return d.name }

// Type implements compute.Device.
func (d *Device) Type() compute.DeviceType { return compute.DeviceTypeGPU }

// BestBlockSize implements compute.Device.
func (d *Device) BestBlockSize() int { return d.block }

// Close submits pending launches and releases the device unless it is
// shared or lost. Buffers and programs must be released first.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.flushLocked()
	if !d.external && !d.lost.Load() {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device, d.instance, d.queue = nil, nil, nil
	return err
}

// encoderLocked returns the open command encoder, starting one if needed.
func (d *Device) encoderLocked() (*recording, error) {
	if d.lost.Load() {
		return nil, errDeviceLost
	}
	if d.rec != nil {
		return d.rec, nil
	}
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "forcelayout"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("forcelayout"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	d.rec = &recording{encoder: enc}
	return d.rec, nil
}

// flushLocked submits the recorded launches, waits for them and releases
// their per-launch resources. Nothing is released when the wait fails.
func (d *Device) flushLocked() error {
	rec := d.rec
	if rec == nil {
		return nil
	}
	d.rec = nil
	if d.lost.Load() {
		return errDeviceLost
	}

	cmdBuf, err := rec.encoder.EndEncoding()
	if err != nil {
		d.retireLocked(rec)
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	err = d.submitAndWait(cmdBuf)
	if d.lost.Load() {
		slogger().Error("wgpu: device lost, leaking in-flight resources",
			"launches", rec.launches, "err", err)
		return err
	}
	d.device.FreeCommandBuffer(cmdBuf)
	d.retireLocked(rec)
	if err != nil {
		return err
	}
	slogger().Debug("wgpu: launches submitted", "launches", rec.launches)
	return nil
}

// retireLocked destroys the per-launch bind groups and uniforms of rec.
func (d *Device) retireLocked(rec *recording) {
	for _, bg := range rec.bindGroups {
		d.device.DestroyBindGroup(bg)
	}
	for _, ub := range rec.uniforms {
		d.device.DestroyBuffer(ub)
	}
}

// destroyBufferLocked destroys hb unless the device was lost with work in
// flight.
func (d *Device) destroyBufferLocked(hb hal.Buffer) {
	if d.device == nil || hb == nil || d.lost.Load() {
		return
	}
	d.device.DestroyBuffer(hb)
}

// submitAndWait submits cmdBuf and blocks until its fence signals. A failed
// wait after a successful submit marks the device lost.
func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	err = awaitFence(func(poll time.Duration) (bool, error) {
		return d.device.Wait(fence, 1, poll)
	}, fencePoll)
	if err != nil {
		d.lost.Store(true)
		return fmt.Errorf("%w: wait for GPU: %w", errDeviceLost, err)
	}
	d.device.DestroyFence(fence)
	return nil
}

// awaitFence calls wait until it reports the fence signalled, logging each
// poll interval that passes without it.
func awaitFence(wait func(poll time.Duration) (bool, error), poll time.Duration) error {
	start := time.Now()
	for {
		done, err := wait(poll)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		slogger().Warn("wgpu: still waiting for GPU", "elapsed", time.Since(start))
	}
}

// flush submits pending launches.
func (d *Device) flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}
