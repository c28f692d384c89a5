// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/forcelayout/compute"
)

// paramsSize is the size of the Params uniform: two i32 then two f32.
const paramsSize = 16

// kernelPipeline holds the GPU objects of one compiled kernel.
type kernelPipeline struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

type program struct {
	dev       *Device
	block     int
	pipelines [compute.KernelCount]*kernelPipeline
	closed    atomic.Bool
}

// BuildProgram implements compute.Device. Each kernel is compiled for the
// device's block size; launches must use compute.GPUStrategy with the same
// block size.
func (d *Device) BuildProgram(kernels []compute.KernelID, phys compute.Physics) (compute.Program, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("%w: device closed", compute.ErrCompile)
	}
	if err := phys.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", compute.ErrCompile, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := &program{dev: d, block: d.block}
	for _, k := range kernels {
		if !k.Valid() {
			p.destroyLocked()
			return nil, fmt.Errorf("%w: unknown kernel %v", compute.ErrCompile, k)
		}
		if p.pipelines[k] != nil {
			continue
		}
		kp, err := d.buildKernel(k, phys)
		if err != nil {
			p.destroyLocked()
			return nil, fmt.Errorf("%w: %v: %w", compute.ErrCompile, k, err)
		}
		p.pipelines[k] = kp
	}
	slogger().Info("wgpu: program built", "kernels", len(kernels), "block", d.block)
	return p, nil
}

// bindLayoutEntries returns binding 0 for the Params uniform followed by one
// storage binding per buffer parameter of k.
func bindLayoutEntries(k compute.KernelID) []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	binding := uint32(1)
	for _, prm := range compute.Signature(k) {
		if !prm.Kind.IsBuffer() {
			continue
		}
		typ := gputypes.BufferBindingTypeReadOnlyStorage
		if prm.Writable {
			typ = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
		binding++
	}
	return entries
}

func (d *Device) buildKernel(k compute.KernelID, phys compute.Physics) (*kernelPipeline, error) {
	src, err := kernelSource(k, d.block, phys)
	if err != nil {
		return nil, err
	}
	code, err := compileSPIRV(src)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}

	label := k.String()
	kp := &kernelPipeline{}
	kp.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}

	entries := bindLayoutEntries(k)
	kp.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		d.destroyKernel(kp)
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	kp.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{kp.bindLayout},
	})
	if err != nil {
		d.destroyKernel(kp)
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	kp.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: kp.pipeLayout,
		Compute: hal.ComputeState{
			Module:     kp.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		d.destroyKernel(kp)
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}

	slogger().Debug("wgpu: pipeline created",
		"kernel", label,
		"bindings", len(entries),
		"spirv_words", len(code))
	return kp, nil
}

func (d *Device) destroyKernel(kp *kernelPipeline) {
	if kp.pipeline != nil {
		d.device.DestroyComputePipeline(kp.pipeline)
	}
	if kp.pipeLayout != nil {
		d.device.DestroyPipelineLayout(kp.pipeLayout)
	}
	if kp.bindLayout != nil {
		d.device.DestroyBindGroupLayout(kp.bindLayout)
	}
	if kp.module != nil {
		d.device.DestroyShaderModule(kp.module)
	}
}

// workgroup returns the work-group size kernel k was compiled with.
func (p *program) workgroup(k compute.KernelID) []int {
	if k == compute.KernelSpringDrag {
		return []int{compute.SpringLanes, p.block / compute.SpringLanes}
	}
	return []int{p.block}
}

// packParams lays out the scalar arguments as the Params uniform: int32
// values fill i0, i1 and float32 values fill f0, f1, each in argument order.
func packParams(args []any) []byte {
	out := make([]byte, paramsSize)
	ints, floats := 0, 0
	for _, a := range args {
		switch v := a.(type) {
		case int32:
			binary.LittleEndian.PutUint32(out[ints*4:], uint32(v)) //nolint:gosec // bit reinterpretation
			ints++
		case float32:
			binary.LittleEndian.PutUint32(out[8+floats*4:], math.Float32bits(v))
			floats++
		}
	}
	return out
}

// Launch records k into the device's command encoder. The dispatch runs on
// the next Finish or buffer transfer.
func (p *program) Launch(k compute.KernelID, l compute.Launch, args ...any) error {
	if p.closed.Load() {
		return compute.ErrProgramClosed
	}
	if !k.Valid() || p.pipelines[k] == nil {
		return fmt.Errorf("%w: %v is not part of the program", compute.ErrKernelArgs, k)
	}
	if err := compute.CheckArgs(k, args); err != nil {
		return err
	}

	var bufs []*buffer
	for i, a := range args {
		b, isBuf := a.(compute.Buffer)
		if !isBuf {
			continue
		}
		gb, ok := b.(*buffer)
		if !ok || gb.dev != p.dev {
			return fmt.Errorf("%w: %v argument %d: buffer from another device", compute.ErrKernelArgs, k, i)
		}
		if gb.freed.Load() {
			return fmt.Errorf("%v: %s: %w", k, gb.label, compute.ErrBufferFreed)
		}
		bufs = append(bufs, gb)
	}

	groups, err := l.Groups()
	if err != nil {
		return fmt.Errorf("%v: %w", k, err)
	}
	if want := p.workgroup(k); !slices.Equal(l.Local, want) {
		return fmt.Errorf("%v: %w: compiled for work-group %v, got %v", k, compute.ErrGeometry, want, l.Local)
	}
	dispatch := [3]uint32{1, 1, 1}
	for dim, g := range groups {
		if g == 0 {
			return nil
		}
		if g > maxWorkgroupsPerDimension {
			return fmt.Errorf("%v: %w: %d work-groups in dimension %d", k, compute.ErrGeometry, g, dim)
		}
		dispatch[dim] = uint32(g) //nolint:gosec // bounded above
	}

	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, err := d.encoderLocked()
	if err != nil {
		return err
	}
	ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: k.String() + "_params",
		Size:  paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%v: create uniform buffer: %w", k, err)
	}
	rec.uniforms = append(rec.uniforms, ub)
	d.queue.WriteBuffer(ub, 0, packParams(args))

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize}},
	}
	for i, b := range bufs {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1), //nolint:gosec // at most a dozen bindings
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.size},
		})
	}
	kp := p.pipelines[k]
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   k.String() + "_bg",
		Layout:  kp.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%v: create bind group: %w", k, err)
	}
	rec.bindGroups = append(rec.bindGroups, bg)

	pass := rec.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.String()})
	pass.SetPipeline(kp.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(dispatch[0], dispatch[1], dispatch[2])
	pass.End()
	rec.launches++
	return nil
}

// Finish submits the recorded launches and waits for them.
func (p *program) Finish() error {
	if p.closed.Load() {
		return compute.ErrProgramClosed
	}
	return p.dev.flush()
}

func (p *program) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.flushLocked()
	p.destroyLocked()
	return err
}

func (p *program) destroyLocked() {
	if p.dev.device == nil || p.dev.lost.Load() {
		return
	}
	for i, kp := range p.pipelines {
		if kp != nil {
			p.dev.destroyKernel(kp)
			p.pipelines[i] = nil
		}
	}
}
