// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/forcelayout/compute"
)

// minBufferSize keeps empty arrays bindable.
const minBufferSize = 4

// buffer is a storage buffer of 32-bit elements.
type buffer struct {
	dev   *Device
	label string
	kind  compute.ElemKind
	n     int
	size  uint64
	buf   hal.Buffer
	freed atomic.Bool
}

// NewBuffer implements compute.Device.
func (d *Device) NewBuffer(label string, data any) (compute.Buffer, error) {
	kind, n, err := compute.DataKind(data)
	if err != nil {
		return nil, err
	}
	b, err := d.newBuffer(label, kind, n, false)
	if err != nil {
		return nil, err
	}
	if err := b.Upload(data); err != nil {
		_ = b.Free()
		return nil, err
	}
	return b, nil
}

// NewZeroBuffer implements compute.Device.
func (d *Device) NewZeroBuffer(label string, kind compute.ElemKind, n int) (compute.Buffer, error) {
	return d.newBuffer(label, kind, n, true)
}

func (d *Device) newBuffer(label string, kind compute.ElemKind, n int, zero bool) (*buffer, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("%w: %s: device closed", compute.ErrAllocation, label)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s: negative length %d", compute.ErrAllocation, label, n)
	}
	if kind != compute.Float32 && kind != compute.Int32 {
		return nil, fmt.Errorf("%w: %s: unknown kind %v", compute.ErrAllocation, label, kind)
	}

	size := max(uint64(n)*4, minBufferSize)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost.Load() {
		return nil, fmt.Errorf("%w: %s: %w", compute.ErrAllocation, label, errDeviceLost)
	}
	hb, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d bytes): %w", compute.ErrAllocation, label, size, err)
	}
	if zero {
		// Zeroing is a queue write; earlier recorded launches must run first.
		if err := d.flushLocked(); err != nil {
			d.destroyBufferLocked(hb)
			return nil, err
		}
		d.queue.WriteBuffer(hb, 0, make([]byte, size))
	}
	return &buffer{dev: d, label: label, kind: kind, n: n, size: size, buf: hb}, nil
}

func (b *buffer) Label() string { return b.label }

func (b *buffer) Kind() compute.ElemKind { return b.kind }

func (b *buffer) Len() int { return b.n }

// Upload writes src through the queue after any recorded launches.
func (b *buffer) Upload(src any) error {
	if b.freed.Load() {
		return compute.ErrBufferFreed
	}
	if err := compute.CheckData(b.kind, b.n, src); err != nil {
		return err
	}
	if b.n == 0 {
		return nil
	}

	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.flushLocked(); err != nil {
		return err
	}
	d.queue.WriteBuffer(b.buf, 0, packWords(src))
	return nil
}

// Download copies the buffer into dst once every recorded launch has run.
func (b *buffer) Download(dst any) error {
	if b.freed.Load() {
		return compute.ErrBufferFreed
	}
	if err := compute.CheckData(b.kind, b.n, dst); err != nil {
		return err
	}
	if b.n == 0 {
		return nil
	}

	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  b.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer for %s: %w", b.label, err)
	}
	defer d.destroyBufferLocked(staging)

	rec, err := d.encoderLocked()
	if err != nil {
		return err
	}
	rec.encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: b.size},
	})
	if err := d.flushLocked(); err != nil {
		return err
	}

	raw := make([]byte, b.size)
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return fmt.Errorf("wgpu: read back %s: %w", b.label, err)
	}
	unpackWords(raw, dst)
	return nil
}

// Free releases the buffer after any recorded launch that may use it.
func (b *buffer) Free() error {
	if !b.freed.CompareAndSwap(false, true) {
		return compute.ErrBufferFreed
	}
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.flushLocked()
	d.destroyBufferLocked(b.buf)
	b.buf = nil
	return err
}

// packWords serializes a []float32 or []int32 as little-endian words.
func packWords(src any) []byte {
	switch s := src.(type) {
	case []float32:
		out := make([]byte, len(s)*4)
		for i, v := range s {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out
	case []int32:
		out := make([]byte, len(s)*4)
		for i, v := range s {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v)) //nolint:gosec // bit reinterpretation
		}
		return out
	}
	return nil
}

func unpackWords(raw []byte, dst any) {
	switch d := dst.(type) {
	case []float32:
		for i := range d {
			d[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case []int32:
		for i := range d {
			d[i] = int32(binary.LittleEndian.Uint32(raw[i*4:])) //nolint:gosec // bit reinterpretation
		}
	}
}
