// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"sync/atomic"

	"github.com/gogpu/forcelayout/compute"
)

// buffer is host memory standing in for device memory.
type buffer struct {
	label string
	kind  compute.ElemKind
	f32   []float32
	i32   []int32
	freed atomic.Bool
}

func (b *buffer) Label() string { return b.label }

func (b *buffer) Kind() compute.ElemKind { return b.kind }

func (b *buffer) Len() int {
	if b.kind == compute.Int32 {
		return len(b.i32)
	}
	return len(b.f32)
}

func (b *buffer) Upload(src any) error {
	if b.freed.Load() {
		return compute.ErrBufferFreed
	}
	if err := compute.CheckData(b.kind, b.Len(), src); err != nil {
		return err
	}
	switch s := src.(type) {
	case []float32:
		copy(b.f32, s)
	case []int32:
		copy(b.i32, s)
	}
	return nil
}

func (b *buffer) Download(dst any) error {
	if b.freed.Load() {
		return compute.ErrBufferFreed
	}
	if err := compute.CheckData(b.kind, b.Len(), dst); err != nil {
		return err
	}
	switch d := dst.(type) {
	case []float32:
		copy(d, b.f32)
	case []int32:
		copy(d, b.i32)
	}
	return nil
}

func (b *buffer) Free() error {
	if !b.freed.CompareAndSwap(false, true) {
		return compute.ErrBufferFreed
	}
	b.f32, b.i32 = nil, nil
	return nil
}
