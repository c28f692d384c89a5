package computetest

import (
	"github.com/gogpu/forcelayout/compute"
)

// Buffer is a host-backed buffer owned by a recording Device.
type Buffer struct {
	dev   *Device
	label string
	kind  compute.ElemKind
	f32   []float32
	i32   []int32
	freed bool
}

var _ compute.Buffer = (*Buffer)(nil)

func (b *Buffer) Label() string { return b.label }

func (b *Buffer) Kind() compute.ElemKind { return b.kind }

func (b *Buffer) Len() int {
	if b.kind == compute.Int32 {
		return len(b.i32)
	}
	return len(b.f32)
}

// Float32s exposes the contents of a float32 buffer.
func (b *Buffer) Float32s() []float32 { return b.f32 }

// Upload implements compute.Buffer.
func (b *Buffer) Upload(src any) error {
	if b.freed {
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

// Download implements compute.Buffer.
func (b *Buffer) Download(dst any) error {
	if b.freed {
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

// Free implements compute.Buffer.
func (b *Buffer) Free() error {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.freed {
		return compute.ErrBufferFreed
	}
	b.freed = true
	b.dev.frees++
	delete(b.dev.live, b)
	return nil
}
