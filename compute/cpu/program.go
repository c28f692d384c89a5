// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/forcelayout/compute"
)

// program runs kernels synchronously: Launch returns after every
// work-group has finished, so later launches see all writes.
type program struct {
	dev    *Device
	phys   compute.Physics
	built  [compute.KernelCount]bool
	closed atomic.Bool
}

// group is one work-group of a launch.
type group struct {
	id     [2]int
	local  [2]int
	global [2]int

	// scratch holds the launch's local scratch, one slice per entry of
	// compute.Launch.Scratch.
	scratch [][]float32

	// accX and accY are per-item accumulators for tiled kernels.
	accX, accY []float32
}

// items returns the number of work-items in the group.
func (g *group) items() int { return g.local[0] * g.local[1] }

// gridStride calls fn for every index < n owned by the group's work-items
// along dimension 0, in work-item order.
func (g *group) gridStride(n int, fn func(i int)) {
	base := g.id[0] * g.local[0]
	for l := 0; l < g.local[0]; l++ {
		for i := base + l; i < n; i += g.global[0] {
			fn(i)
		}
	}
}

// env is the decoded launch state shared by all groups of one launch.
type env struct {
	phys compute.Physics
	args []any
}

func (e *env) f32buf(i int) []float32 { return e.args[i].(*buffer).f32 }
func (e *env) i32buf(i int) []int32   { return e.args[i].(*buffer).i32 }
func (e *env) i32(i int) int          { return int(e.args[i].(int32)) }
func (e *env) f32(i int) float32      { return e.args[i].(float32) }

type kernelFunc func(e *env, g *group)

func (p *program) Launch(k compute.KernelID, l compute.Launch, args ...any) error {
	if p.closed.Load() {
		return compute.ErrProgramClosed
	}
	if !k.Valid() || !p.built[k] {
		return fmt.Errorf("%w: %v is not part of the program", compute.ErrKernelArgs, k)
	}
	if err := compute.CheckArgs(k, args); err != nil {
		return err
	}
	for i, a := range args {
		b, isBuf := a.(compute.Buffer)
		if !isBuf {
			continue
		}
		cb, ok := b.(*buffer)
		if !ok {
			return fmt.Errorf("%w: %v argument %d: buffer from another device", compute.ErrKernelArgs, k, i)
		}
		if cb.freed.Load() {
			return fmt.Errorf("%v: %s: %w", k, cb.label, compute.ErrBufferFreed)
		}
	}
	groups, err := l.Groups()
	if err != nil {
		return fmt.Errorf("%v: %w", k, err)
	}
	if len(groups) > 2 {
		return fmt.Errorf("%v: %w: %d-D launch", k, compute.ErrGeometry, len(groups))
	}

	local, global, count := [2]int{1, 1}, [2]int{1, 1}, [2]int{1, 1}
	for d := range groups {
		count[d] = groups[d]
		global[d] = l.Global[d]
		if l.Local != nil {
			local[d] = l.Local[d]
		}
	}
	total := count[0] * count[1]
	if total == 0 {
		return nil
	}

	e := &env{phys: p.phys, args: args}
	fn := kernelTable[k]
	p.dev.pool.Range(total, func(lo, hi int) {
		g := &group{local: local, global: global}
		for _, bytes := range l.Scratch {
			g.scratch = append(g.scratch, make([]float32, bytes/4))
		}
		g.accX = make([]float32, g.items())
		g.accY = make([]float32, g.items())
		for gi := lo; gi < hi; gi++ {
			g.id = [2]int{gi % count[0], gi / count[0]}
			fn(e, g)
		}
	})
	return nil
}

func (p *program) Finish() error { return nil }

func (p *program) Close() error {
	p.closed.Store(true)
	return nil
}
