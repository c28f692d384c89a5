// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gogpu/forcelayout/compute"
)

func newTestProgram(t *testing.T) (*Device, compute.Program) {
	t.Helper()
	d := New(WithWorkers(3), WithBlockSize(4))
	t.Cleanup(func() { _ = d.Close() })
	p, err := d.BuildProgram(compute.AllKernels(), compute.DefaultPhysics())
	if err != nil {
		t.Fatalf("BuildProgram() error = %v", err)
	}
	return d, p
}

func mustBuffer(t *testing.T, d *Device, data any) compute.Buffer {
	t.Helper()
	b, err := d.NewBuffer("test", data)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return b
}

func download(t *testing.T, b compute.Buffer) []float32 {
	t.Helper()
	out := make([]float32, b.Len())
	if err := b.Download(out); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	return out
}

// randomNodes returns n positions and masses padded to np with zero mass.
func randomNodes(n, np int, seed uint64) (x, y, m []float32) {
	r := rand.New(rand.NewPCG(seed, seed))
	x, y, m = make([]float32, np), make([]float32, np), make([]float32, np)
	for i := range n {
		x[i] = r.Float32()*20 - 10
		y[i] = r.Float32()*20 - 10
		m[i] = 1 + r.Float32()*3
	}
	return x, y, m
}

func TestGravityLaunchShapesAgree(t *testing.T) {
	d, p := newTestProgram(t)
	const n, np = 37, 48
	x, y, m := randomNodes(n, np, 1)
	prob := compute.Problem{NumNodes: n, NumNodesPadded: np}

	run := func(s compute.LaunchStrategy) []float32 {
		force := mustBuffer(t, d, make([]float32, 2*np))
		err := p.Launch(compute.KernelGravity, s.Geometry(compute.KernelGravity, prob),
			mustBuffer(t, d, x), mustBuffer(t, d, y), mustBuffer(t, d, m), force,
			int32(n), int32(np))
		if err != nil {
			t.Fatalf("Launch(%T) error = %v", s, err)
		}
		return download(t, force)
	}

	cpuForce := run(compute.NewCPUStrategy(4))
	gpuForce := run(compute.NewGPUStrategy(16))
	for i := range cpuForce {
		if math.Float32bits(cpuForce[i]) != math.Float32bits(gpuForce[i]) {
			t.Fatalf("force[%d]: cpu %v, gpu %v", i, cpuForce[i], gpuForce[i])
		}
	}
	for i := 2 * n; i < 2*np; i++ {
		if cpuForce[i] != 0 {
			t.Errorf("padding force[%d] = %v, want 0", i, cpuForce[i])
		}
	}
}

func TestGravityRepels(t *testing.T) {
	d, p := newTestProgram(t)
	force := mustBuffer(t, d, make([]float32, 4))
	err := p.Launch(compute.KernelGravity, compute.Launch{Global: []int{1}},
		mustBuffer(t, d, []float32{0, 1}), mustBuffer(t, d, []float32{0, 0}),
		mustBuffer(t, d, []float32{1, 1}), force, int32(2), int32(2))
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	f := download(t, force)
	if f[0] >= 0 || f[2] <= 0 {
		t.Errorf("force = %v, want node 0 pushed left and node 1 right", f)
	}
	if math.Abs(float64(f[0]+f[2])) > 1e-6 {
		t.Errorf("force x sum = %v, want 0", f[0]+f[2])
	}
}

// springFixture is a small CSR graph: node i links to i+1 and i+2.
func springFixture(n int) (edges, offsets, counts []int32, coeffs, lengths []float32) {
	for i := range n {
		offsets = append(offsets, int32(len(edges)))
		var c int32
		for _, j := range []int{i - 2, i - 1, i + 1, i + 2} {
			if j < 0 || j >= n {
				continue
			}
			edges = append(edges, int32(j))
			coeffs = append(coeffs, 0.5+float32(j%3)*0.25)
			lengths = append(lengths, 1+float32(i%4))
			c++
		}
		counts = append(counts, c)
	}
	return edges, offsets, counts, coeffs, lengths
}

func TestSpringLaunchShapesAgree(t *testing.T) {
	d, p := newTestProgram(t)
	const n = 29
	x, y, _ := randomNodes(n, n, 2)
	edges, offsets, counts, coeffs, lengths := springFixture(n)
	vel := make([]float32, 2*n)
	for i := range vel {
		vel[i] = float32(i%5) * 0.1
	}
	prob := compute.Problem{NumNodes: n, NumNodesPadded: 32}

	run := func(s compute.LaunchStrategy) []float32 {
		force := mustBuffer(t, d, make([]float32, 64))
		err := p.Launch(compute.KernelSpringDrag, s.Geometry(compute.KernelSpringDrag, prob),
			mustBuffer(t, d, x), mustBuffer(t, d, y), mustBuffer(t, d, edges),
			mustBuffer(t, d, offsets), mustBuffer(t, d, counts), mustBuffer(t, d, coeffs),
			mustBuffer(t, d, lengths), mustBuffer(t, d, vel), force, int32(n))
		if err != nil {
			t.Fatalf("Launch(%T) error = %v", s, err)
		}
		return download(t, force)
	}

	a := run(compute.NewCPUStrategy(4))
	b := run(compute.NewGPUStrategy(32))
	for i := range a {
		if diff := math.Abs(float64(a[i] - b[i])); diff > 1e-4*(1+math.Abs(float64(a[i]))) {
			t.Errorf("force[%d]: cpu %v, gpu %v", i, a[i], b[i])
		}
	}
}

func TestSpringPullsTowardRestLength(t *testing.T) {
	d, p := newTestProgram(t)
	force := mustBuffer(t, d, make([]float32, 4))
	err := p.Launch(compute.KernelSpringDrag, compute.Launch{Global: []int{2}, Local: []int{1}},
		mustBuffer(t, d, []float32{0, 2}), mustBuffer(t, d, []float32{0, 0}),
		mustBuffer(t, d, []int32{1, 0}), mustBuffer(t, d, []int32{0, 1}),
		mustBuffer(t, d, []int32{1, 1}), mustBuffer(t, d, []float32{1, 1}),
		mustBuffer(t, d, []float32{1, 1}), mustBuffer(t, d, make([]float32, 4)),
		force, int32(2))
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	f := download(t, force)
	if f[0] != 1 || f[2] != -1 || f[1] != 0 || f[3] != 0 {
		t.Errorf("force = %v, want [1 0 -1 0]", f)
	}
}

func TestEdgeRepulsion(t *testing.T) {
	d, p := newTestProgram(t)

	// Edge 0-1 along the x axis, node 2 above its middle.
	posX := mustBuffer(t, d, []float32{0, 3, 1.5})
	posY := mustBuffer(t, d, []float32{0, 0, 1})
	mass := mustBuffer(t, d, []float32{1, 1, 1})
	src := mustBuffer(t, d, []int32{0, 0, 0, 0})
	tgt := mustBuffer(t, d, []int32{1, 0, 0, 0})
	zero := func() compute.Buffer { return mustBuffer(t, d, make([]float32, 4)) }
	startX, startY, tanX, tanY, length := zero(), zero(), zero(), zero(), zero()

	prob := compute.Problem{NumNodes: 3, NumNodesPadded: 4, NumEdgesUnique: 1, NumEdgesUniquePadded: 4}
	s := compute.NewCPUStrategy(4)
	err := p.Launch(compute.KernelPrepareEdgeRepulsion, s.Geometry(compute.KernelPrepareEdgeRepulsion, prob),
		posX, posY, src, tgt, startX, startY, tanX, tanY, length, int32(1))
	if err != nil {
		t.Fatalf("Launch(Prepare) error = %v", err)
	}
	if got := download(t, length)[0]; got != 3 {
		t.Errorf("length = %v, want 3", got)
	}
	if got := download(t, tanX)[0]; got != 1 {
		t.Errorf("tangentX = %v, want 1", got)
	}

	massStart := mustBuffer(t, d, []float32{1, 0, 0, 0})
	massEnd := mustBuffer(t, d, []float32{1, 0, 0, 0})

	run := func(s compute.LaunchStrategy) []float32 {
		force := mustBuffer(t, d, make([]float32, 8))
		err := p.Launch(compute.KernelEdgeRepulsion, s.Geometry(compute.KernelEdgeRepulsion, prob),
			posX, posY, mass, startX, startY, tanX, tanY, length, massStart, massEnd,
			force, int32(3), int32(4))
		if err != nil {
			t.Fatalf("Launch(%T) error = %v", s, err)
		}
		return download(t, force)
	}

	f := run(s)
	if f[0] != 0 || f[1] != 0 || f[2] != 0 || f[3] != 0 {
		t.Errorf("endpoint forces = %v, want zero", f[:4])
	}
	if f[4] != 0 || f[5] <= 0 {
		t.Errorf("node 2 force = (%v, %v), want pushed up", f[4], f[5])
	}

	g := run(compute.NewGPUStrategy(16))
	for i := range f {
		if f[i] != g[i] {
			t.Errorf("force[%d]: cpu %v, gpu %v", i, f[i], g[i])
		}
	}
}

func TestIntegrateRKConstantForce(t *testing.T) {
	d, p := newTestProgram(t)

	// One node, mass 2, constant force (1, 0), timestep 0.5 from rest:
	// x = a*t^2/2 = 0.0625, v = a*t = 0.25.
	posX := mustBuffer(t, d, []float32{1})
	posY := mustBuffer(t, d, []float32{0})
	mass := mustBuffer(t, d, []float32{2})
	nodeK := mustBuffer(t, d, make([]float32, 8))
	nodeL := mustBuffer(t, d, make([]float32, 6))
	vel := mustBuffer(t, d, make([]float32, 2))
	force := mustBuffer(t, d, []float32{1, 0})
	l := compute.Launch{Global: []int{4}, Local: []int{4}}

	if err := p.Launch(compute.KernelIntegrateRK0, l, posX, posY, mass, nodeK, nodeL, vel, force,
		float32(0.5), int32(1)); err != nil {
		t.Fatalf("RK0 error = %v", err)
	}
	for _, k := range []compute.KernelID{compute.KernelIntegrateRK1, compute.KernelIntegrateRK2, compute.KernelIntegrateRK3} {
		if err := p.Launch(k, l, posX, posY, mass, nodeK, nodeL, vel, force,
			float32(1), float32(0.5), int32(1)); err != nil {
			t.Fatalf("%v error = %v", k, err)
		}
	}

	if got := download(t, posX)[0]; math.Abs(float64(got-1.0625)) > 1e-6 {
		t.Errorf("x = %v, want 1.0625", got)
	}
	v := download(t, vel)
	if math.Abs(float64(v[0]-0.25)) > 1e-6 || v[1] != 0 {
		t.Errorf("velocity = %v, want [0.25 0]", v)
	}
}

// TestIntegrateRKKeepsStartPosition drifts nodes far from the origin with
// no force. Each stage must start from the stored position, so the step is
// exactly x + (k0+k3)/6 + (k1+k2)/3 in float32.
func TestIntegrateRKKeepsStartPosition(t *testing.T) {
	d, p := newTestProgram(t)

	const n = 64
	x0, v0 := make([]float32, n), make([]float32, 2*n)
	for i := range n {
		x0[i] = 3000.37 + float32(i)*91.3
		v0[2*i] = 1e-4 * float32(i+1)
	}
	posX := mustBuffer(t, d, x0)
	posY := mustBuffer(t, d, make([]float32, n))
	mass := mustBuffer(t, d, slices.Repeat([]float32{1}, n))
	nodeK := mustBuffer(t, d, make([]float32, 8*n))
	nodeL := mustBuffer(t, d, make([]float32, 6*n))
	vel := mustBuffer(t, d, v0)
	force := mustBuffer(t, d, make([]float32, 2*n))
	l := compute.Launch{Global: []int{n}, Local: []int{4}}

	if err := p.Launch(compute.KernelIntegrateRK0, l, posX, posY, mass, nodeK, nodeL, vel, force,
		float32(1), int32(n)); err != nil {
		t.Fatalf("RK0 error = %v", err)
	}
	for _, k := range []compute.KernelID{compute.KernelIntegrateRK1, compute.KernelIntegrateRK2, compute.KernelIntegrateRK3} {
		if err := p.Launch(k, l, posX, posY, mass, nodeK, nodeL, vel, force,
			float32(1), float32(1), int32(n)); err != nil {
			t.Fatalf("%v error = %v", k, err)
		}
	}

	got := download(t, posX)
	for i := range n {
		k := v0[2*i]
		want := x0[i] + (k+k)/6 + (k+k)/3
		if got[i] != want {
			t.Errorf("x[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestIntegrateSpeedLimit(t *testing.T) {
	d, p := newTestProgram(t)
	posX := mustBuffer(t, d, []float32{0})
	posY := mustBuffer(t, d, []float32{0})
	vel := mustBuffer(t, d, make([]float32, 2))
	err := p.Launch(compute.KernelIntegrateEuler, compute.Launch{Global: []int{1}},
		posX, posY, mustBuffer(t, d, []float32{1}), vel,
		mustBuffer(t, d, []float32{300, 400}), float32(1), int32(1))
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	v := download(t, vel)
	if speed := math.Hypot(float64(v[0]), float64(v[1])); math.Abs(speed-1) > 1e-6 {
		t.Errorf("speed = %v, want 1 (limit)", speed)
	}
	if x := download(t, posX)[0]; math.Abs(float64(x)-0.6) > 1e-6 {
		t.Errorf("x = %v, want 0.6", x)
	}
}

func TestInitZeroesVelocity(t *testing.T) {
	d, p := newTestProgram(t)
	vel := mustBuffer(t, d, []float32{1, 2, 3, 4, 5, 6})
	if err := p.Launch(compute.KernelInit, compute.Launch{Global: []int{3}}, vel, int32(3)); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	for i, v := range download(t, vel) {
		if v != 0 {
			t.Errorf("velocity[%d] = %v, want 0", i, v)
		}
	}
}
