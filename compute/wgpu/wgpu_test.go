// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/compute/cpu"
)

const spirvMagic = 0x07230203

func TestWGSLFloat(t *testing.T) {
	tests := []struct {
		v    float32
		want string
	}{
		{1e-4, "1e-04"},
		{0.25, "2.5e-01"},
		{-1, "(-1e+00)"},
		{0, "0e+00"},
	}
	for _, tt := range tests {
		if got := wgslFloat(tt.v); got != tt.want {
			t.Errorf("wgslFloat(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestKernelSource(t *testing.T) {
	phys := compute.DefaultPhysics()
	for _, k := range compute.AllKernels() {
		src, err := kernelSource(k, 64, phys)
		if err != nil {
			t.Fatalf("kernelSource(%v) error = %v", k, err)
		}
		if strings.Contains(src, "{{") {
			t.Errorf("%v: unreplaced token in source", k)
		}
		want := "@workgroup_size(64)"
		if k == compute.KernelSpringDrag {
			want = "@workgroup_size(16, 4)"
		}
		if !strings.Contains(src, want) {
			t.Errorf("%v: source lacks %s", k, want)
		}
		if !strings.Contains(src, "const GRAVITY: f32 = (-1e+00);") {
			t.Errorf("%v: physics constants not substituted", k)
		}
	}

	if _, err := kernelSource(compute.KernelGravity, 24, phys); err == nil {
		t.Error("kernelSource(block 24) succeeded, want error")
	}
	if _, err := kernelSource(compute.KernelCount, 64, phys); err == nil {
		t.Error("kernelSource(KernelCount) succeeded, want error")
	}
}

func TestCompileKernels(t *testing.T) {
	for _, k := range compute.AllKernels() {
		src, err := kernelSource(k, DefaultBlockSize, compute.DefaultPhysics())
		if err != nil {
			t.Fatal(err)
		}
		code, err := compileSPIRV(src)
		if err != nil {
			t.Skipf("naga cannot compile %v: %v", k, err)
		}
		if len(code) == 0 || code[0] != spirvMagic {
			t.Errorf("%v: SPIR-V does not start with the magic number", k)
		}
	}
}

func TestBindLayoutEntries(t *testing.T) {
	tests := []struct {
		k        compute.KernelID
		n        int
		writable []uint32
	}{
		{compute.KernelInit, 2, []uint32{1}},
		{compute.KernelGravity, 5, []uint32{4}},
		{compute.KernelEdgeRepulsion, 12, []uint32{11}},
		{compute.KernelSpringDrag, 10, []uint32{9}},
		{compute.KernelIntegrateEuler, 6, []uint32{1, 2, 4}},
	}
	for _, tt := range tests {
		entries := bindLayoutEntries(tt.k)
		if len(entries) != tt.n {
			t.Errorf("%v: %d entries, want %d", tt.k, len(entries), tt.n)
			continue
		}
		if entries[0].Buffer.Type != gputypes.BufferBindingTypeUniform {
			t.Errorf("%v: binding 0 is not the params uniform", tt.k)
		}
		var writable []uint32
		for _, e := range entries[1:] {
			if e.Buffer.Type == gputypes.BufferBindingTypeStorage {
				writable = append(writable, e.Binding)
			}
		}
		if len(writable) != len(tt.writable) {
			t.Errorf("%v: writable bindings %v, want %v", tt.k, writable, tt.writable)
			continue
		}
		for i := range writable {
			if writable[i] != tt.writable[i] {
				t.Errorf("%v: writable bindings %v, want %v", tt.k, writable, tt.writable)
				break
			}
		}
		if len(entries)-1 > requiredStorageBuffers {
			t.Errorf("%v binds %d storage buffers", tt.k, len(entries)-1)
		}
	}
}

func TestPackParams(t *testing.T) {
	// IntegrateRK2 scalars: stageWeight, timestep, numNodes.
	got := packParams([]any{nil, nil, float32(1), float32(0.25), int32(7)})
	words := make([]int32, 4)
	unpackWords(got, words)
	if words[0] != 7 || words[1] != 0 {
		t.Errorf("ints = %v, want [7 0]", words[:2])
	}
	floats := make([]float32, 4)
	unpackWords(got, floats)
	if floats[2] != 1 || floats[3] != 0.25 {
		t.Errorf("floats = %v, want [1 0.25]", floats[2:])
	}
}

func TestPackWords(t *testing.T) {
	f := []float32{1.5, -2, float32(math.Inf(1))}
	gotF := make([]float32, 3)
	unpackWords(packWords(f), gotF)
	for i := range f {
		if gotF[i] != f[i] {
			t.Errorf("float %d = %v, want %v", i, gotF[i], f[i])
		}
	}

	n := []int32{0, -1, math.MaxInt32}
	gotN := make([]int32, 3)
	unpackWords(packWords(n), gotN)
	for i := range n {
		if gotN[i] != n[i] {
			t.Errorf("int %d = %v, want %v", i, gotN[i], n[i])
		}
	}
}

type mockDevice struct{}

func (m *mockDevice) Poll(bool) {}
func (m *mockDevice) Destroy()  {}

type mockQueue struct{}

type mockAdapter struct{}

type mockProvider struct{}

func (mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

type wrongHALProvider struct{ mockProvider }

func (wrongHALProvider) HalDevice() any { return "device" }
func (wrongHALProvider) HalQueue() any  { return "queue" }

func TestNewDeviceFromProviderRejectsNonHAL(t *testing.T) {
	for _, p := range []gpucontext.DeviceProvider{mockProvider{}, wrongHALProvider{}} {
		if _, err := NewDeviceFromProvider(p); !errors.Is(err, compute.ErrNoDevice) {
			t.Errorf("NewDeviceFromProvider(%T) error = %v, want ErrNoDevice", p, err)
		}
	}
}

func openOrSkip(t *testing.T) *Device {
	t.Helper()
	d, err := Open()
	if err != nil {
		t.Skipf("no GPU: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// TestGravityMatchesCPU runs CalcForcesGravity on the GPU and on the CPU
// device and compares the forces.
func TestGravityMatchesCPU(t *testing.T) {
	gpu := openOrSkip(t)
	host := cpu.New(cpu.WithWorkers(1))
	defer host.Close()

	const n, np = 37, 48
	posX, posY, mass := make([]float32, np), make([]float32, np), make([]float32, np)
	for i := range n {
		posX[i] = float32(i%7) * 1.5
		posY[i] = float32(i/7) * 2.25
		mass[i] = 3
	}
	prob := compute.Problem{NumNodes: n, NumNodesPadded: np}

	run := func(d compute.Device) []float32 {
		t.Helper()
		prog, err := d.BuildProgram([]compute.KernelID{compute.KernelGravity}, compute.DefaultPhysics())
		if err != nil {
			t.Skipf("%s: build program: %v", d.Name(), err)
		}
		defer prog.Close()

		bx, _ := d.NewBuffer("posX", posX)
		by, _ := d.NewBuffer("posY", posY)
		bm, _ := d.NewBuffer("mass", mass)
		bf, err := d.NewZeroBuffer("force", compute.Float32, 2*np)
		if err != nil {
			t.Fatal(err)
		}
		defer func() {
			for _, b := range []compute.Buffer{bx, by, bm, bf} {
				_ = b.Free()
			}
		}()

		l := compute.StrategyFor(d).Geometry(compute.KernelGravity, prob)
		if err := prog.Launch(compute.KernelGravity, l, bx, by, bm, bf, int32(n), int32(np)); err != nil {
			t.Fatalf("%s: Launch() error = %v", d.Name(), err)
		}
		if err := prog.Finish(); err != nil {
			t.Fatal(err)
		}
		out := make([]float32, 2*np)
		if err := bf.Download(out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	want, got := run(host), run(gpu)
	for i := range want {
		if d := math.Abs(float64(got[i] - want[i])); d > 1e-4*math.Max(1, math.Abs(float64(want[i]))) {
			t.Errorf("force[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLaunchRejectsForeignGeometry(t *testing.T) {
	d := openOrSkip(t)
	prog, err := d.BuildProgram([]compute.KernelID{compute.KernelInit}, compute.DefaultPhysics())
	if err != nil {
		t.Skipf("build program: %v", err)
	}
	defer prog.Close()

	vel, err := d.NewZeroBuffer("velocity", compute.Float32, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer vel.Free()

	cpuShaped := compute.NewCPUStrategy(4).Geometry(compute.KernelInit, compute.Problem{NumNodes: 4, NumNodesPadded: 16})
	if err := prog.Launch(compute.KernelInit, cpuShaped, vel, int32(4)); !errors.Is(err, compute.ErrGeometry) {
		t.Errorf("Launch(cpu geometry) error = %v, want ErrGeometry", err)
	}
}
