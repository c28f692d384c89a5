package compute

import (
	"errors"
	"reflect"
	"testing"
)

func TestRoundUp(t *testing.T) {
	tests := []struct {
		n, m, want int
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{5, 1, 5},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := RoundUp(tt.n, tt.m); got != tt.want {
			t.Errorf("RoundUp(%d, %d) = %d, want %d", tt.n, tt.m, got, tt.want)
		}
	}
}

func TestGPUStrategyGeometry(t *testing.T) {
	s := NewGPUStrategy(64)
	p := Problem{NumNodes: 100, NumNodesPadded: 112, NumEdgesUnique: 300, NumEdgesUniquePadded: 304}

	tests := []struct {
		k    KernelID
		want Launch
	}{
		{KernelInit, Launch{Global: []int{128}, Local: []int{64}}},
		{KernelGravity, Launch{Global: []int{128}, Local: []int{64}, Scratch: []int{256, 256, 256}}},
		{KernelEdgeRepulsion, Launch{Global: []int{128}, Local: []int{64},
			Scratch: []int{256, 256, 256, 256, 256, 256, 256}}},
		{KernelPrepareEdgeRepulsion, Launch{Global: []int{320}, Local: []int{64}}},
		{KernelSpringDrag, Launch{Global: []int{16, 100}, Local: []int{16, 4}, Scratch: []int{512}}},
		{KernelIntegrateRK2, Launch{Global: []int{128}, Local: []int{64}}},
	}
	for _, tt := range tests {
		got := s.Geometry(tt.k, p)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Geometry(%v) = %+v, want %+v", tt.k, got, tt.want)
		}
		if _, err := got.Groups(); err != nil {
			t.Errorf("Geometry(%v).Groups() error = %v", tt.k, err)
		}
	}
}

func TestCPUStrategyGeometry(t *testing.T) {
	s := NewCPUStrategy(8)
	p := Problem{NumNodes: 21, NumNodesPadded: 32, NumEdgesUnique: 10, NumEdgesUniquePadded: 16}

	tests := []struct {
		k    KernelID
		want Launch
	}{
		{KernelInit, Launch{Global: []int{21}}},
		{KernelGravity, Launch{Global: []int{16}}},
		{KernelEdgeRepulsion, Launch{Global: []int{16}}},
		{KernelPrepareEdgeRepulsion, Launch{Global: []int{16}, Local: []int{8}}},
		{KernelSpringDrag, Launch{Global: []int{21}, Local: []int{1}}},
		{KernelIntegrateRK0, Launch{Global: []int{24}, Local: []int{8}}},
		{KernelIntegrateEuler, Launch{Global: []int{24}, Local: []int{8}}},
	}
	for _, tt := range tests {
		got := s.Geometry(tt.k, p)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Geometry(%v) = %+v, want %+v", tt.k, got, tt.want)
		}
	}
}

func TestRepulsionCap(t *testing.T) {
	p := Problem{NumNodes: 10, NumNodesPadded: 16, NumEdgesUnique: 1_000_000}
	for _, s := range []LaunchStrategy{NewGPUStrategy(256), NewCPUStrategy(8), NewGPUStrategy(48)} {
		l := s.Geometry(KernelPrepareEdgeRepulsion, p)
		if l.Global[0] > MaxRepulsionWorkItems {
			t.Errorf("%T global = %d, want <= %d", s, l.Global[0], MaxRepulsionWorkItems)
		}
		if _, err := l.Groups(); err != nil {
			t.Errorf("%T Groups() error = %v", s, err)
		}
	}
}

func TestGPUStrategyBlockRounding(t *testing.T) {
	if got := NewGPUStrategy(1).Block; got != 16 {
		t.Errorf("NewGPUStrategy(1).Block = %d, want 16", got)
	}
	if got := NewGPUStrategy(40).Block; got != 48 {
		t.Errorf("NewGPUStrategy(40).Block = %d, want 48", got)
	}
}

func TestLaunchGroups(t *testing.T) {
	g, err := Launch{Global: []int{16, 30}, Local: []int{16, 3}}.Groups()
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if !reflect.DeepEqual(g, []int{1, 10}) {
		t.Errorf("Groups() = %v, want [1 10]", g)
	}

	bad := []Launch{
		{},
		{Global: []int{10}, Local: []int{4}},
		{Global: []int{8}, Local: []int{4, 1}},
		{Global: []int{1, 1, 1, 1}},
	}
	for _, l := range bad {
		if _, err := l.Groups(); !errors.Is(err, ErrGeometry) {
			t.Errorf("Groups(%+v) error = %v, want ErrGeometry", l, err)
		}
	}
}
