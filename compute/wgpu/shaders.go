// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/forcelayout/compute"
)

//go:embed shaders/prelude.wgsl
var shaderPrelude string

//go:embed shaders/init.wgsl
var shaderInit string

//go:embed shaders/gravity.wgsl
var shaderGravity string

//go:embed shaders/prepare_edge_repulsion.wgsl
var shaderPrepareEdgeRepulsion string

//go:embed shaders/edge_repulsion.wgsl
var shaderEdgeRepulsion string

//go:embed shaders/spring_drag.wgsl
var shaderSpringDrag string

//go:embed shaders/rk0.wgsl
var shaderRK0 string

//go:embed shaders/rk1.wgsl
var shaderRK1 string

//go:embed shaders/rk2.wgsl
var shaderRK2 string

//go:embed shaders/rk3.wgsl
var shaderRK3 string

//go:embed shaders/euler.wgsl
var shaderEuler string

var kernelSources = [compute.KernelCount]string{
	compute.KernelInit:                 shaderInit,
	compute.KernelGravity:              shaderGravity,
	compute.KernelPrepareEdgeRepulsion: shaderPrepareEdgeRepulsion,
	compute.KernelEdgeRepulsion:        shaderEdgeRepulsion,
	compute.KernelSpringDrag:           shaderSpringDrag,
	compute.KernelIntegrateRK0:         shaderRK0,
	compute.KernelIntegrateRK1:         shaderRK1,
	compute.KernelIntegrateRK2:         shaderRK2,
	compute.KernelIntegrateRK3:         shaderRK3,
	compute.KernelIntegrateEuler:       shaderEuler,
}

// wgslFloat formats v as a WGSL float literal.
func wgslFloat(v float32) string {
	s := strconv.FormatFloat(float64(v), 'e', -1, 32)
	if strings.HasPrefix(s, "-") {
		return "(" + s + ")"
	}
	return s
}

// kernelSource returns the complete WGSL of kernel k for a work-group of
// block invocations. block must be a multiple of compute.SpringLanes.
func kernelSource(k compute.KernelID, block int, phys compute.Physics) (string, error) {
	if !k.Valid() || kernelSources[k] == "" {
		return "", fmt.Errorf("unknown kernel %v", k)
	}
	if block <= 0 || block%compute.SpringLanes != 0 {
		return "", fmt.Errorf("block size %d is not a multiple of %d", block, compute.SpringLanes)
	}
	r := strings.NewReplacer(
		"{{BLOCK}}", strconv.Itoa(block),
		"{{LANES}}", strconv.Itoa(compute.SpringLanes),
		"{{ROWS}}", strconv.Itoa(block/compute.SpringLanes),
		"{{GRAVITY}}", wgslFloat(phys.Gravity),
		"{{DRAG}}", wgslFloat(phys.Drag),
		"{{EDGE_REPULSION}}", wgslFloat(phys.EdgeRepulsion),
		"{{SOFTENING}}", wgslFloat(phys.Softening),
		"{{TIME_SCALE}}", wgslFloat(phys.TimeScale),
		"{{SPEED_LIMIT}}", wgslFloat(phys.SpeedLimit),
		"{{EDGE_MARGIN}}", wgslFloat(phys.EdgeMargin),
	)
	return r.Replace(shaderPrelude + "\n" + kernelSources[k]), nil
}

// compileSPIRV compiles WGSL to SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(b))
	}
	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return code, nil
}
