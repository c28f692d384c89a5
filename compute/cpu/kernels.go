// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"math"

	"github.com/gogpu/forcelayout/compute"
)

// kernelTable maps kernel IDs to their Go implementations.
var kernelTable = [compute.KernelCount]kernelFunc{
	compute.KernelInit:                 kernelInit,
	compute.KernelGravity:              kernelGravity,
	compute.KernelPrepareEdgeRepulsion: kernelPrepareEdgeRepulsion,
	compute.KernelEdgeRepulsion:        kernelEdgeRepulsion,
	compute.KernelSpringDrag:           kernelSpringDrag,
	compute.KernelIntegrateRK0:         integrateRK(0),
	compute.KernelIntegrateRK1:         integrateRK(1),
	compute.KernelIntegrateRK2:         integrateRK(2),
	compute.KernelIntegrateRK3:         integrateRK(3),
	compute.KernelIntegrateEuler:       kernelIntegrateEuler,
}

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }

// The pair functions return explicit float32 conversions so the compiler
// cannot fuse them into the caller's accumulation. Tiled and untiled launch
// shapes then round identically.

// gravityPair is the force on node i from node j.
func (e *env) gravityPair(xi, yi, mi, xj, yj, mj float32) (float32, float32) {
	dx, dy := xj-xi, yj-yi
	inv := 1 / sqrt32(dx*dx+dy*dy+e.phys.Softening)
	v := e.phys.Gravity * mi * mj * inv * inv * inv
	return float32(v * dx), float32(v * dy)
}

// edgePair is the repulsion on a node at (px, py) from one edge segment.
func (e *env) edgePair(px, py, mi, sx, sy, tx, ty, length, ms, me float32) (float32, float32) {
	if length <= 0 {
		return 0, 0
	}
	rx, ry := px-sx, py-sy
	u := rx*tx + ry*ty
	margin := e.phys.EdgeMargin * length
	if u <= margin || u >= length-margin {
		return 0, 0
	}
	// Signed distance along the normal (-ty, tx).
	h := ry*tx - rx*ty
	inv := 1 / sqrt32(h*h+e.phys.Softening)
	v := e.phys.EdgeRepulsion * mi * (ms + me) * 0.5 * h * inv * inv * inv
	return float32(-v * ty), float32(v * tx)
}

// springPair is the Hookean force on node i from its neighbour j.
func springPair(xi, yi, xj, yj, coeff, rest float32) (float32, float32) {
	dx, dy := xj-xi, yj-yi
	d := sqrt32(dx*dx + dy*dy)
	if d <= 0 {
		return 0, 0
	}
	f := coeff * (d - rest) / d
	return float32(f * dx), float32(f * dy)
}

// kernelInit: velocity, numNodes.
func kernelInit(e *env, g *group) {
	vel := e.f32buf(0)
	n := e.i32(1)
	g.gridStride(n, func(i int) {
		vel[2*i] = 0
		vel[2*i+1] = 0
	})
}

// kernelGravity: posX, posY, mass, force, numNodes, numNodesPadded.
//
// With three scratch tiles every work-item owns one node and the group walks
// the padded node range tile by tile. Without scratch each work-item strides
// over the padded nodes. Both sum j in ascending order.
func kernelGravity(e *env, g *group) {
	posX, posY, mass, force := e.f32buf(0), e.f32buf(1), e.f32buf(2), e.f32buf(3)
	n, np := e.i32(4), e.i32(5)

	if len(g.scratch) < 3 {
		g.gridStride(np, func(i int) {
			var fx, fy float32
			if i < n {
				xi, yi, mi := posX[i], posY[i], mass[i]
				for j := 0; j < np; j++ {
					if j == i {
						continue
					}
					dfx, dfy := e.gravityPair(xi, yi, mi, posX[j], posY[j], mass[j])
					fx += dfx
					fy += dfy
				}
			}
			force[2*i] = fx
			force[2*i+1] = fy
		})
		return
	}

	b := g.local[0]
	base := g.id[0] * b
	tx, ty, tm := g.scratch[0][:b], g.scratch[1][:b], g.scratch[2][:b]
	clear(g.accX)
	clear(g.accY)

	for tile := 0; tile < np; tile += b {
		for l := 0; l < b; l++ {
			if j := tile + l; j < np {
				tx[l], ty[l], tm[l] = posX[j], posY[j], mass[j]
			} else {
				tx[l], ty[l], tm[l] = 0, 0, 0
			}
		}
		for l := 0; l < b; l++ {
			i := base + l
			if i >= n {
				continue
			}
			xi, yi, mi := posX[i], posY[i], mass[i]
			for k := 0; k < b && tile+k < np; k++ {
				if tile+k == i {
					continue
				}
				dfx, dfy := e.gravityPair(xi, yi, mi, tx[k], ty[k], tm[k])
				g.accX[l] += dfx
				g.accY[l] += dfy
			}
		}
	}
	for l := 0; l < b; l++ {
		if i := base + l; i < np {
			force[2*i] = g.accX[l]
			force[2*i+1] = g.accY[l]
		}
	}
}

// kernelPrepareEdgeRepulsion: posX, posY, uniqueSources, uniqueTargets,
// startX, startY, tangentX, tangentY, currentLength, numEdgesUnique.
func kernelPrepareEdgeRepulsion(e *env, g *group) {
	posX, posY := e.f32buf(0), e.f32buf(1)
	src, tgt := e.i32buf(2), e.i32buf(3)
	startX, startY := e.f32buf(4), e.f32buf(5)
	tanX, tanY, length := e.f32buf(6), e.f32buf(7), e.f32buf(8)
	ne := e.i32(9)

	g.gridStride(ne, func(p int) {
		s, t := src[p], tgt[p]
		sx, sy := posX[s], posY[s]
		dx, dy := posX[t]-sx, posY[t]-sy
		l := sqrt32(dx*dx + dy*dy)
		startX[p], startY[p] = sx, sy
		length[p] = l
		if l > 0 {
			tanX[p], tanY[p] = dx/l, dy/l
		} else {
			tanX[p], tanY[p] = 0, 0
		}
	})
}

// kernelEdgeRepulsion: posX, posY, mass, startX, startY, tangentX,
// tangentY, currentLength, massStart, massEnd, force, numNodes,
// numEdgesUniquePadded.
func kernelEdgeRepulsion(e *env, g *group) {
	posX, posY, mass := e.f32buf(0), e.f32buf(1), e.f32buf(2)
	startX, startY := e.f32buf(3), e.f32buf(4)
	tanX, tanY, length := e.f32buf(5), e.f32buf(6), e.f32buf(7)
	massStart, massEnd := e.f32buf(8), e.f32buf(9)
	force := e.f32buf(10)
	n, nep := e.i32(11), e.i32(12)

	if len(g.scratch) < 7 {
		g.gridStride(n, func(i int) {
			px, py, mi := posX[i], posY[i], mass[i]
			var fx, fy float32
			for p := 0; p < nep; p++ {
				dfx, dfy := e.edgePair(px, py, mi, startX[p], startY[p], tanX[p], tanY[p],
					length[p], massStart[p], massEnd[p])
				fx += dfx
				fy += dfy
			}
			force[2*i] += fx
			force[2*i+1] += fy
		})
		return
	}

	b := g.local[0]
	base := g.id[0] * b
	s := g.scratch
	clear(g.accX)
	clear(g.accY)

	for tile := 0; tile < nep; tile += b {
		for l := 0; l < b; l++ {
			if p := tile + l; p < nep {
				s[0][l], s[1][l], s[2][l], s[3][l] = startX[p], startY[p], tanX[p], tanY[p]
				s[4][l], s[5][l], s[6][l] = length[p], massStart[p], massEnd[p]
			} else {
				s[4][l], s[5][l], s[6][l] = 0, 0, 0
			}
		}
		for l := 0; l < b; l++ {
			i := base + l
			if i >= n {
				continue
			}
			px, py, mi := posX[i], posY[i], mass[i]
			for k := 0; k < b && tile+k < nep; k++ {
				dfx, dfy := e.edgePair(px, py, mi, s[0][k], s[1][k], s[2][k], s[3][k],
					s[4][k], s[5][k], s[6][k])
				g.accX[l] += dfx
				g.accY[l] += dfy
			}
		}
	}
	for l := 0; l < b; l++ {
		if i := base + l; i < n {
			force[2*i] += g.accX[l]
			force[2*i+1] += g.accY[l]
		}
	}
}

// kernelSpringDrag: posX, posY, edges, edgeOffsets, edgeCounts, edgeCoeffs,
// edgeLengths, velocity, force, numNodes.
//
// A 2-D launch with compute.SpringLanes lanes along dimension 0 splits each
// node's edge list across the lanes and reduces the partial sums through
// scratch. Otherwise each work-item handles whole nodes.
func kernelSpringDrag(e *env, g *group) {
	posX, posY := e.f32buf(0), e.f32buf(1)
	edges, offsets, counts := e.i32buf(2), e.i32buf(3), e.i32buf(4)
	coeffs, lengths := e.f32buf(5), e.f32buf(6)
	vel, force := e.f32buf(7), e.f32buf(8)
	n := e.i32(9)
	drag := e.phys.Drag

	node := func(i, lane, lanes int) (float32, float32) {
		xi, yi := posX[i], posY[i]
		var fx, fy float32
		end := int(offsets[i] + counts[i])
		for k := int(offsets[i]) + lane; k < end; k += lanes {
			j := edges[k]
			dfx, dfy := springPair(xi, yi, posX[j], posY[j], coeffs[k], lengths[k])
			fx += dfx
			fy += dfy
		}
		return fx, fy
	}
	commit := func(i int, fx, fy float32) {
		force[2*i] += fx - float32(drag*vel[2*i])
		force[2*i+1] += fy - float32(drag*vel[2*i+1])
	}

	lanes := g.local[0]
	if len(g.scratch) == 0 || lanes != compute.SpringLanes {
		g.gridStride(n, func(i int) {
			fx, fy := node(i, 0, 1)
			commit(i, fx, fy)
		})
		return
	}

	rows := g.local[1]
	partial := g.scratch[0]
	for r := 0; r < rows; r++ {
		i := g.id[1]*rows + r
		for lane := 0; lane < lanes; lane++ {
			var fx, fy float32
			if i < n {
				fx, fy = node(i, lane, lanes)
			}
			partial[(r*lanes+lane)*2] = fx
			partial[(r*lanes+lane)*2+1] = fy
		}
	}
	for r := 0; r < rows; r++ {
		i := g.id[1]*rows + r
		if i >= n {
			continue
		}
		var fx, fy float32
		for lane := 0; lane < lanes; lane++ {
			fx += partial[(r*lanes+lane)*2]
			fy += partial[(r*lanes+lane)*2+1]
		}
		commit(i, fx, fy)
	}
}

// limit scales (dx, dy) down to the speed limit.
func (e *env) limit(dx, dy float32) (float32, float32) {
	s := sqrt32(dx*dx + dy*dy)
	if lim := e.phys.SpeedLimit; s > lim {
		return dx * lim / s, dy * lim / s
	}
	return dx, dy
}

// integrateRK returns the kernel for Runge-Kutta stage 0..3.
//
// RK0: posX, posY, mass, nodeK, nodeL, velocity, force, timestep, numNodes.
// RK1..RK3 take stageWeight before timestep.
//
// nodeK holds k0..k2 and the stage start position (8 floats per node),
// nodeL holds l0..l2 (6 floats). k3 and l3 are used where they are computed.
func integrateRK(stage int) kernelFunc {
	return func(e *env, g *group) {
		posX, posY, mass := e.f32buf(0), e.f32buf(1), e.f32buf(2)
		nodeK, nodeL, vel, force := e.f32buf(3), e.f32buf(4), e.f32buf(5), e.f32buf(6)

		w, ti := float32(1), 7
		if stage > 0 {
			w, ti = e.f32(7), 8
		}
		dt := e.f32(ti) * e.phys.TimeScale
		n := e.i32(ti + 1)

		g.gridStride(n, func(i int) {
			x, y := posX[i], posY[i]
			vx, vy := vel[2*i], vel[2*i+1]
			c := w * dt / mass[i]
			fx, fy := force[2*i], force[2*i+1]
			k := nodeK[8*i : 8*i+8]
			l := nodeL[6*i : 6*i+6]

			switch stage {
			case 0:
				k[6], k[7] = x, y
				k[0], k[1] = dt*vx, dt*vy
				l[0], l[1] = c*fx, c*fy
				posX[i], posY[i] = x+0.5*k[0], y+0.5*k[1]
			case 1:
				k[2], k[3] = dt*(vx+0.5*l[0]), dt*(vy+0.5*l[1])
				l[2], l[3] = c*fx, c*fy
				posX[i], posY[i] = k[6]+0.5*k[2], k[7]+0.5*k[3]
			case 2:
				k[4], k[5] = dt*(vx+0.5*l[2]), dt*(vy+0.5*l[3])
				l[4], l[5] = c*fx, c*fy
				posX[i], posY[i] = k[6]+k[4], k[7]+k[5]
			case 3:
				k3x, k3y := dt*(vx+l[4]), dt*(vy+l[5])
				l3x, l3y := c*fx, c*fy
				posX[i] = k[6] + (k[0]+k3x)/6 + (k[2]+k[4])/3
				posY[i] = k[7] + (k[1]+k3y)/6 + (k[3]+k[5])/3
				dvx, dvy := e.limit((l[0]+l3x)/6+(l[2]+l[4])/3, (l[1]+l3y)/6+(l[3]+l[5])/3)
				vel[2*i], vel[2*i+1] = vx+dvx, vy+dvy
			}
		})
	}
}

// kernelIntegrateEuler: posX, posY, mass, velocity, force, timestep,
// numNodes.
func kernelIntegrateEuler(e *env, g *group) {
	posX, posY, mass := e.f32buf(0), e.f32buf(1), e.f32buf(2)
	vel, force := e.f32buf(3), e.f32buf(4)
	dt := e.f32(5) * e.phys.TimeScale
	n := e.i32(6)

	g.gridStride(n, func(i int) {
		c := dt / mass[i]
		dvx, dvy := e.limit(c*force[2*i], c*force[2*i+1])
		vx, vy := vel[2*i]+dvx, vel[2*i+1]+dvy
		vel[2*i], vel[2*i+1] = vx, vy
		posX[i] += dt * vx
		posY[i] += dt * vy
	})
}
