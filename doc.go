// Package forcelayout computes force-directed graph layouts on a compute
// device.
//
// # Overview
//
// Each connected component of a graph is flattened into padded arrays,
// uploaded to a GPU or a multi-core CPU, and relaxed by a spring-embedder
// simulation: all-pairs gravity, springs along edges with velocity drag,
// and an optional phase of node-to-edge repulsion. Positions are integrated
// with a fourth-order Runge-Kutta scheme and written back to every node that
// is not locked. Finished components are packed side by side.
//
// # Quick Start
//
//	import "github.com/gogpu/forcelayout"
//
//	g := graph.New()
//	_ = g.AddNode(&graph.Node{ID: "a"})
//	_ = g.AddNode(&graph.Node{ID: "b"})
//	_ = g.AddEdge(&graph.Edge{Source: "a", Target: "b"})
//
//	l, err := forcelayout.New(nil, forcelayout.WithFromScratch(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Close()
//	res, err := l.Run(ctx, g)
//
// A nil device selects compute.DefaultDevice: the wgpu GPU device when one
// is available, the CPU device otherwise. Build with -tags nogpu to leave
// the GPU device out.
//
// # Architecture
//
//   - graph: host graph model, connected components, packing, edge weights
//   - compute: device, buffer and kernel contracts, launch strategies
//   - compute/cpu, compute/wgpu: device implementations
//   - internal/flatten: partition to padded arrays
//   - internal/sim: device buffers, kernel pipeline, time stepping
//
// # Concurrency
//
// A Layout is safe for concurrent use. Partitions of one Run are laid out on
// separate goroutines and serialize on the compiled program.
//
// # Logging
//
// Logging is silent by default. See SetLogger.
package forcelayout
