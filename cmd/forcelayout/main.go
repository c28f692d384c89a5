// Command forcelayout lays out a graph file with the force-directed layout
// and writes the node positions.
//
// Usage:
//
//	forcelayout -in graph.yaml -out positions.yaml [-config layout.yaml]
//	            [-png preview.png] [-device auto|cpu|gpu] [-v]
//
// Graph files are YAML or JSON:
//
//	nodes:
//	  - {id: a, x: 0, y: 0}
//	  - {id: b, locked: true, x: 10, y: 0}
//	edges:
//	  - {source: a, target: b, attrs: {traffic: 12}}
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/forcelayout"
	"github.com/gogpu/forcelayout/compute"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "forcelayout:", err)
		os.Exit(1)
	}
}

type flags struct {
	in, out, config, png, device string
	size                         int
	verbose                      bool
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("forcelayout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "", "input graph file (YAML or JSON)")
	fs.StringVar(&f.out, "out", "", "output positions file (default: stdout)")
	fs.StringVar(&f.config, "config", "", "layout config file (YAML)")
	fs.StringVar(&f.png, "png", "", "write a PNG preview")
	fs.IntVar(&f.size, "size", 1024, "PNG preview size in pixels")
	fs.StringVar(&f.device, "device", "auto", "compute device: auto, cpu or gpu")
	fs.BoolVar(&f.verbose, "v", false, "log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.in == "" {
		return f, errors.New("-in is required")
	}
	return f, nil
}

func openDevice(name string) (compute.Device, error) {
	switch name {
	case "auto":
		return compute.DefaultDevice()
	case "cpu":
		return compute.OpenDevice(compute.DeviceCPU)
	case "gpu":
		return compute.OpenDevice(compute.DeviceWGPU)
	default:
		return nil, fmt.Errorf("unknown device %q", name)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if f.verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	forcelayout.SetLogger(logger)
	defer forcelayout.SetLogger(nil)

	cfg := forcelayout.DefaultConfig()
	if f.config != "" {
		if cfg, err = loadConfig(f.config); err != nil {
			return err
		}
	}
	g, err := readGraph(f.in)
	if err != nil {
		return err
	}

	dev, err := openDevice(f.device)
	if err != nil {
		return err
	}
	defer dev.Close()

	opts := []forcelayout.Option{forcelayout.WithConfig(cfg)}
	if f.verbose {
		opts = append(opts, forcelayout.WithMonitor(progressLogger(logger)))
	}
	l, err := forcelayout.New(dev, opts...)
	if err != nil {
		return err
	}
	defer l.Close()

	start := time.Now()
	res, err := l.Run(ctx, g)
	if err != nil {
		return err
	}
	logger.Info("layout done",
		"device", res.Device,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"partitions", len(res.Partitions),
		"cancelled", res.Cancelled,
		"elapsed", time.Since(start))
	if res.Cancelled {
		logger.Warn("layout interrupted, writing partial positions")
	}

	if err := writePositions(f.out, g); err != nil {
		return err
	}
	if f.png != "" {
		if err := renderPNG(f.png, g, f.size); err != nil {
			return err
		}
	}
	return nil
}

// progressLogger logs every tenth of each phase.
func progressLogger(logger *slog.Logger) forcelayout.Monitor {
	return forcelayout.MonitorFunc(func(p forcelayout.Progress) {
		step := max(p.Total/10, 1)
		if p.Iteration%step != 0 && p.Iteration != p.Total {
			return
		}
		logger.Debug("progress",
			"partition", p.Partition,
			"phase", p.Phase,
			"iteration", p.Iteration,
			"total", p.Total)
	})
}
