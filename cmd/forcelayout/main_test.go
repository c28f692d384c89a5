package main

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/forcelayout"
	"github.com/gogpu/forcelayout/graph"
)

const squareYAML = `
nodes:
  - {id: a, x: 0, y: 0}
  - {id: b, x: 2, y: 0}
  - {id: c, x: 2, y: 2}
  - {id: d, x: 0, y: 2, locked: true}
edges:
  - {source: a, target: b}
  - {source: b, target: c, attrs: {traffic: 3}}
  - {source: c, target: d, length: 2}
  - {source: d, target: a}
`

const squareJSON = `{
  "nodes": [{"id": "a", "x": 0, "y": 0}, {"id": "b", "x": 2, "y": 0}],
  "edges": [{"source": "a", "target": "b", "weight": 2}]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDecodeGraph(t *testing.T) {
	g, err := decodeGraph([]byte(squareYAML))
	if err != nil {
		t.Fatalf("decodeGraph(yaml) error = %v", err)
	}
	if g.NodeCount() != 4 || g.EdgeCount() != 4 {
		t.Errorf("yaml graph has %d nodes, %d edges, want 4, 4", g.NodeCount(), g.EdgeCount())
	}
	d, ok := g.Node("d")
	if !ok || !d.Locked || d.Y != 2 {
		t.Errorf("node d = %+v, want locked at y=2", d)
	}
	if got := g.Edges()[1].Attrs["traffic"]; got != 3 {
		t.Errorf("edge b->c traffic = %v, want 3", got)
	}
	if got := g.Edges()[2].Length; got != 2 {
		t.Errorf("edge c->d length = %v, want 2", got)
	}

	g, err = decodeGraph([]byte(squareJSON))
	if err != nil {
		t.Fatalf("decodeGraph(json) error = %v", err)
	}
	if g.NodeCount() != 2 || g.Edges()[0].Weight != 2 {
		t.Errorf("json graph decoded wrong: %d nodes, weight %v", g.NodeCount(), g.Edges()[0].Weight)
	}
}

func TestDecodeGraphErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown endpoint", "nodes: [{id: a}]\nedges: [{source: a, target: z}]", graph.ErrNodeNotFound},
		{"duplicate node", "nodes: [{id: a}, {id: a}]", graph.ErrDuplicateNode},
		{"empty id", "nodes: [{x: 1}]", graph.ErrEmptyNodeID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeGraph([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("decodeGraph() error = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := decodeGraph([]byte("nodes: {")); err == nil {
		t.Error("decodeGraph(malformed) succeeded")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial", func(t *testing.T) {
		p := writeFile(t, dir, "partial.yaml", "numIterations: 7\nphysics:\n  drag: 4\n")
		cfg, err := loadConfig(p)
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		def := forcelayout.DefaultConfig()
		if cfg.NumIterations != 7 || cfg.Physics.Drag != 4 {
			t.Errorf("overrides not applied: iterations %d drag %v", cfg.NumIterations, cfg.Physics.Drag)
		}
		if cfg.DefaultSpringLength != def.DefaultSpringLength || cfg.Physics.Gravity != def.Physics.Gravity {
			t.Error("missing keys lost their defaults")
		}
	})

	t.Run("empty", func(t *testing.T) {
		p := writeFile(t, dir, "empty.yaml", "")
		cfg, err := loadConfig(p)
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg != forcelayout.DefaultConfig() {
			t.Error("empty config differs from DefaultConfig")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		p := writeFile(t, dir, "unknown.yaml", "numIteration: 7\n")
		if _, err := loadConfig(p); err == nil {
			t.Error("loadConfig() accepted an unknown key")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		p := writeFile(t, dir, "invalid.yaml", "defaultNodeMass: -1\n")
		if _, err := loadConfig(p); !errors.Is(err, forcelayout.ErrInvalidConfig) {
			t.Errorf("loadConfig() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(dir, "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("loadConfig() error = %v, want ErrNotExist", err)
		}
	})
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	if _, err := parseFlags([]string{"-out", "x.yaml"}, &stderr); err == nil {
		t.Error("parseFlags() without -in succeeded")
	}
	if _, err := parseFlags([]string{"-bogus"}, &stderr); err == nil {
		t.Error("parseFlags() accepted an unknown flag")
	}

	f, err := parseFlags([]string{"-in", "g.yaml", "-device", "cpu", "-v"}, &stderr)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if f.in != "g.yaml" || f.device != "cpu" || !f.verbose || f.size != 1024 {
		t.Errorf("parseFlags() = %+v", f)
	}
}

func TestOpenDeviceUnknown(t *testing.T) {
	if _, err := openDevice("tpu"); err == nil {
		t.Error("openDevice(tpu) succeeded")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "graph.yaml", squareYAML)
	cfg := writeFile(t, dir, "layout.yaml", `
numIterations: 20
defaultSpringCoefficient: 1
defaultSpringLength: 1
physics:
  gravity: -1e-4
  drag: 4
  timeScale: 1e-3
`)
	out := filepath.Join(dir, "positions.yaml")
	pngPath := filepath.Join(dir, "preview.png")

	var stderr bytes.Buffer
	args := []string{"-in", in, "-config", cfg, "-out", out, "-png", pngPath, "-size", "200", "-device", "cpu", "-v"}
	if err := run(context.Background(), args, &stderr); err != nil {
		t.Fatalf("run() error = %v\nstderr:\n%s", err, stderr.String())
	}
	if !strings.Contains(stderr.String(), "layout done") {
		t.Errorf("verbose log lacks the summary:\n%s", stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var gf graphFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		t.Fatalf("positions file: %v", err)
	}
	if len(gf.Nodes) != 4 {
		t.Fatalf("positions file has %d nodes, want 4", len(gf.Nodes))
	}
	for _, n := range gf.Nodes {
		if math.IsNaN(n.X) || math.IsNaN(n.Y) {
			t.Errorf("node %s has NaN position", n.ID)
		}
		if n.ID == "d" && (n.X != 0 || n.Y != 2 || !n.Locked) {
			t.Errorf("locked node moved: %+v", n)
		}
	}

	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("preview is %v, want 200x200", b)
	}
}

func TestRunMissingInput(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-in", filepath.Join(t.TempDir(), "none.yaml"), "-device", "cpu"}, &stderr)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run() error = %v, want ErrNotExist", err)
	}
}

func TestRenderImage(t *testing.T) {
	img, err := renderImage(graph.New(), 100)
	if err != nil {
		t.Fatalf("renderImage(empty) error = %v", err)
	}
	if got := img.RGBAAt(50, 50); got != colBackground {
		t.Errorf("empty preview pixel = %v, want background", got)
	}

	g, err := decodeGraph([]byte(squareYAML))
	if err != nil {
		t.Fatal(err)
	}
	img, err = renderImage(g, 200)
	if err != nil {
		t.Fatalf("renderImage() error = %v", err)
	}
	// Node a sits at the top-left corner of the fitted square.
	if got := img.RGBAAt(previewMargin, previewMargin); got == colBackground {
		t.Error("no node drawn at the top-left corner")
	}
	if err := renderPNG(filepath.Join(t.TempDir(), "x.png"), g, previewMargin); err == nil {
		t.Error("renderPNG() accepted a preview smaller than its margins")
	}
}
