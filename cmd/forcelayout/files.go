package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/forcelayout"
	"github.com/gogpu/forcelayout/graph"
)

type nodeRecord struct {
	ID     string  `yaml:"id"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Locked bool    `yaml:"locked,omitempty"`
	Mass   float64 `yaml:"mass,omitempty"`
}

type edgeRecord struct {
	Source      string             `yaml:"source"`
	Target      string             `yaml:"target"`
	Weight      float64            `yaml:"weight,omitempty"`
	Coefficient float64            `yaml:"coefficient,omitempty"`
	Length      float64            `yaml:"length,omitempty"`
	Attrs       map[string]float64 `yaml:"attrs,omitempty"`
}

type graphFile struct {
	Nodes []nodeRecord `yaml:"nodes"`
	Edges []edgeRecord `yaml:"edges,omitempty"`
}

// loadConfig reads a YAML config on top of forcelayout.DefaultConfig, so
// missing keys keep their defaults.
func loadConfig(path string) (forcelayout.Config, error) {
	cfg := forcelayout.DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// readGraph reads a YAML graph file. JSON is valid YAML, so JSON files load
// too.
func readGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeGraph(data)
}

func decodeGraph(data []byte) (*graph.Graph, error) {
	var gf graphFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	g := graph.New()
	for _, n := range gf.Nodes {
		err := g.AddNode(&graph.Node{ID: n.ID, X: n.X, Y: n.Y, Locked: n.Locked, Mass: n.Mass})
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	for i, e := range gf.Edges {
		err := g.AddEdge(&graph.Edge{
			Source:      e.Source,
			Target:      e.Target,
			Weight:      e.Weight,
			Coefficient: e.Coefficient,
			Length:      e.Length,
			Attrs:       e.Attrs,
		})
		if err != nil {
			return nil, fmt.Errorf("edge %d (%s -> %s): %w", i, e.Source, e.Target, err)
		}
	}
	return g, nil
}

// writePositions writes the node positions as YAML to path, or to stdout
// when path is empty.
func writePositions(path string, g *graph.Graph) error {
	var gf graphFile
	for _, n := range g.Nodes() {
		gf.Nodes = append(gf.Nodes, nodeRecord{ID: n.ID, X: n.X, Y: n.Y, Locked: n.Locked})
	}
	data, err := yaml.Marshal(&gf)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
