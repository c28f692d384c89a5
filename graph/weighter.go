package graph

import (
	"fmt"
	"math"
	"strings"
)

// WeightType selects how raw edge attribute values map to layout weights.
type WeightType int

const (
	// WeightNone leaves every edge unweighted.
	WeightNone WeightType = iota

	// WeightLinear maps larger attribute values to larger weights
	// (shorter springs).
	WeightLinear

	// WeightInverse maps larger attribute values to smaller weights.
	WeightInverse

	// WeightLog normalizes -log(value), for p-value-like attributes.
	WeightLog
)

// Weight range produced by EdgeWeighter. Zero is reserved for "unweighted".
const (
	minWeight = 0.1
	maxWeight = 1.0
)

// String returns the configuration name of the weight type.
func (t WeightType) String() string {
	switch t {
	case WeightNone:
		return "none"
	case WeightLinear:
		return "linear"
	case WeightInverse:
		return "inverse"
	case WeightLog:
		return "log"
	default:
		return fmt.Sprintf("WeightType(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t WeightType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *WeightType) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "none":
		*t = WeightNone
	case "linear":
		*t = WeightLinear
	case "inverse":
		*t = WeightInverse
	case "log", "-log":
		*t = WeightLog
	default:
		return fmt.Errorf("graph: unknown weight type %q", b)
	}
	return nil
}

// EdgeWeighter computes normalized edge weights from a numeric attribute.
type EdgeWeighter struct {
	// Attribute names the Edge.Attrs key to read.
	Attribute string `yaml:"attribute"`

	Type WeightType `yaml:"type"`

	// LowerBound and UpperBound clamp raw values before normalization.
	// They are ignored unless LowerBound < UpperBound.
	LowerBound float64 `yaml:"lowerBound"`
	UpperBound float64 `yaml:"upperBound"`

	// DefaultWeight is assigned to edges lacking the attribute.
	// Zero leaves them unweighted.
	DefaultWeight float64 `yaml:"defaultWeight"`
}

// Enabled reports whether w derives weights from an attribute.
func (w EdgeWeighter) Enabled() bool {
	return w.Type != WeightNone && w.Attribute != ""
}

// Apply sets Weight on every edge. Weights land in [0.1, 1]; edges without a
// usable attribute value get DefaultWeight.
func (w EdgeWeighter) Apply(edges []*Edge) {
	if !w.Enabled() {
		for _, e := range edges {
			e.Weight = 0
		}
		return
	}

	raw := make([]float64, len(edges))
	ok := make([]bool, len(edges))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, e := range edges {
		v, found := e.Attrs[w.Attribute]
		if !found || math.IsNaN(v) {
			continue
		}
		if w.LowerBound < w.UpperBound {
			v = math.Min(math.Max(v, w.LowerBound), w.UpperBound)
		}
		if w.Type == WeightLog {
			if v <= 0 {
				continue
			}
			v = -math.Log(v)
		}
		raw[i], ok[i] = v, true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	for i, e := range edges {
		if !ok[i] {
			e.Weight = w.DefaultWeight
			continue
		}
		t := 0.5
		if hi > lo {
			t = (raw[i] - lo) / (hi - lo)
		}
		if w.Type == WeightInverse {
			t = 1 - t
		}
		e.Weight = minWeight + t*(maxWeight-minWeight)
	}
}
