package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/go-text/typesetting/di"
	gtfont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/gogpu/forcelayout/graph"
)

const (
	previewMargin  = 32
	nodeRadius     = 4
	edgeWidth      = 1
	labelSize      = 11
	maxLabelsDrawn = 500
)

var (
	colBackground = color.RGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}
	colEdge       = color.RGBA{R: 0x90, G: 0x9c, B: 0xa8, A: 0xc0}
	colNode       = color.RGBA{R: 0x1f, G: 0x6f, B: 0xb4, A: 0xff}
	colLocked     = color.RGBA{R: 0xc0, G: 0x39, B: 0x2b, A: 0xff}
	colLabel      = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
)

// labeler draws centred node labels. Glyphs are rasterized with an
// x/image face; the centring width comes from HarfBuzz shaping so kerning
// is accounted for.
type labeler struct {
	face   xfont.Face
	shaped *gtfont.Face
	shaper shaping.HarfbuzzShaper
	size   fixed.Int26_6
}

func newLabeler(size float64) (*labeler, error) {
	otf, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(otf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: xfont.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	shaped, err := gtfont.ParseTTF(bytes.NewReader(goregular.TTF))
	if err != nil {
		_ = face.Close()
		return nil, fmt.Errorf("parse font for shaping: %w", err)
	}
	return &labeler{face: face, shaped: shaped, size: fixed.Int26_6(size * 64)}, nil
}

func (l *labeler) Close() error { return l.face.Close() }

// width returns the shaped advance of s.
func (l *labeler) width(s string) fixed.Int26_6 {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}
	out := l.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      l.shaped,
		Size:      l.size,
		Script:    language.LookupScript(runes[0]),
		Language:  language.NewLanguage("en"),
	})
	return out.Advance
}

// draw writes s centred horizontally on x with its baseline at y.
func (l *labeler) draw(dst draw.Image, s string, x, y float64) {
	d := &xfont.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(colLabel),
		Face: l.face,
	}
	d.Dot = fixed.Point26_6{
		X: fixed.Int26_6(x*64) - l.width(s)/2,
		Y: fixed.Int26_6(y * 64),
	}
	d.DrawString(s)
}

// viewport maps layout coordinates into a size x size image.
type viewport struct {
	minX, minY, scale float64
	offX, offY        float64
}

func fit(nodes []*graph.Node, size int) viewport {
	p := &graph.Partition{Nodes: nodes}
	minX, minY, maxX, maxY := p.Bounds()
	w, h := maxX-minX, maxY-minY
	inner := float64(size - 2*previewMargin)
	scale := 1.0
	if span := math.Max(w, h); span > 0 {
		scale = inner / span
	}
	return viewport{
		minX:  minX,
		minY:  minY,
		scale: scale,
		offX:  previewMargin + (inner-w*scale)/2,
		offY:  previewMargin + (inner-h*scale)/2,
	}
}

func (v viewport) point(n *graph.Node) (float32, float32) {
	return float32(v.offX + (n.X-v.minX)*v.scale), float32(v.offY + (n.Y-v.minY)*v.scale)
}

// line rasterizes a segment as a thin quad.
func line(r *vector.Rasterizer, x0, y0, x1, y1, width float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	r.MoveTo(x0+nx, y0+ny)
	r.LineTo(x1+nx, y1+ny)
	r.LineTo(x1-nx, y1-ny)
	r.LineTo(x0-nx, y0-ny)
	r.ClosePath()
}

// disc rasterizes a circle as four cubic arcs.
func disc(r *vector.Rasterizer, cx, cy, rad float32) {
	const k = 0.5522847498
	c := rad * k
	r.MoveTo(cx+rad, cy)
	r.CubeTo(cx+rad, cy+c, cx+c, cy+rad, cx, cy+rad)
	r.CubeTo(cx-c, cy+rad, cx-rad, cy+c, cx-rad, cy)
	r.CubeTo(cx-rad, cy-c, cx-c, cy-rad, cx, cy-rad)
	r.CubeTo(cx+c, cy-rad, cx+rad, cy-c, cx+rad, cy)
	r.ClosePath()
}

// renderImage draws edges, then nodes, then labels for graphs of at most
// maxLabelsDrawn nodes.
func renderImage(g *graph.Graph, size int) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	nodes := g.Nodes()
	if len(nodes) == 0 {
		return img, nil
	}
	vp := fit(nodes, size)

	r := vector.NewRasterizer(size, size)
	for _, e := range g.Edges() {
		s, _ := g.Node(e.Source)
		t, _ := g.Node(e.Target)
		x0, y0 := vp.point(s)
		x1, y1 := vp.point(t)
		line(r, x0, y0, x1, y1, edgeWidth)
	}
	r.Draw(img, img.Bounds(), image.NewUniform(colEdge), image.Point{})

	for _, locked := range []bool{false, true} {
		r.Reset(size, size)
		col := colNode
		if locked {
			col = colLocked
		}
		for _, n := range nodes {
			if n.Locked == locked {
				x, y := vp.point(n)
				disc(r, x, y, nodeRadius)
			}
		}
		r.Draw(img, img.Bounds(), image.NewUniform(col), image.Point{})
	}

	if len(nodes) > maxLabelsDrawn {
		return img, nil
	}
	lb, err := newLabeler(labelSize)
	if err != nil {
		return nil, err
	}
	defer lb.Close()
	for _, n := range nodes {
		x, y := vp.point(n)
		lb.draw(img, n.ID, float64(x), float64(y)-nodeRadius-3)
	}
	return img, nil
}

func renderPNG(path string, g *graph.Graph, size int) error {
	if size <= 2*previewMargin {
		return fmt.Errorf("preview size %d too small", size)
	}
	img, err := renderImage(g, size)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
