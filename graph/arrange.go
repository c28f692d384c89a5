package graph

import "math"

// Arrange packs laid-out partitions into rows so that their bounding boxes
// do not overlap, leaving spacing between neighbours. Partitions are placed
// in slice order. A partition containing a locked node stays where it is;
// when there are any, the others are packed below the box enclosing them.
//
// The row width is the larger of the widest partition and the square root
// of the total box area, which keeps the packing roughly square.
func Arrange(parts []*Partition, spacing float64) {
	type box struct {
		p          *Partition
		minX, minY float64
		w, h       float64
	}

	var boxes []box
	var area, widest float64
	fixed := false
	fixedMinX, fixedMaxY := math.Inf(1), math.Inf(-1)
	for _, p := range parts {
		if len(p.Nodes) == 0 {
			continue
		}
		if p.HasLocked() {
			minX, _, _, maxY := p.Bounds()
			fixedMinX = math.Min(fixedMinX, minX)
			fixedMaxY = math.Max(fixedMaxY, maxY)
			fixed = true
			continue
		}
		minX, minY, maxX, maxY := p.Bounds()
		b := box{p: p, minX: minX, minY: minY, w: maxX - minX + spacing, h: maxY - minY + spacing}
		boxes = append(boxes, b)
		area += b.w * b.h
		widest = math.Max(widest, b.w)
	}
	if len(boxes) == 0 || (!fixed && len(boxes) < 2) {
		return
	}

	var originX, originY float64
	if fixed {
		originX, originY = fixedMinX, fixedMaxY+spacing
	}
	rowWidth := math.Max(widest, math.Sqrt(area))
	var x, y, rowHeight float64
	for _, b := range boxes {
		if x > 0 && x+b.w > rowWidth {
			x = 0
			y += rowHeight
			rowHeight = 0
		}
		b.p.Translate(originX+x-b.minX, originY+y-b.minY)
		x += b.w
		rowHeight = math.Max(rowHeight, b.h)
	}
}
