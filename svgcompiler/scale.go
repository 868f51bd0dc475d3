package svgcompiler

import (
	"plotterd/pkg/gcode"
	"plotterd/pkg/geom"
)

// placement is the uniform scale and per-axis offset used to map SVG-local
// coordinates onto the machine canvas.
type placement struct {
	scale      float64
	offsetX    float64
	offsetY    float64
	minX, minY float64
}

// computePlacement derives scale and alignment offsets from the bounding
// box of all parsed paths and the requested CanvasOptions. A degenerate
// bounding box (zero width or height) passes through at 1x; only the
// alignment offsets still apply.
func computePlacement(box geom.Box, opts gcode.CanvasOptions) placement {
	availW := opts.CanvasWidth - 2*opts.Margin
	availH := opts.CanvasHeight - 2*opts.Margin

	srcW := box.Width()
	srcH := box.Height()

	scale := chooseScale(srcW, srcH, availW, availH, opts.ScaleMode)

	scaledW := srcW * scale
	scaledH := srcH * scale

	offsetX := opts.Margin + alignFactorX(opts.AlignX)*(availW-scaledW)
	offsetY := opts.Margin + alignFactorY(opts.AlignY)*(availH-scaledH)

	return placement{scale: scale, offsetX: offsetX, offsetY: offsetY, minX: box.MinX, minY: box.MinY}
}

func chooseScale(srcW, srcH, availW, availH float64, mode gcode.ScaleMode) float64 {
	if mode == gcode.ScaleNone {
		return 1
	}
	// Degenerate shapes (zero width or height) pass through unscaled.
	if srcW <= 0 || srcH <= 0 {
		return 1
	}

	wr := availW / srcW
	hr := availH / srcH
	ratio := wr
	if hr < wr {
		ratio = hr
	}

	if mode == gcode.ScaleContain && ratio > 1 {
		return 1
	}
	return ratio
}

func alignFactorX(a gcode.AlignX) float64 {
	switch a {
	case gcode.AlignLeft:
		return 0
	case gcode.AlignRight:
		return 1
	default:
		return 0.5
	}
}

func alignFactorY(a gcode.AlignY) float64 {
	switch a {
	case gcode.AlignFront:
		return 0
	case gcode.AlignBack:
		return 1
	default:
		return 0.5
	}
}

func (pl placement) apply(p geom.Point) geom.Point {
	return geom.Point{
		X: (p.X-pl.minX)*pl.scale + pl.offsetX,
		Y: (p.Y-pl.minY)*pl.scale + pl.offsetY,
	}
}
