package svgcompiler

import (
	"strings"

	"plotterd/pkg/gcode"
	"plotterd/pkg/geom"
)

// emitGCode renders the scaled paths to G-code: a metric/absolute/pen-up
// header, one travel/pen-down/draw/pen-up block per path, and a footer that
// lifts the pen and returns to origin. Paths with fewer than two points are
// skipped.
func emitGCode(paths []geom.Path, opts gcode.CanvasOptions) string {
	var b strings.Builder

	b.WriteString("G21\n") // metric units
	b.WriteString("G90\n") // absolute positioning
	writePenUp(&b, opts)

	for _, path := range paths {
		if len(path) < 2 {
			continue
		}
		writeRapid(&b, path[0], opts)
		writePenDown(&b, opts)
		for _, p := range path[1:] {
			writeLinear(&b, p, opts)
		}
		writePenUp(&b, opts)
	}

	writePenUp(&b, opts)
	b.WriteString("G0 X0.000 Y0.000\n")

	return b.String()
}

func writeRapid(b *strings.Builder, p geom.Point, opts gcode.CanvasOptions) {
	b.WriteString("G0 X" + gcode.FormatCoord(p.X) + " Y" + gcode.FormatCoord(p.Y) +
		" F" + gcode.FormatFeed(opts.TravelSpeed) + "\n")
}

func writeLinear(b *strings.Builder, p geom.Point, opts gcode.CanvasOptions) {
	b.WriteString("G1 X" + gcode.FormatCoord(p.X) + " Y" + gcode.FormatCoord(p.Y) +
		" F" + gcode.FormatFeed(opts.DrawSpeed) + "\n")
}

func writePenDown(b *strings.Builder, opts gcode.CanvasOptions) {
	b.WriteString("M3\n")
	if dwell := gcode.Dwell(opts.PenDownDelay); dwell != "" {
		b.WriteString(dwell + "\n")
	}
}

func writePenUp(b *strings.Builder, opts gcode.CanvasOptions) {
	b.WriteString("M5\n")
	if dwell := gcode.Dwell(opts.PenUpDelay); dwell != "" {
		b.WriteString(dwell + "\n")
	}
}
