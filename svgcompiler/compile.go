package svgcompiler

import (
	"plotterd/pkg/gcode"
	"plotterd/pkg/geom"
	"plotterd/pkg/perrors"
)

// Result is the output of compiling an SVG document: the emitted program
// plus the statistics pass over it.
type Result struct {
	GCode string `json:"gcode"`
	Stats Stats  `json:"stats"`
}

// Compile parses svgDoc, optionally runs it through the merge/order/
// simplify pipeline, scales and aligns it onto the canvas described by
// opts, and emits G-code. It never enlarges past 1x under scaleMode
// "contain", and fails with ParseError when the margins consume the whole
// canvas.
func Compile(svgDoc string, opts gcode.CanvasOptions) (*Result, error) {
	if opts.CanvasWidth-2*opts.Margin <= 0 || opts.CanvasHeight-2*opts.Margin <= 0 {
		return nil, perrors.New(perrors.ParseError, "canvas interior is empty after margin inset")
	}

	external := opts.Optimize && optimizerAvailable()
	if external {
		rewritten, err := runExternalOptimizer(svgDoc, opts)
		if err != nil {
			return nil, err
		}
		svgDoc = rewritten
	}

	doc, err := parseDocument(svgDoc)
	if err != nil {
		return nil, err
	}

	paths := doc.Paths

	box, ok := geom.Bounds(paths)
	if !ok {
		gc := emitGCode(nil, opts)
		return &Result{GCode: gc, Stats: computeStats(gc)}, nil
	}

	pl := computePlacement(box, opts)

	scaled := make([]geom.Path, 0, len(paths))
	for _, path := range paths {
		if len(path) < 2 {
			continue
		}
		out := make(geom.Path, len(path))
		for i, p := range path {
			out[i] = pl.apply(p)
		}
		scaled = append(scaled, out)
	}

	if !external && (opts.Optimize || opts.Simplify) {
		// Without the external binary the same merge/order/simplify
		// pipeline runs in-process over the scaled polylines, so its
		// tolerances are in millimetres.
		scaled = optimizePaths(scaled, opts.Simplify, opts.SimplifyTolerance)
	}

	gc := emitGCode(scaled, opts)
	return &Result{GCode: gc, Stats: computeStats(gc)}, nil
}
