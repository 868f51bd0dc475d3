package svgcompiler

import (
	"math"
	"os"
	"os/exec"
	"strconv"

	"plotterd/pkg/gcode"
	"plotterd/pkg/geom"
	"plotterd/pkg/perrors"
)

// optimizerBinary is the optional external optimizer: when present on PATH,
// the SVG is written to a temp file and rewritten through its
// merge/order/simplify pipeline; when absent, the in-process passes below
// run instead, following the same pipeline shape.
var optimizerBinary = "vpype"

func optimizerAvailable() bool {
	_, err := exec.LookPath(optimizerBinary)
	return err == nil
}

// runExternalOptimizer writes svgDoc to a temp file and rewrites it through
// the external pipeline: a merge step joining path ends within mergeTolerance,
// an order step reducing travel, and, when requested, a simplify step with
// the configured tolerance. For scaleMode=fit the optimizer also lays the
// result out onto the effective (margin-inset) area; for other modes the
// compiler's own scaler owns layout.
func runExternalOptimizer(svgDoc string, opts gcode.CanvasOptions) (string, error) {
	in, err := os.CreateTemp("", "plotterd-*.svg")
	if err != nil {
		return "", perrors.Wrap(perrors.IOError, err, "failed to create optimizer temp file")
	}
	defer os.Remove(in.Name())
	if _, err := in.WriteString(svgDoc); err != nil {
		in.Close()
		return "", perrors.Wrap(perrors.IOError, err, "failed to write optimizer temp file")
	}
	if err := in.Close(); err != nil {
		return "", perrors.Wrap(perrors.IOError, err, "failed to close optimizer temp file")
	}

	out, err := os.CreateTemp("", "plotterd-*.svg")
	if err != nil {
		return "", perrors.Wrap(perrors.IOError, err, "failed to create optimizer output file")
	}
	outName := out.Name()
	out.Close()
	defer os.Remove(outName)

	args := []string{"read", in.Name(), "linemerge", "--tolerance", formatMm(mergeTolerance), "linesort"}
	if opts.Simplify {
		args = append(args, "linesimplify", "--tolerance", formatMm(opts.SimplifyTolerance))
	}
	if opts.ScaleMode == gcode.ScaleFit {
		availW := opts.CanvasWidth - 2*opts.Margin
		availH := opts.CanvasHeight - 2*opts.Margin
		args = append(args, "layout", "--fit-to-margins", "0", formatMm(availW)+"x"+formatMm(availH)+"mm")
	}
	args = append(args, "write", outName)

	if combined, err := exec.Command(optimizerBinary, args...).CombinedOutput(); err != nil {
		return "", perrors.Wrap(perrors.IOError, err, "optimizer pipeline failed: "+string(combined))
	}

	rewritten, err := os.ReadFile(outName)
	if err != nil {
		return "", perrors.Wrap(perrors.IOError, err, "failed to read optimizer output")
	}
	return string(rewritten), nil
}

func formatMm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// mergeTolerance is how close two path ends must sit, in millimetres, for
// the merge step to join them.
const mergeTolerance = 0.5

// optimizePaths applies the merge/order/(simplify) pipeline to paths already
// scaled onto the canvas, so distances and tolerances are in millimetres.
func optimizePaths(paths []geom.Path, simplify bool, tolerance float64) []geom.Path {
	merged := mergeNearEnds(paths, mergeTolerance)
	ordered := orderByTravel(merged)
	if simplify {
		for i, p := range ordered {
			ordered[i] = simplifyPath(p, tolerance)
		}
	}
	return ordered
}

// mergeNearEnds joins consecutive paths whose end and next start fall
// within tolerance of one another, reducing pen-lift count.
func mergeNearEnds(paths []geom.Path, tolerance float64) []geom.Path {
	if len(paths) < 2 {
		return paths
	}
	out := make([]geom.Path, 0, len(paths))
	cur := paths[0]
	for _, next := range paths[1:] {
		if len(cur) == 0 || len(next) == 0 {
			out = append(out, cur)
			cur = next
			continue
		}
		if cur[len(cur)-1].Dist(next[0]) <= tolerance {
			cur = append(cur, next[1:]...)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

// orderByTravel greedily reorders paths to reduce total travel distance: at
// each step, pick the remaining path whose start is nearest the current pen
// position.
func orderByTravel(paths []geom.Path) []geom.Path {
	if len(paths) < 2 {
		return paths
	}
	remaining := append([]geom.Path(nil), paths...)
	ordered := make([]geom.Path, 0, len(paths))
	pos := geom.Point{}

	for len(remaining) > 0 {
		bestIdx := 0
		bestDist := pos.Dist(remaining[0][0])
		for i := 1; i < len(remaining); i++ {
			if d := pos.Dist(remaining[i][0]); d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		chosen := remaining[bestIdx]
		ordered = append(ordered, chosen)
		pos = chosen[len(chosen)-1]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return ordered
}

// simplifyPath runs Douglas-Peucker with the given tolerance.
func simplifyPath(path geom.Path, tolerance float64) geom.Path {
	if len(path) < 3 || tolerance <= 0 {
		return path
	}
	keep := make([]bool, len(path))
	keep[0] = true
	keep[len(path)-1] = true
	douglasPeucker(path, 0, len(path)-1, tolerance, keep)

	out := make(geom.Path, 0, len(path))
	for i, p := range path {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func douglasPeucker(path geom.Path, start, end int, tolerance float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist := -1.0
	maxIdx := -1
	for i := start + 1; i < end; i++ {
		d := perpendicularDistance(path[i], path[start], path[end])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxDist <= tolerance {
		return
	}
	keep[maxIdx] = true
	douglasPeucker(path, start, maxIdx, tolerance, keep)
	douglasPeucker(path, maxIdx, end, tolerance, keep)
}

func perpendicularDistance(p, a, b geom.Point) float64 {
	if a == b {
		return a.Dist(p)
	}
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	num := dy*p.X - dx*p.Y + b.X*a.Y - b.Y*a.X
	if num < 0 {
		num = -num
	}
	return num / math.Sqrt(lenSq)
}
