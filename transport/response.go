package transport

import (
	"regexp"
	"strconv"
	"strings"

	"plotterd/pkg/perrors"
)

// axisPattern captures a signed decimal following a single axis letter, e.g.
// "X:12.500" or "Y:-3". Each axis is parsed independently so partial
// reports still update the axes they carry.
var axisPattern = map[byte]*regexp.Regexp{
	'X': regexp.MustCompile(`X:\s*(-?\d+(?:\.\d+)?)`),
	'Y': regexp.MustCompile(`Y:\s*(-?\d+(?:\.\d+)?)`),
	'Z': regexp.MustCompile(`Z:\s*(-?\d+(?:\.\d+)?)`),
	'E': regexp.MustCompile(`E:\s*(-?\d+(?:\.\d+)?)`),
}

// parsePosition extracts whatever axis values are present in line. ok is
// true only when at least an X value was found; lines without X: leave the
// tracked position untouched.
func parsePosition(line string, prev Position) (pos Position, ok bool) {
	pos = prev
	if m := axisPattern['X'].FindStringSubmatch(line); m != nil {
		pos.X, _ = strconv.ParseFloat(m[1], 64)
		ok = true
	}
	if m := axisPattern['Y'].FindStringSubmatch(line); m != nil {
		pos.Y, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := axisPattern['Z'].FindStringSubmatch(line); m != nil {
		pos.Z, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := axisPattern['E'].FindStringSubmatch(line); m != nil {
		pos.E, _ = strconv.ParseFloat(m[1], 64)
	}
	return pos, ok
}

// responseAccumulator collects response lines until a termination marker
// ("ok", "Done", or "Error") is seen.
type responseAccumulator struct {
	lines []string
}

// feed appends line and reports whether the response is now complete, and
// whether it terminated in error.
func (r *responseAccumulator) feed(line string) (done bool, isError bool) {
	r.lines = append(r.lines, line)
	_, isError, found := terminalMarker(line)
	return found, isError
}

func (r *responseAccumulator) body() string {
	return strings.Join(r.lines, "\n")
}

// asError builds a ControllerError from an accumulated response whose
// terminator was "Error".
func (r *responseAccumulator) asError() error {
	return perrors.Newf(perrors.ControllerError, "controller error: %s", r.body())
}
