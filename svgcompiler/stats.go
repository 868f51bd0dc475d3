package svgcompiler

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Stats summarizes an emitted G-code program, produced by a separate pass
// over the text rather than carried through during emission, so it reflects
// exactly what went out on the wire.
type Stats struct {
	Shapes           int     `json:"shapes"`
	RapidMoves       int     `json:"rapidMoves"`
	DrawMoves        int     `json:"drawMoves"`
	PenDowns         int     `json:"penDowns"`
	PenUps           int     `json:"penUps"`
	TotalDistanceMm  float64 `json:"totalDistanceMm"`
	DrawDistanceMm   float64 `json:"drawDistanceMm"`
	TravelDistanceMm float64 `json:"travelDistanceMm"`
	EstimatedTimeMs  int     `json:"estimatedTimeMs"`
}

var (
	moveLine    = regexp.MustCompile(`(?i)^(G0|G1)\b`)
	penDownLine = regexp.MustCompile(`(?i)^M3\b`)
	penUpLine   = regexp.MustCompile(`(?i)^M5\b`)
	xCoord      = regexp.MustCompile(`X(-?\d+(?:\.\d+)?)`)
	yCoord      = regexp.MustCompile(`Y(-?\d+(?:\.\d+)?)`)
	feedArg     = regexp.MustCompile(`F(-?\d+(?:\.\d+)?)`)
	dwellArg    = regexp.MustCompile(`(?i)^G4\s+P(\d+(?:\.\d+)?)`)
)

// computeStats scans emitted G-code line by line, tallying moves, pen
// events, distances, and a time estimate from the active feed rate plus
// any G4 dwells.
func computeStats(gcodeText string) Stats {
	var st Stats
	var x, y float64
	haveStart := false
	feed := 0.0
	shapeOpen := false

	for _, raw := range strings.Split(gcodeText, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case penDownLine.MatchString(line):
			st.PenDowns++
			if !shapeOpen {
				st.Shapes++
				shapeOpen = true
			}
		case penUpLine.MatchString(line):
			st.PenUps++
			shapeOpen = false
		case dwellArg.MatchString(line):
			if m := dwellArg.FindStringSubmatch(line); m != nil {
				ms, _ := strconv.ParseFloat(m[1], 64)
				st.EstimatedTimeMs += int(ms + 0.5)
			}
		case moveLine.MatchString(line):
			isRapid := strings.HasPrefix(strings.ToUpper(line), "G0")
			nx, ny := x, y
			if m := xCoord.FindStringSubmatch(line); m != nil {
				nx, _ = strconv.ParseFloat(m[1], 64)
			}
			if m := yCoord.FindStringSubmatch(line); m != nil {
				ny, _ = strconv.ParseFloat(m[1], 64)
			}
			if m := feedArg.FindStringSubmatch(line); m != nil {
				feed, _ = strconv.ParseFloat(m[1], 64)
			}

			if haveStart {
				dist := math.Hypot(nx-x, ny-y)
				st.TotalDistanceMm += dist
				if isRapid {
					st.RapidMoves++
					st.TravelDistanceMm += dist
				} else {
					st.DrawMoves++
					st.DrawDistanceMm += dist
				}
				if feed > 0 {
					st.EstimatedTimeMs += int(dist/feed*60000 + 0.5)
				}
			} else {
				if isRapid {
					st.RapidMoves++
				} else {
					st.DrawMoves++
				}
			}
			x, y = nx, ny
			haveStart = true
		}
	}

	return st
}
