package gparser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"plotterd/pkg/geom"
)

var (
	layerMarkerPattern = regexp.MustCompile(`(?i)LAYER[:\s]*(\d+)`)
	layerChangePattern = regexp.MustCompile(`(?i)LAYER_CHANGE`)
	colorPenPattern    = regexp.MustCompile(`(?i)(COLOR|PEN)[:\s]*([#A-Za-z0-9]*)`)
	m6ToolPattern      = regexp.MustCompile(`(?i)M6\s*T?(\d+)`)
	bareToolPattern    = regexp.MustCompile(`(?:^|\s)T(\d+)\b`)
	penDownPattern     = regexp.MustCompile(`(?i)^M3\b|M42\s+P\d+\s+S([1-9]\d*)`)
	penUpPattern       = regexp.MustCompile(`(?i)^M5\b|M42\s+P\d+\s+S0\b`)
	rapidPattern       = regexp.MustCompile(`(?i)^G0\b`)
	linearPattern      = regexp.MustCompile(`(?i)^G1\b`)
	pausePattern       = regexp.MustCompile(`(?i)^M[01]\b`)

	xArg = regexp.MustCompile(`X(-?\d+(?:\.\d+)?)`)
	yArg = regexp.MustCompile(`Y(-?\d+(?:\.\d+)?)`)
	zArg = regexp.MustCompile(`Z(-?\d+(?:\.\d+)?)`)
)

// msPerMovement backs the rough time estimate; the job manager refines it
// at runtime from observed throughput.
const msPerMovement = 100

// zChangeThreshold is the Z rise that, with no explicit layer markers,
// records a z-change checkpoint. No layer is opened for it.
const zChangeThreshold = 0.5

// Parse scans content and returns its Plan. Parse never fails on malformed
// G-code: unrecognized lines are simply not counted as movement. The
// pen-state and layer heuristics are informational, not validating.
func Parse(content string) *Plan {
	p := &parser{content: content}
	return p.run()
}

type parser struct {
	content string

	lines      []string
	totalLines int

	layers           []Layer
	openIdx          int
	explicitLayers   bool
	sectionCount     int
	layerChangeCount int

	toolChanges []ToolChange
	checkpoints []Checkpoint

	currentTool int
	pos         geom.Point3
	lastZ       float64
	penDown     bool
	shapes      int

	movementCommands int
	rapidMoves       int
	linearMoves      int
}

func (p *parser) run() *Plan {
	if trimmed := strings.TrimRight(p.content, "\n"); trimmed != "" {
		p.lines = strings.Split(trimmed, "\n")
	}
	p.totalLines = len(p.lines)

	startLine := 0
	if p.totalLines > 0 {
		startLine = 1
	}
	p.layers = []Layer{{Index: 0, StartLine: startLine, Name: "Main"}}
	p.openIdx = 0

	for i, line := range p.lines {
		p.scanLine(i+1, line)
	}

	p.finalize()

	return &Plan{
		Stats: Stats{
			TotalLines:       p.totalLines,
			MovementCommands: p.movementCommands,
			RapidMoves:       p.rapidMoves,
			LinearMoves:      p.linearMoves,
			Shapes:           p.shapes,
			EstimatedTimeMs:  p.movementCommands * msPerMovement,
		},
		Layers:      p.layers,
		ToolChanges: p.toolChanges,
		Checkpoints: p.checkpoints,
		Content:     p.content,
	}
}

func (p *parser) scanLine(lineNum int, line string) {
	trimmed := strings.TrimSpace(line)
	isComment := strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "(")

	if isComment {
		switch {
		case layerChangePattern.MatchString(trimmed):
			p.markExplicitLayer(lineNum, "Layer "+strconv.Itoa(p.layerChangeCount))
			p.layerChangeCount++
		case layerMarkerPattern.MatchString(trimmed):
			m := layerMarkerPattern.FindStringSubmatch(trimmed)
			p.markExplicitLayer(lineNum, "Layer "+m[1])
		}

		if m := colorPenPattern.FindStringSubmatch(trimmed); m != nil {
			color := m[2]
			if color == "" {
				color = m[1]
			}
			p.layers[p.openIdx].Color = color
		}
		return
	}

	if tool, ok := parseToolChange(trimmed); ok {
		prev := p.currentTool
		p.currentTool = tool
		p.toolChanges = append(p.toolChanges, ToolChange{Line: lineNum, Tool: tool, PreviousTool: prev})
		p.addCheckpoint(lineNum, CheckpointToolChange)
		if !p.explicitLayers {
			p.openLayer(lineNum, "Tool "+strconv.Itoa(tool), tool)
		} else if p.openIdx < len(p.layers) {
			p.layers[p.openIdx].Tool = tool
		}
	}

	if pausePattern.MatchString(trimmed) {
		p.addCheckpoint(lineNum, CheckpointPause)
		if !p.explicitLayers {
			p.sectionCount++
			p.openLayer(lineNum, "Section "+strconv.Itoa(p.sectionCount), p.currentTool)
		}
	}

	if penDownPattern.MatchString(trimmed) {
		p.setPenDown()
	} else if penUpPattern.MatchString(trimmed) {
		p.penDown = false
	}

	switch {
	case rapidPattern.MatchString(trimmed):
		p.movementCommands++
		p.rapidMoves++
		p.applyMotion(lineNum, trimmed)
	case linearPattern.MatchString(trimmed):
		p.movementCommands++
		p.linearMoves++
		p.applyMotion(lineNum, trimmed)
	}
}

// applyMotion tracks the position implied by a G0/G1 line. Z direction
// doubles as a pen-state heuristic on machines that lift the pen with the Z
// axis rather than a servo pin: a downward Z move lowers the pen, an upward
// one raises it. Upward jumps past zChangeThreshold while the pen is up are
// recorded as z-change checkpoints when the program has no explicit layer
// markers.
func (p *parser) applyMotion(lineNum int, trimmed string) {
	if m := xArg.FindStringSubmatch(trimmed); m != nil {
		p.pos.X, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := yArg.FindStringSubmatch(trimmed); m != nil {
		p.pos.Y, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := zArg.FindStringSubmatch(trimmed); m != nil {
		newZ, _ := strconv.ParseFloat(m[1], 64)
		delta := newZ - p.lastZ
		switch {
		case delta < 0:
			p.setPenDown()
		case delta > 0:
			p.penDown = false
			if !p.explicitLayers && math.Abs(delta) > zChangeThreshold {
				p.addCheckpoint(lineNum, CheckpointZChange)
			}
		}
		p.pos.Z = newZ
		p.lastZ = newZ
	}
}

func (p *parser) setPenDown() {
	if !p.penDown {
		p.penDown = true
		p.shapes++
	}
}

func parseToolChange(trimmed string) (tool int, ok bool) {
	if m := m6ToolPattern.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	if m := bareToolPattern.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	return 0, false
}

func (p *parser) addCheckpoint(lineNum int, kind CheckpointType) {
	p.checkpoints = append(p.checkpoints, Checkpoint{Line: lineNum, Position: p.pos, Type: kind})
}

// markExplicitLayer handles a LAYER marker comment. The first marker adopts
// the synthesized layer currently open (its preamble lines belong to the
// first declared layer); every later marker closes the open layer and opens
// a new one. Either way the marker line is a layer checkpoint.
func (p *parser) markExplicitLayer(lineNum int, name string) {
	if !p.explicitLayers {
		p.explicitLayers = true
		p.layers[p.openIdx].Name = name
		p.layers[p.openIdx].Tool = p.currentTool
	} else {
		p.openLayer(lineNum, name, p.currentTool)
	}
	p.addCheckpoint(lineNum, CheckpointLayer)
}

// openLayer closes the currently open layer at lineNum-1 and opens a new one
// at lineNum, unless the current layer hasn't yet accrued any lines (it was
// itself just opened at lineNum), in which case it is relabeled in place so
// back-to-back markers don't produce zero-length layers.
func (p *parser) openLayer(lineNum int, name string, tool int) {
	cur := &p.layers[p.openIdx]
	if cur.StartLine == lineNum {
		cur.Name = name
		cur.Tool = tool
		return
	}
	cur.EndLine = lineNum - 1
	p.layers = append(p.layers, Layer{
		Index:     len(p.layers),
		StartLine: lineNum,
		Name:      name,
		Tool:      tool,
	})
	p.openIdx = len(p.layers) - 1
}

func (p *parser) finalize() {
	p.layers[p.openIdx].EndLine = p.totalLines
}
