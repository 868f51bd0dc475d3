package svgcompiler

import (
	"math"
	"strconv"

	"plotterd/pkg/geom"
)

// bezierSegments is the fixed flattening resolution for curve segments. No
// adaptive subdivision; good enough at pen-plotter scale.
const bezierSegments = 10

// circleSegments is the polygonalization resolution for <circle>.
const circleSegments = 36

// argCounts maps each path command letter to how many numbers it consumes
// per repetition.
var argCounts = map[byte]int{
	'M': 2, 'm': 2,
	'L': 2, 'l': 2,
	'H': 1, 'h': 1,
	'V': 1, 'v': 1,
	'C': 6, 'c': 6,
	'Q': 4, 'q': 4,
	'Z': 0, 'z': 0,
}

type pathToken struct {
	cmd  byte
	args []float64
}

// tokenizePath lexes an SVG path `d` attribute into a flat token stream,
// expanding implicit repeated arguments (e.g. "L10,20 30,40" is two L
// tokens) and the M-then-L-repeat rule.
func tokenizePath(d string) []pathToken {
	lex := &pathLexer{s: d}
	var tokens []pathToken
	var cmd byte
	haveCmd := false
	// repeat is true once the current command letter has consumed one
	// argument group; only repeats of M/m are implicit line-tos.
	repeat := false

	for {
		lex.skipSeparators()
		if lex.done() {
			break
		}
		if c := lex.peek(); isPathCommand(c) {
			cmd = c
			haveCmd = true
			repeat = false
			lex.advance()
			if argCounts[cmd] == 0 {
				tokens = append(tokens, pathToken{cmd: cmd})
				haveCmd = false
			}
			continue
		}
		if !haveCmd {
			break
		}
		n := argCounts[cmd]
		args := make([]float64, 0, n)
		for len(args) < n {
			lex.skipSeparators()
			v, ok := lex.number()
			if !ok {
				break
			}
			args = append(args, v)
		}
		if len(args) < n {
			break
		}
		effective := cmd
		if repeat && (cmd == 'M' || cmd == 'm') {
			if cmd == 'M' {
				effective = 'L'
			} else {
				effective = 'l'
			}
		}
		tokens = append(tokens, pathToken{cmd: effective, args: args})
		repeat = true
	}
	return tokens
}

func isPathCommand(c byte) bool {
	_, ok := argCounts[c]
	return ok
}

type pathLexer struct {
	s string
	i int
}

func (l *pathLexer) done() bool { return l.i >= len(l.s) }
func (l *pathLexer) peek() byte { return l.s[l.i] }
func (l *pathLexer) advance()   { l.i++ }

func (l *pathLexer) skipSeparators() {
	for l.i < len(l.s) {
		c := l.s[l.i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',' {
			l.i++
			continue
		}
		break
	}
}

func (l *pathLexer) number() (float64, bool) {
	start := l.i
	i := l.i
	n := len(l.s)
	if i < n && (l.s[i] == '-' || l.s[i] == '+') {
		i++
	}
	seenDigit := false
	seenDot := false
	for i < n {
		c := l.s[i]
		if c >= '0' && c <= '9' {
			seenDigit = true
			i++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			i++
			continue
		}
		break
	}
	if !seenDigit {
		return 0, false
	}
	// Optional exponent.
	if i < n && (l.s[i] == 'e' || l.s[i] == 'E') {
		j := i + 1
		if j < n && (l.s[j] == '-' || l.s[j] == '+') {
			j++
		}
		if j < n && l.s[j] >= '0' && l.s[j] <= '9' {
			for j < n && l.s[j] >= '0' && l.s[j] <= '9' {
				j++
			}
			i = j
		}
	}
	v, err := strconv.ParseFloat(l.s[start:i], 64)
	if err != nil {
		return 0, false
	}
	l.i = i
	return v, true
}

// flattenPathData walks an SVG path `d` attribute and returns every
// subpath (split on M/m) as a flattened polyline. Supported commands:
// M/m, L/l, H/h, V/v, C/c, Q/q, Z/z.
func flattenPathData(d string) []geom.Path {
	tokens := tokenizePath(d)
	var paths []geom.Path
	var cur geom.Path
	var pos, subpathStart geom.Point

	flush := func() {
		if len(cur) >= 2 {
			paths = append(paths, cur)
		}
		cur = nil
	}

	for _, tok := range tokens {
		switch tok.cmd {
		case 'M', 'm':
			x, y := tok.args[0], tok.args[1]
			if tok.cmd == 'm' && len(cur) > 0 {
				x += pos.X
				y += pos.Y
			}
			flush()
			pos = geom.Point{X: x, Y: y}
			subpathStart = pos
			cur = geom.Path{pos}
		case 'L', 'l':
			x, y := tok.args[0], tok.args[1]
			if tok.cmd == 'l' {
				x += pos.X
				y += pos.Y
			}
			pos = geom.Point{X: x, Y: y}
			cur = append(cur, pos)
		case 'H', 'h':
			x := tok.args[0]
			if tok.cmd == 'h' {
				x += pos.X
			}
			pos = geom.Point{X: x, Y: pos.Y}
			cur = append(cur, pos)
		case 'V', 'v':
			y := tok.args[0]
			if tok.cmd == 'v' {
				y += pos.Y
			}
			pos = geom.Point{X: pos.X, Y: y}
			cur = append(cur, pos)
		case 'C', 'c':
			c1 := geom.Point{X: tok.args[0], Y: tok.args[1]}
			c2 := geom.Point{X: tok.args[2], Y: tok.args[3]}
			e := geom.Point{X: tok.args[4], Y: tok.args[5]}
			if tok.cmd == 'c' {
				c1.X += pos.X
				c1.Y += pos.Y
				c2.X += pos.X
				c2.Y += pos.Y
				e.X += pos.X
				e.Y += pos.Y
			}
			cur = append(cur, cubicBezier(pos, c1, c2, e, bezierSegments)...)
			pos = e
		case 'Q', 'q':
			c := geom.Point{X: tok.args[0], Y: tok.args[1]}
			e := geom.Point{X: tok.args[2], Y: tok.args[3]}
			if tok.cmd == 'q' {
				c.X += pos.X
				c.Y += pos.Y
				e.X += pos.X
				e.Y += pos.Y
			}
			cur = append(cur, quadBezier(pos, c, e, bezierSegments)...)
			pos = e
		case 'Z', 'z':
			if len(cur) > 0 && pos != subpathStart {
				cur = append(cur, subpathStart)
			}
			pos = subpathStart
			flush()
			cur = geom.Path{pos}
		}
	}
	flush()
	return paths
}

func cubicBezier(p0, p1, p2, p3 geom.Point, segments int) geom.Path {
	path := make(geom.Path, 0, segments)
	for i := 1; i <= segments; i++ {
		t := float64(i) / float64(segments)
		mt := 1 - t
		x := mt*mt*mt*p0.X + 3*mt*mt*t*p1.X + 3*mt*t*t*p2.X + t*t*t*p3.X
		y := mt*mt*mt*p0.Y + 3*mt*mt*t*p1.Y + 3*mt*t*t*p2.Y + t*t*t*p3.Y
		path = append(path, geom.Point{X: x, Y: y})
	}
	return path
}

func quadBezier(p0, p1, p2 geom.Point, segments int) geom.Path {
	path := make(geom.Path, 0, segments)
	for i := 1; i <= segments; i++ {
		t := float64(i) / float64(segments)
		mt := 1 - t
		x := mt*mt*p0.X + 2*mt*t*p1.X + t*t*p2.X
		y := mt*mt*p0.Y + 2*mt*t*p1.Y + t*t*p2.Y
		path = append(path, geom.Point{X: x, Y: y})
	}
	return path
}

func polygonalizeCircle(cx, cy, r float64, segments int) geom.Path {
	path := make(geom.Path, 0, segments+1)
	for i := 0; i <= segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		path = append(path, geom.Point{
			X: cx + r*math.Cos(theta),
			Y: cy + r*math.Sin(theta),
		})
	}
	return path
}
