// Package svgcompiler turns a subset of SVG into a G-code program targeted
// at the machine canvas: parse to polylines, optionally run an external
// optimizer, scale/align onto the canvas, then emit motion and pen-servo
// commands.
package svgcompiler

import (
	"encoding/xml"
	"strconv"
	"strings"

	"plotterd/pkg/geom"
	"plotterd/pkg/perrors"
)

// rawElement is the generic shape encoding/xml decodes an SVG document into;
// each supported tag is picked out by name during the walk in parseDocument.
type rawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr   `xml:",any,attr"`
	Nodes   []rawElement `xml:",any"`
}

func (e *rawElement) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *rawElement) attrFloat(name string, fallback float64) float64 {
	v, ok := e.attr(name)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// parsedSVG is the intermediate form produced by walking the document:
// flattened paths in SVG-local units, plus the view box they sit in.
type parsedSVG struct {
	Paths   []geom.Path
	ViewBox geom.ViewBox
}

// parseDocument decodes raw and flattens every supported element into a
// polyline. Unsupported elements are silently ignored.
func parseDocument(raw string) (*parsedSVG, error) {
	var root rawElement
	if err := xml.Unmarshal([]byte(raw), &root); err != nil {
		return nil, perrors.Wrap(perrors.ParseError, err, "malformed SVG document")
	}
	if root.XMLName.Local != "svg" {
		return nil, perrors.New(perrors.ParseError, "root element is not <svg>")
	}

	vb := parseViewBox(&root)

	out := &parsedSVG{ViewBox: vb}
	walk(&root, out)
	return out, nil
}

func parseViewBox(root *rawElement) geom.ViewBox {
	if v, ok := root.attr("viewBox"); ok {
		fields := strings.Fields(strings.ReplaceAll(v, ",", " "))
		if len(fields) == 4 {
			nums := make([]float64, 4)
			ok := true
			for i, f := range fields {
				n, err := strconv.ParseFloat(f, 64)
				if err != nil {
					ok = false
					break
				}
				nums[i] = n
			}
			if ok {
				return geom.ViewBox{MinX: nums[0], MinY: nums[1], Width: nums[2], Height: nums[3]}
			}
		}
	}
	width := root.attrFloat("width", 100)
	height := root.attrFloat("height", 100)
	return geom.ViewBox{Width: width, Height: height}
}

func walk(el *rawElement, out *parsedSVG) {
	for i := range el.Nodes {
		child := &el.Nodes[i]
		switch child.XMLName.Local {
		case "path":
			if d, ok := child.attr("d"); ok {
				out.Paths = append(out.Paths, flattenPathData(d)...)
			}
		case "polyline":
			if pts, ok := child.attr("points"); ok {
				if p := parsePointList(pts); len(p) >= 2 {
					out.Paths = append(out.Paths, p)
				}
			}
		case "polygon":
			if pts, ok := child.attr("points"); ok {
				if p := parsePointList(pts); len(p) >= 2 {
					out.Paths = append(out.Paths, closePath(p))
				}
			}
		case "line":
			p := geom.Path{
				{X: child.attrFloat("x1", 0), Y: child.attrFloat("y1", 0)},
				{X: child.attrFloat("x2", 0), Y: child.attrFloat("y2", 0)},
			}
			out.Paths = append(out.Paths, p)
		case "circle":
			cx, cy, r := child.attrFloat("cx", 0), child.attrFloat("cy", 0), child.attrFloat("r", 0)
			out.Paths = append(out.Paths, polygonalizeCircle(cx, cy, r, circleSegments))
		case "rect":
			out.Paths = append(out.Paths, rectPath(child))
		}
		walk(child, out)
	}
}

func rectPath(el *rawElement) geom.Path {
	x, y := el.attrFloat("x", 0), el.attrFloat("y", 0)
	w, h := el.attrFloat("width", 0), el.attrFloat("height", 0)
	return geom.Path{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
		{X: x, Y: y},
	}
}

func parsePointList(s string) geom.Path {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	var path geom.Path
	for i := 0; i+1 < len(fields); i += 2 {
		x, err1 := strconv.ParseFloat(fields[i], 64)
		y, err2 := strconv.ParseFloat(fields[i+1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		path = append(path, geom.Point{X: x, Y: y})
	}
	return path
}

func closePath(p geom.Path) geom.Path {
	if len(p) == 0 {
		return p
	}
	first := p[0]
	last := p[len(p)-1]
	if first != last {
		p = append(p, first)
	}
	return p
}
