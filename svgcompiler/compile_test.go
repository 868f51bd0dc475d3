package svgcompiler

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"plotterd/gparser"
	"plotterd/pkg/gcode"
)

func TestCompileBoundaries(t *testing.T) {
	Convey("Given an empty SVG document", t, func() {
		opts := gcode.DefaultCanvasOptions()
		result, err := Compile(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"></svg>`, opts)

		Convey("it compiles to header and footer only", func() {
			So(err, ShouldBeNil)
			So(result.Stats.Shapes, ShouldEqual, 0)
			So(result.GCode, ShouldContainSubstring, "G21")
			So(result.GCode, ShouldContainSubstring, "G90")
		})
	})

	Convey("Given a canvas whose margin consumes the entire interior", t, func() {
		opts := gcode.DefaultCanvasOptions()
		opts.CanvasWidth = 10
		opts.Margin = 10

		Convey("compile fails with a structured ParseError", func() {
			_, err := Compile(`<svg viewBox="0 0 10 10"><rect x="0" y="0" width="5" height="5"/></svg>`, opts)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a single line element", t, func() {
		opts := gcode.DefaultCanvasOptions()
		opts.CanvasWidth = 200
		opts.CanvasHeight = 200
		opts.Margin = 10
		opts.ScaleMode = gcode.ScaleContain
		opts.AlignX = gcode.AlignCenter
		opts.AlignY = gcode.AlignMid
		opts.DrawSpeed = 3000
		opts.TravelSpeed = 6000
		opts.PenDownDelay = 150
		opts.PenUpDelay = 100

		result, err := Compile(`<svg viewBox="0 0 100 100"><line x1="0" y1="0" x2="100" y2="0"/></svg>`, opts)

		Convey("it emits one pen-down/up pair and counts one shape", func() {
			So(err, ShouldBeNil)
			So(result.Stats.Shapes, ShouldEqual, 1)
			So(result.Stats.DrawMoves, ShouldEqual, 1)
			So(result.Stats.PenDowns, ShouldEqual, 1)
			So(strings.Count(result.GCode, "G1 "), ShouldEqual, 1)
		})
	})

	Convey("Given a path with a single point", t, func() {
		paths := flattenPathData("M10,10")

		Convey("no polyline is produced", func() {
			So(paths, ShouldBeEmpty)
		})
	})
}

func TestParseEmitConsistency(t *testing.T) {
	Convey("Given emitted G-code for a small drawing", t, func() {
		opts := gcode.DefaultCanvasOptions()
		result, err := Compile(
			`<svg viewBox="0 0 100 100"><rect x="10" y="10" width="30" height="30"/><circle cx="70" cy="70" r="20"/></svg>`,
			opts)
		So(err, ShouldBeNil)

		Convey("the G-code parser counts the same movement commands as the stats pass", func() {
			plan := gparser.Parse(result.GCode)
			So(plan.Stats.MovementCommands, ShouldEqual, result.Stats.RapidMoves+result.Stats.DrawMoves)
		})
	})
}

func TestScalingLaws(t *testing.T) {
	Convey("Given geometry that already fits the available area", t, func() {
		opts := gcode.DefaultCanvasOptions()
		opts.ScaleMode = gcode.ScaleContain

		doc := `<svg viewBox="0 0 100 100"><rect x="0" y="0" width="50" height="50"/></svg>`
		first, err := Compile(doc, opts)
		So(err, ShouldBeNil)

		Convey("contain never enlarges: the drawn extent stays at source size", func() {
			So(first.Stats.DrawDistanceMm, ShouldAlmostEqual, 200, 0.01)
		})
	})
}

func TestFlattenPathData(t *testing.T) {
	Convey("Given a path with an absolute cubic Bezier", t, func() {
		paths := flattenPathData("M0,0 C0,10 10,10 10,0")

		Convey("it flattens to bezierSegments additional points", func() {
			So(paths, ShouldHaveLength, 1)
			So(paths[0], ShouldHaveLength, 1+bezierSegments)
		})
	})

	Convey("Given a path with a closing Z", t, func() {
		paths := flattenPathData("M0,0 L10,0 L10,10 Z")

		Convey("the subpath returns to its start", func() {
			So(paths, ShouldHaveLength, 1)
			first := paths[0][0]
			last := paths[0][len(paths[0])-1]
			So(first, ShouldResemble, last)
		})
	})
}
