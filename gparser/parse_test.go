package gparser

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseBasics(t *testing.T) {
	Convey("Given G-code with only comments", t, func() {
		plan := Parse(";; a pen plotter program\n;; nothing else happens\n")

		Convey("it produces a single Main layer and zero movement commands", func() {
			So(plan.Layers, ShouldHaveLength, 1)
			So(plan.Layers[0].Name, ShouldEqual, "Main")
			So(plan.Layers[0].StartLine, ShouldEqual, 1)
			So(plan.Layers[0].EndLine, ShouldEqual, plan.Stats.TotalLines)
			So(plan.Stats.MovementCommands, ShouldEqual, 0)
		})
	})

	Convey("Given empty content", t, func() {
		plan := Parse("")

		Convey("totalLines is zero and a single zero-span Main layer covers it", func() {
			So(plan.Stats.TotalLines, ShouldEqual, 0)
			So(plan.Layers, ShouldHaveLength, 1)
			So(plan.Layers[0].StartLine, ShouldEqual, 0)
			So(plan.Layers[0].EndLine, ShouldEqual, 0)
		})
	})

	Convey("Given G-code with two explicit layer markers", t, func() {
		content := strings.Join([]string{
			"G0 X0 Y0",
			";LAYER:0",
			"M3",
			"G1 X10 Y10",
			"M5",
			";LAYER:1",
			"M3",
			"G1 X20 Y20",
			"M5",
		}, "\n")
		plan := Parse(content)

		Convey("layers are contiguous, ordered, and cover every line", func() {
			So(plan.Layers, ShouldHaveLength, 2)
			So(plan.Layers[0].StartLine, ShouldEqual, 1)
			So(plan.Layers[0].EndLine+1, ShouldEqual, plan.Layers[1].StartLine)
			So(plan.Layers[len(plan.Layers)-1].EndLine, ShouldEqual, plan.Stats.TotalLines)
		})

		Convey("each LAYER marker becomes a layer checkpoint", func() {
			layerCheckpoints := 0
			for _, c := range plan.Checkpoints {
				if c.Type == CheckpointLayer {
					layerCheckpoints++
				}
			}
			So(layerCheckpoints, ShouldEqual, 2)
		})

		Convey("pen down/up via M3/M5 counts two shapes", func() {
			So(plan.Stats.Shapes, ShouldEqual, 2)
		})

		Convey("G0/G1 lines are tallied as rapid/linear moves", func() {
			So(plan.Stats.RapidMoves, ShouldEqual, 1)
			So(plan.Stats.LinearMoves, ShouldEqual, 2)
			So(plan.Stats.MovementCommands, ShouldEqual, 3)
		})
	})

	Convey("Given G-code with a tool change and a pause", t, func() {
		content := strings.Join([]string{
			"G0 X0 Y0",
			"T1",
			"G1 X5 Y5",
			"M0",
			"G1 X6 Y6",
		}, "\n")
		plan := Parse(content)

		Convey("the tool change is recorded with its previous tool", func() {
			So(plan.ToolChanges, ShouldHaveLength, 1)
			So(plan.ToolChanges[0].Tool, ShouldEqual, 1)
			So(plan.ToolChanges[0].PreviousTool, ShouldEqual, 0)
			So(plan.ToolChanges[0].Line, ShouldEqual, 2)
		})

		Convey("tool changes are a subset of tool-change-typed checkpoints", func() {
			found := false
			for _, c := range plan.Checkpoints {
				if c.Type == CheckpointToolChange && c.Line == plan.ToolChanges[0].Line {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})

		Convey("the pause produces a pause checkpoint", func() {
			found := false
			for _, c := range plan.Checkpoints {
				if c.Type == CheckpointPause {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})

	Convey("Given G-code with a large Z move while the pen is up and no explicit layers", t, func() {
		content := strings.Join([]string{
			"G0 X0 Y0 Z0",
			"G0 Z5",
			"G1 X1 Y1",
		}, "\n")
		plan := Parse(content)

		Convey("a z-change checkpoint is inferred", func() {
			found := false
			for _, c := range plan.Checkpoints {
				if c.Type == CheckpointZChange {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}
