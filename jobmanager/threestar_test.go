package jobmanager

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"plotterd/gparser"
	"plotterd/transport"
)

// threeStarGCode builds the reference program that draws three five-point
// stars centered on a 480x480 mm canvas, pen actuation via the Z axis.
func threeStarGCode() string {
	var b strings.Builder
	b.WriteString("G21\n")
	b.WriteString("G90\n")
	b.WriteString("G0 Z5\n")

	centers := [][2]float64{{120, 240}, {240, 240}, {360, 240}}
	const radius = 50.0

	for i, c := range centers {
		b.WriteString(fmt.Sprintf("; star %d\n", i+1))

		// Pentagram: visit every second vertex of the pentagon, closing on
		// the start point.
		var pts [][2]float64
		for k := 0; k <= 5; k++ {
			theta := math.Pi/2 + 2*math.Pi*float64((k*2)%5)/5
			pts = append(pts, [2]float64{
				c[0] + radius*math.Cos(theta),
				c[1] + radius*math.Sin(theta),
			})
		}

		b.WriteString(fmt.Sprintf("G0 X%.3f Y%.3f\n", pts[0][0], pts[0][1]))
		b.WriteString("G1 Z-1 F300\n")
		for _, p := range pts[1:] {
			b.WriteString(fmt.Sprintf("G1 X%.3f Y%.3f F3000\n", p[0], p[1]))
		}
		b.WriteString("G0 Z5\n")
	}

	b.WriteString("G0 X0 Y0\n")
	return b.String()
}

func TestThreeStarFixture(t *testing.T) {
	content := threeStarGCode()

	Convey("Given the three-star reference program", t, func() {
		plan := gparser.Parse(content)

		Convey("it parses to a single Main layer with three shapes", func() {
			So(plan.Layers, ShouldHaveLength, 1)
			So(plan.Layers[0].Name, ShouldEqual, "Main")
			So(plan.Layers[0].EndLine, ShouldEqual, plan.Stats.TotalLines)
			So(plan.Stats.Shapes, ShouldEqual, 3)
			So(plan.Stats.MovementCommands, ShouldBeBetweenOrEqual, 26, 30)
		})

		Convey("running it against the simulated transport completes", func() {
			sim := transport.NewSimTransport(nil)
			sink := &fakeSink{}
			mgr := New(sim, sink, 50*time.Millisecond, nil)

			job, err := mgr.Submit(content)
			So(err, ShouldBeNil)
			So(mgr.Start(job.ID), ShouldBeNil)

			So(waitForState(mgr, job.ID, StateCompleted, 30*time.Second), ShouldBeTrue)

			final, _ := mgr.Get(job.ID)
			So(final.Progress.Percentage, ShouldEqual, 100)
			So(final.Progress.CurrentLine, ShouldEqual, final.Progress.TotalLines)
		})
	})
}
