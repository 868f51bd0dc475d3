package transport

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSimTransportPosition(t *testing.T) {
	Convey("Given a simulated transport", t, func() {
		sim := NewSimTransport(nil)
		ctx := context.Background()

		Convey("getPosition returns the fixed boot position and emits one position event", func() {
			positions, cancel := sim.SubscribePositions()
			defer cancel()

			pos, err := sim.GetPosition(ctx)
			So(err, ShouldBeNil)
			So(pos, ShouldResemble, Position{X: 100, Y: 50, Z: 10, E: 0})

			select {
			case evt := <-positions:
				So(evt, ShouldResemble, Position{X: 100, Y: 50, Z: 10, E: 0})
			case <-time.After(time.Second):
				t.Fatal("expected one position event")
			}

			select {
			case <-positions:
				t.Fatal("expected exactly one position event")
			case <-time.After(50 * time.Millisecond):
			}
		})

		Convey("unknown commands return ok", func() {
			resp, err := sim.SendCommand(ctx, "M999", time.Second)
			So(err, ShouldBeNil)
			So(resp, ShouldContainSubstring, "ok")
		})

		Convey("sendCommand is serial: a second call waits for the first", func() {
			start := time.Now()
			done := make(chan struct{}, 2)
			go func() {
				_, _ = sim.SendCommand(ctx, "M114", time.Second)
				done <- struct{}{}
			}()
			go func() {
				_, _ = sim.SendCommand(ctx, "M114", time.Second)
				done <- struct{}{}
			}()
			<-done
			<-done
			// Two ~100ms simulated commands serialized should take at least
			// ~200ms, not run concurrently in ~100ms.
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 2*simResponseDelay-10*time.Millisecond)
		})

		Convey("upload brackets the payload with begin/end write commands", func() {
			err := sim.UploadFile(ctx, "star.gcode", "G0 X0 Y0\nG1 X10 Y10\n")
			So(err, ShouldBeNil)

			files, err := sim.ListFiles(ctx)
			So(err, ShouldBeNil)
			So(files, ShouldContain, "star.gcode")
		})
	})
}
