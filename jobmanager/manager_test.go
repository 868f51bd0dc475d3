package jobmanager

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"plotterd/transport"
)

// fakeController is a minimal transport.Controller that answers every
// command with "ok" after an optional delay, used to drive the execution
// loop in isolation from the real transport package.
type fakeController struct {
	delay time.Duration

	mu   sync.Mutex
	sent []string
}

func (f *fakeController) SendCommand(ctx context.Context, line string, _ time.Duration) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, line)
	f.mu.Unlock()
	return "ok", nil
}
func (f *fakeController) Pause(context.Context) error         { return nil }
func (f *fakeController) Stop(context.Context) error          { return nil }
func (f *fakeController) EmergencyStop(context.Context) error { return nil }
func (f *fakeController) SubscribePositions() (<-chan transport.Position, func()) {
	ch := make(chan transport.Position)
	return ch, func() {}
}

type sinkEvent struct {
	Type string
	Data interface{}
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (f *fakeSink) Broadcast(eventType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sinkEvent{Type: eventType, Data: data})
}

func (f *fakeSink) BroadcastJob(_ string, eventType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sinkEvent{Type: eventType, Data: data})
}

func (f *fakeSink) ofType(eventType string) []sinkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sinkEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestJobLifecycle(t *testing.T) {
	Convey("Given a manager with a fake controller", t, func() {
		ctrl := &fakeController{}
		sink := &fakeSink{}
		mgr := New(ctrl, sink, 10*time.Millisecond, nil)

		Convey("submitting a small program creates a pending job with a v4 UUID id", func() {
			job, err := mgr.Submit("G0 X0 Y0\nG1 X10 Y10\n")
			So(err, ShouldBeNil)
			So(job.State, ShouldEqual, StatePending)
			parsed, err := uuid.Parse(job.ID)
			So(err, ShouldBeNil)
			So(parsed.Version(), ShouldEqual, uuid.Version(4))
		})

		Convey("starting and running to completion", func() {
			job, _ := mgr.Submit("G0 X0 Y0\nG1 X10 Y10\n")
			err := mgr.Start(job.ID)
			So(err, ShouldBeNil)

			So(waitForState(mgr, job.ID, StateCompleted, time.Second), ShouldBeTrue)

			final, _ := mgr.Get(job.ID)
			So(final.Progress.CurrentLine, ShouldEqual, final.Progress.TotalLines)
			So(final.Progress.Percentage, ShouldEqual, 100)
			So(sink.ofType(eventJobCompleted), ShouldHaveLength, 1)
		})

		Convey("starting a job twice while running is refused", func() {
			ctrl.delay = 50 * time.Millisecond
			job, _ := mgr.Submit("G0 X0 Y0\nG0 X1 Y1\nG0 X2 Y2\n")
			So(mgr.Start(job.ID), ShouldBeNil)
			err := mgr.Start(job.ID)
			So(err, ShouldNotBeNil)
		})

		Convey("cancel immediately after start prevents completion", func() {
			ctrl.delay = 50 * time.Millisecond
			job, _ := mgr.Submit("G0 X0 Y0\nG0 X1 Y1\nG0 X2 Y2\n")
			So(mgr.Start(job.ID), ShouldBeNil)
			So(mgr.Cancel(context.Background(), job.ID), ShouldBeNil)

			So(waitForState(mgr, job.ID, StateCancelled, time.Second), ShouldBeTrue)
			So(sink.ofType(eventJobCompleted), ShouldBeEmpty)
		})

		Convey("deleting a running job is refused", func() {
			ctrl.delay = 50 * time.Millisecond
			job, _ := mgr.Submit("G0 X0 Y0\nG0 X1 Y1\n")
			So(mgr.Start(job.ID), ShouldBeNil)
			err := mgr.Delete(job.ID)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPauseResume(t *testing.T) {
	Convey("Given a long job on a slow controller", t, func() {
		ctrl := &fakeController{delay: time.Millisecond}
		sink := &fakeSink{}
		mgr := New(ctrl, sink, 10*time.Millisecond, nil)

		var lines []string
		for i := 0; i < 1000; i++ {
			lines = append(lines, "G1 X1 Y1")
		}
		job, _ := mgr.Submit(strings.Join(lines, "\n"))
		So(mgr.Start(job.ID), ShouldBeNil)

		Convey("pausing mid-run preserves currentLine and resume completes the job", func() {
			So(waitForLine(mgr, job.ID, 500, 10*time.Second), ShouldBeTrue)
			So(mgr.Pause(context.Background(), job.ID), ShouldBeNil)
			So(waitForState(mgr, job.ID, StatePaused, time.Second), ShouldBeTrue)

			paused, _ := mgr.Get(job.ID)
			So(paused.Progress.CurrentLine, ShouldBeGreaterThanOrEqualTo, 500)
			So(paused.History, ShouldNotBeEmpty)
			So(paused.History[len(paused.History)-1].Action, ShouldEqual, HistoryPause)

			So(mgr.Resume(job.ID), ShouldBeNil)
			So(waitForState(mgr, job.ID, StateCompleted, 10*time.Second), ShouldBeTrue)

			final, _ := mgr.Get(job.ID)
			So(final.Progress.CurrentLine, ShouldEqual, 1000)
			So(final.Progress.Percentage, ShouldEqual, 100)
		})
	})
}

func TestLayerChangeEvents(t *testing.T) {
	Convey("Given a program with two explicit layers", t, func() {
		ctrl := &fakeController{}
		sink := &fakeSink{}
		mgr := New(ctrl, sink, time.Hour, nil) // throttle everything but forced emits

		content := strings.Join([]string{
			";LAYER:0",
			"G0 X0 Y0",
			"G1 X10 Y0",
			";LAYER:1",
			"G1 X10 Y10",
		}, "\n")
		job, _ := mgr.Submit(content)
		So(mgr.Start(job.ID), ShouldBeNil)
		So(waitForState(mgr, job.ID, StateCompleted, time.Second), ShouldBeTrue)

		Convey("exactly one layer-change event fires, for layer 1", func() {
			changes := sink.ofType(eventJobLayerChange)
			So(changes, ShouldHaveLength, 1)
			payload, ok := changes[0].Data.(map[string]int)
			So(ok, ShouldBeTrue)
			So(payload["layer"], ShouldEqual, 1)
		})
	})
}

func waitForState(mgr *Manager, id string, want State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := mgr.Get(id)
		if err == nil && job.State == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func waitForLine(mgr *Manager, id string, line int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := mgr.Get(id)
		if err == nil && job.Progress.CurrentLine >= line {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
