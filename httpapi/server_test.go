package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"plotterd/eventbus"
	"plotterd/jobmanager"
	"plotterd/transport"
)

func newTestServer() (*httptest.Server, *jobmanager.Manager) {
	sim := transport.NewSimTransport(nil)
	bus := eventbus.New(time.Minute, nil)
	jobs := jobmanager.New(sim, bus, 50*time.Millisecond, nil)
	return httptest.NewServer(New(jobs, bus, sim, nil)), jobs
}

func TestJobEndpoints(t *testing.T) {
	Convey("Given a running API server over a simulated transport", t, func() {
		ts, _ := newTestServer()
		defer ts.Close()

		Convey("submitting G-code creates a pending job", func() {
			resp, err := http.Post(ts.URL+"/jobs", "text/plain", strings.NewReader("G0 X0 Y0\nG1 X10 Y10\n"))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			var job map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&job), ShouldBeNil)
			So(job["id"], ShouldNotBeEmpty)
			So(job["state"], ShouldEqual, "pending")

			Convey("and the job can be fetched back with its plan", func() {
				get, err := http.Get(ts.URL + "/jobs/" + job["id"].(string))
				So(err, ShouldBeNil)
				defer get.Body.Close()
				So(get.StatusCode, ShouldEqual, http.StatusOK)

				var fetched map[string]interface{}
				So(json.NewDecoder(get.Body).Decode(&fetched), ShouldBeNil)
				plan := fetched["plan"].(map[string]interface{})
				stats := plan["stats"].(map[string]interface{})
				So(stats["movementCommands"], ShouldEqual, 2.0)
			})
		})

		Convey("fetching an unknown job yields a structured 404", func() {
			resp, err := http.Get(ts.URL + "/jobs/no-such-id")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			var payload map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&payload), ShouldBeNil)
			So(payload["kind"], ShouldEqual, "NotFound")
		})

		Convey("the machine status snapshot reports the simulated position", func() {
			resp, err := http.Get(ts.URL + "/machine/status")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var state map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&state), ShouldBeNil)
			pos := state["position"].(map[string]interface{})
			So(pos["x"], ShouldEqual, 100.0)
			So(pos["y"], ShouldEqual, 50.0)
		})
	})
}

func TestCompileEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts, _ := newTestServer()
		defer ts.Close()

		Convey("compiling an SVG returns G-code and stats", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"svg": `<svg viewBox="0 0 100 100"><line x1="0" y1="0" x2="100" y2="0"/></svg>`,
			})
			resp, err := http.Post(ts.URL+"/svg/compile", "application/json", bytes.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var result map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&result), ShouldBeNil)
			So(result["gcode"], ShouldContainSubstring, "G21")
		})

		Convey("a request without an svg field is rejected as a ParseError", func() {
			resp, err := http.Post(ts.URL+"/svg/compile", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("compile-and-submit creates a job whose plan matches the compiled program", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"svg": `<svg viewBox="0 0 100 100"><rect x="10" y="10" width="20" height="20"/></svg>`,
			})
			resp, err := http.Post(ts.URL+"/svg/jobs", "application/json", bytes.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			var job map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&job), ShouldBeNil)
			So(job["state"], ShouldEqual, "pending")

			Convey("and its checkpoints endpoint answers", func() {
				get, err := http.Get(ts.URL + "/jobs/" + job["id"].(string) + "/checkpoints")
				So(err, ShouldBeNil)
				defer get.Body.Close()
				So(get.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})
}
