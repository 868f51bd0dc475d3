// Package httpapi is the public surface wiring the SVG compiler, G-code
// parser, job manager, and event bus together: REST endpoints for job
// submission and control, SVG compilation, and the WebSocket upgrade.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"plotterd/eventbus"
	"plotterd/jobmanager"
	"plotterd/transport"
)

// Server is the daemon's HTTP/WebSocket surface.
type Server struct {
	jobs   *jobmanager.Manager
	bus    *eventbus.Bus
	ctrl   transport.Transport
	log    *logrus.Entry
	router *mux.Router
}

// New wires a Server and registers its routes.
func New(jobs *jobmanager.Manager, bus *eventbus.Bus, ctrl transport.Transport, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		jobs:   jobs,
		bus:    bus,
		ctrl:   ctrl,
		log:    log.WithField("component", "httpapi"),
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)

	s.router.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs", s.handleSubmitJob).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}", s.handleDeleteJob).Methods(http.MethodDelete)
	s.router.HandleFunc("/jobs/{id}/start", s.handleStartJob).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}/pause", s.handlePauseJob).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}/resume", s.handleResumeJob).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}/cancel", s.handleCancelJob).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}/checkpoints", s.handleCheckpoints).Methods(http.MethodGet)

	s.router.HandleFunc("/svg/compile", s.handleCompileSVG).Methods(http.MethodPost)
	s.router.HandleFunc("/svg/jobs", s.handleSubmitSVG).Methods(http.MethodPost)

	s.router.HandleFunc("/machine/status", s.handleMachineStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/machine/files/{name}/run", s.handleRunFile).Methods(http.MethodPost)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if err := s.bus.ServeWS(w, r); err != nil {
		s.log.WithError(err).Debug("websocket session ended")
	}
}
