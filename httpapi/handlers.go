package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"plotterd/pkg/gcode"
	"plotterd/pkg/perrors"
	"plotterd/svgcompiler"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, perrors.Wrap(perrors.ParseError, err, "failed to read request body"))
		return
	}
	job, err := s.jobs.Submit(string(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.jobs.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.jobs.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.jobs.Start(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.jobs.Pause(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.jobs.Resume(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.jobs.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleCheckpoints surfaces a job's resume points so a client can pick a
// restart line after a machine interruption.
func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.jobs.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job.Plan.Checkpoints)
}

// handleMachineStatus is a snapshot read of the transport's current state,
// for clients that just connected and have not yet seen a machine:status
// event.
func (s *Server) handleMachineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

func (s *Server) handleRunFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.ctrl.RunFile(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type compileRequest struct {
	SVG     string              `json:"svg"`
	Options gcode.CanvasOptions `json:"options"`
}

func (s *Server) decodeCompileRequest(r *http.Request) (compileRequest, error) {
	var req compileRequest
	req.Options = gcode.DefaultCanvasOptions()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, perrors.Wrap(perrors.ParseError, err, "invalid request body")
	}
	if req.SVG == "" {
		return req, perrors.New(perrors.ParseError, "svg field is required")
	}
	return req, nil
}

func (s *Server) handleCompileSVG(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeCompileRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := svgcompiler.Compile(req.SVG, req.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSubmitSVG compiles an SVG document and submits the resulting
// G-code as a job in one step.
func (s *Server) handleSubmitSVG(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeCompileRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := svgcompiler.Compile(req.SVG, req.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := s.jobs.Submit(result.GCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}
