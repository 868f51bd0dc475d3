// Package jobmanager admits, executes, and supervises parsed G-code plans
// against a transport.Controller: lifecycle, single-active-job admission,
// throttled progress, layer-change notifications, and pause/resume/cancel
// with abort-safe wakeups.
package jobmanager

import (
	"time"

	"plotterd/gparser"
	"plotterd/transport"
)

// State is a Job's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
	StateError     State = "error"
	StateCompleted State = "completed"
)

// IsTerminal reports whether s is one of the states from which no further
// transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateError || s == StateCompleted
}

// HistoryAction classifies an entry in a Job's history log.
type HistoryAction string

const (
	HistoryPause  HistoryAction = "pause"
	HistoryResume HistoryAction = "resume"
)

// HistoryEntry is one record in a Job's append-only pause/resume log.
type HistoryEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Line      int           `json:"line"`
	Action    HistoryAction `json:"action"`
}

// JobError describes why a job transitioned to the error state: the failure
// message plus the line and command that triggered it.
type JobError struct {
	Message string `json:"message"`
	Line    int    `json:"line"`
	Command string `json:"command,omitempty"`
}

// Progress is the Job's live execution snapshot.
type Progress struct {
	CurrentLine          int                `json:"currentLine"`
	TotalLines           int                `json:"totalLines"`
	Percentage           int                `json:"percentage"`
	CurrentLayer         int                `json:"currentLayer"`
	TotalLayers          int                `json:"totalLayers"`
	ElapsedMs            int64              `json:"elapsedMs"`
	EstimatedRemainingMs int64              `json:"estimatedRemainingMs"`
	CurrentPosition      transport.Position `json:"currentPosition"`
}

// Job is the scheduler entity: identity, state, the plan it executes, and
// its live progress. Fields are mutated only by the Manager that owns it,
// except CurrentPosition, which arrives via the transport's position-event
// path.
type Job struct {
	ID string `json:"id"`

	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Plan     *gparser.Plan  `json:"plan"`
	Progress Progress       `json:"progress"`
	History  []HistoryEntry `json:"history"`
	Err      *JobError      `json:"error,omitempty"`

	currentLine  int
	currentLayer int
}

func newJob(id string, plan *gparser.Plan) *Job {
	return &Job{
		ID:        id,
		State:     StatePending,
		CreatedAt: time.Now(),
		Plan:      plan,
		Progress: Progress{
			TotalLines:  plan.Stats.TotalLines,
			TotalLayers: len(plan.Layers),
		},
	}
}

// Snapshot returns a shallow copy of the Job safe for a caller to read
// without further synchronization.
func (j *Job) Snapshot() Job {
	cp := *j
	cp.History = append([]HistoryEntry(nil), j.History...)
	return cp
}
