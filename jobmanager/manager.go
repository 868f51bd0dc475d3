package jobmanager

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"plotterd/gparser"
	"plotterd/pkg/perrors"
	"plotterd/transport"
)

// DefaultProgressInterval bounds how often progress events reach the bus.
const DefaultProgressInterval = 500 * time.Millisecond

const commandTimeout = 5 * time.Second

// EventSink is the narrow slice of eventbus.Bus the manager depends on,
// kept as a local interface so jobmanager does not import eventbus
// directly, the same reasoning that split transport.Transport/Controller
// one level up the stack.
type EventSink interface {
	Broadcast(eventType string, data interface{})
	BroadcastJob(jobID, eventType string, data interface{})
}

// Manager admits, runs, and supervises Jobs against a transport.Controller.
// At most one job is running at a time, gated by activeID.
type Manager struct {
	ctrl     transport.Controller
	bus      EventSink
	progress time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	jobs     map[string]*Job
	activeID string
	runs     map[string]*runState
}

// runState is the per-run control surface created fresh each time a job
// starts or resumes execution, so a stale Pause/Cancel from a previous run
// can never affect a later one.
type runState struct {
	cancel  context.CancelFunc
	pauseCh chan struct{}
	once    sync.Once
}

func (r *runState) requestPause() {
	r.once.Do(func() { close(r.pauseCh) })
}

func (r *runState) pauseRequested() bool {
	select {
	case <-r.pauseCh:
		return true
	default:
		return false
	}
}

// New returns a Manager. A non-positive progress interval falls back to
// DefaultProgressInterval.
func New(ctrl transport.Controller, bus EventSink, progressInterval time.Duration, log *logrus.Entry) *Manager {
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		ctrl:     ctrl,
		bus:      bus,
		progress: progressInterval,
		log:      log.WithField("component", "jobmanager"),
		jobs:     make(map[string]*Job),
		runs:     make(map[string]*runState),
	}
}

// Submit parses content into a Plan and creates a new pending Job.
func (m *Manager) Submit(content string) (*Job, error) {
	plan := gparser.Parse(content)
	job := newJob(uuid.NewString(), plan)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.bus.Broadcast(eventJobCreated, jobSummary(job))
	return job, nil
}

// Get returns a snapshot of the job with the given id.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, perrors.Newf(perrors.NotFound, "job %q not found", id)
	}
	return job.Snapshot(), nil
}

// List returns a snapshot of every known job.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Snapshot())
	}
	return out
}

// ActiveJobID returns the id of the currently running job, or "" when the
// machine is idle. The idle position poller keys off this.
func (m *Manager) ActiveJobID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Delete removes a job. Deleting a running job is refused.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return perrors.Newf(perrors.NotFound, "job %q not found", id)
	}
	if job.State == StateRunning {
		return perrors.New(perrors.InvalidState, "cannot delete a running job")
	}
	delete(m.jobs, id)
	delete(m.runs, id)
	return nil
}

// Start transitions a pending or paused job to running and launches its
// execution loop. The run is supervised by the manager itself rather than
// any caller's context, so the job keeps executing after the HTTP request
// that started it returns.
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return perrors.Newf(perrors.NotFound, "job %q not found", id)
	}
	if job.State != StatePending && job.State != StatePaused {
		m.mu.Unlock()
		return perrors.Newf(perrors.InvalidState, "cannot start job in state %q", job.State)
	}
	if m.activeID != "" && m.activeID != id {
		m.mu.Unlock()
		return perrors.New(perrors.InvalidState, "another job is already running")
	}

	resuming := job.State == StatePaused
	now := time.Now()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.State = StateRunning
	m.activeID = id

	runCtx, cancel := context.WithCancel(context.Background())
	rs := &runState{cancel: cancel, pauseCh: make(chan struct{})}
	m.runs[id] = rs

	if resuming {
		job.History = append(job.History, HistoryEntry{Timestamp: now, Line: job.currentLine, Action: HistoryResume})
	}
	summary := jobSummary(job)
	m.mu.Unlock()

	if resuming {
		m.bus.BroadcastJob(id, eventJobResumed, summary)
	} else {
		m.bus.BroadcastJob(id, eventJobStarted, summary)
	}

	go m.execute(runCtx, job, rs)
	return nil
}

// Resume re-enters execution of a paused job from its current line. The
// transition logic is identical to Start's, so it simply delegates.
func (m *Manager) Resume(id string) error {
	return m.Start(id)
}

// Pause issues the controller pause and requests that a running job
// transition to paused. The execution loop observes the request before its
// next send and performs the transition.
func (m *Manager) Pause(ctx context.Context, id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return perrors.Newf(perrors.NotFound, "job %q not found", id)
	}
	if job.State != StateRunning {
		m.mu.Unlock()
		return perrors.Newf(perrors.InvalidState, "cannot pause job in state %q", job.State)
	}
	rs := m.runs[id]
	m.mu.Unlock()

	if err := m.ctrl.Pause(ctx); err != nil {
		m.log.WithError(err).Warn("controller pause command failed")
	}
	if rs != nil {
		rs.requestPause()
	}
	return nil
}

// Cancel aborts a running or paused job: the run context is cancelled and
// the controller is issued a stop.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return perrors.Newf(perrors.NotFound, "job %q not found", id)
	}
	if job.State != StateRunning && job.State != StatePaused {
		m.mu.Unlock()
		return perrors.Newf(perrors.InvalidState, "cannot cancel job in state %q", job.State)
	}
	rs := m.runs[id]
	wasPaused := job.State == StatePaused
	m.mu.Unlock()

	if err := m.ctrl.Stop(ctx); err != nil {
		m.log.WithError(err).Warn("controller stop command failed")
	}
	if rs != nil {
		rs.cancel()
	}

	if wasPaused {
		// No execution loop is active to observe the cancellation; finish
		// the transition here.
		m.finish(job, StateCancelled, nil)
	}
	return nil
}

// forwardPosition updates the active job's tracked position and relays the
// sample to the bus unconditionally, outside the progress throttle.
func (m *Manager) forwardPosition(pos transport.Position) {
	m.bus.Broadcast(eventPositionUpdate, pos)

	m.mu.Lock()
	if job, ok := m.jobs[m.activeID]; ok {
		job.Progress.CurrentPosition = pos
	}
	m.mu.Unlock()
}

// Watch subscribes to ctrl's position feed and forwards every sample until
// ctx is done. Intended to be run once, for the lifetime of the process, by
// the integration layer that constructs the Manager.
func (m *Manager) Watch(ctx context.Context) {
	positions, cancel := m.ctrl.SubscribePositions()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-positions:
			if !ok {
				return
			}
			m.forwardPosition(pos)
		}
	}
}

// execute is the per-job run loop. Job fields are mutated under m.mu so
// List/Get snapshots taken concurrently stay consistent; the
// single-active-job gate guarantees no second loop mutates the same job.
func (m *Manager) execute(ctx context.Context, job *Job, rs *runState) {
	lines := contentLines(job.Plan.Content)
	started := time.Now()
	startLine := job.currentLine
	priorElapsed := time.Duration(job.Progress.ElapsedMs) * time.Millisecond
	lastEmit := time.Time{}

	emit := func(summary jobSummaryView, force bool) {
		if !force && time.Since(lastEmit) < m.progress {
			return
		}
		lastEmit = time.Now()
		m.bus.BroadcastJob(job.ID, eventJobProgress, summary)
	}

	for {
		m.mu.Lock()
		cur := job.currentLine
		m.mu.Unlock()
		if cur >= len(lines) {
			break
		}

		select {
		case <-ctx.Done():
			m.finish(job, StateCancelled, nil)
			return
		case <-rs.pauseCh:
			m.pauseExit(job)
			return
		default:
		}

		line := strings.TrimSpace(lines[cur])
		if line == "" || strings.HasPrefix(line, ";") {
			summary, layerChanged := m.advance(job, lines, started, startLine, priorElapsed)
			emit(summary, layerChanged)
			continue
		}

		if _, err := m.ctrl.SendCommand(ctx, line, commandTimeout); err != nil {
			switch {
			case perrors.Is(err, perrors.Cancelled) || errors.Is(err, context.Canceled):
				m.finish(job, StateCancelled, nil)
			case rs.pauseRequested():
				// The send failed while a pause was already in flight;
				// treat it as the pause, preserving currentLine.
				m.pauseExit(job)
			default:
				m.finish(job, StateError, &JobError{Message: err.Error(), Line: cur + 1, Command: line})
			}
			return
		}

		summary, layerChanged := m.advance(job, lines, started, startLine, priorElapsed)
		emit(summary, layerChanged)
	}

	m.finish(job, StateCompleted, nil)
}

// advance moves the job past the line just handled and refreshes its
// progress counters: percentage, elapsed, and a remaining-time estimate from
// the per-line throughput observed within the current run.
func (m *Manager) advance(job *Job, lines []string, started time.Time, startLine int, priorElapsed time.Duration) (jobSummaryView, bool) {
	m.mu.Lock()
	job.currentLine++
	job.Progress.CurrentLine = job.currentLine
	job.Progress.Percentage = percentage(job.currentLine, len(lines))
	job.Progress.ElapsedMs = (priorElapsed + time.Since(started)).Milliseconds()

	advancedThisRun := job.currentLine - startLine
	if advancedThisRun > 0 {
		msPerLine := float64(time.Since(started).Milliseconds()) / float64(advancedThisRun)
		job.Progress.EstimatedRemainingMs = int64(float64(len(lines)-job.currentLine) * msPerLine)
	}

	layerChanged, newLayer := false, 0
	for _, layer := range job.Plan.Layers {
		if layer.StartLine == job.currentLine && layer.Index != job.currentLayer {
			job.currentLayer = layer.Index
			job.Progress.CurrentLayer = layer.Index
			layerChanged, newLayer = true, layer.Index
			break
		}
	}
	summary := jobSummary(job)
	m.mu.Unlock()

	if layerChanged {
		m.bus.BroadcastJob(job.ID, eventJobLayerChange, map[string]int{"layer": newLayer})
	}
	return summary, layerChanged
}

// pauseExit performs the running → paused transition from inside the
// execution loop, preserving currentLine for resume.
func (m *Manager) pauseExit(job *Job) {
	now := time.Now()
	m.mu.Lock()
	job.State = StatePaused
	job.History = append(job.History, HistoryEntry{Timestamp: now, Line: job.currentLine, Action: HistoryPause})
	if m.activeID == job.ID {
		m.activeID = ""
	}
	summary := jobSummary(job)
	m.mu.Unlock()

	m.bus.BroadcastJob(job.ID, eventJobPaused, summary)
}

func (m *Manager) finish(job *Job, state State, jobErr *JobError) {
	now := time.Now()
	m.mu.Lock()
	job.State = state
	job.Err = jobErr
	if state.IsTerminal() {
		job.CompletedAt = &now
	}
	if m.activeID == job.ID {
		m.activeID = ""
	}
	delete(m.runs, job.ID)
	summary := jobSummary(job)
	m.mu.Unlock()

	switch state {
	case StateCompleted:
		m.bus.BroadcastJob(job.ID, eventJobCompleted, summary)
	case StateError:
		m.bus.BroadcastJob(job.ID, eventJobError, summary)
	case StateCancelled:
		// A cancelled job emits no error, completion, or further progress
		// events; subscribers learn of it from the job snapshot.
	}
}

func percentage(current, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(current) / float64(total) * 100.0))
}

func contentLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}

type jobSummaryView struct {
	ID       string   `json:"id"`
	State    State    `json:"state"`
	Progress Progress `json:"progress"`
}

func jobSummary(job *Job) jobSummaryView {
	return jobSummaryView{ID: job.ID, State: job.State, Progress: job.Progress}
}

const (
	eventJobCreated     = "job:created"
	eventJobStarted     = "job:started"
	eventJobProgress    = "job:progress"
	eventJobLayerChange = "job:layer-change"
	eventJobPaused      = "job:paused"
	eventJobResumed     = "job:resumed"
	eventJobCompleted   = "job:completed"
	eventJobError       = "job:error"
	eventPositionUpdate = "position:update"
)
