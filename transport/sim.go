package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SimTransport replaces the serial link with a deterministic responder. It
// answers after a small fixed delay based on a command-prefix table covering
// the daemon's command vocabulary; anything unrecognized gets a bare "ok".
type SimTransport struct {
	*base

	cmdGate chan struct{} // FIFO-ish single-flight gate (spec: "at most one outstanding call")

	filesMu sync.Mutex
	files   map[string]string
	current string
	writing bool
}

// NewSimTransport constructs a ready-to-use simulated transport. There is
// no link to open, so ready fires immediately.
func NewSimTransport(log *logrus.Entry) *SimTransport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &SimTransport{
		base:    newBase(log.WithField("transport", "sim")),
		cmdGate: make(chan struct{}, 1),
		files:   map[string]string{},
	}
	s.send = s.rawSend
	s.base.setStatus(StatusIdle)
	// The simulated controller boots at a fixed, known position so tests
	// can assert on GetPosition without first issuing a move.
	s.base.state.Position = Position{X: 100, Y: 50, Z: 10, E: 0}
	s.readyHub.publish(struct{}{})
	return s
}

func (s *SimTransport) Close() error {
	s.closedHub.publish(struct{}{})
	return nil
}

// rawSend serializes on cmdGate (spec: "exactly one command is in flight at
// a time; callers contend on a FIFO mutex"), then answers synthetically.
func (s *SimTransport) rawSend(ctx context.Context, line string, timeout time.Duration) (string, error) {
	select {
	case s.cmdGate <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.cmdGate }()

	select {
	case <-time.After(simResponseDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	body, isErr := s.simulate(line)
	if isErr {
		acc := &responseAccumulator{lines: strings.Split(body, "\n")}
		return "", acc.asError()
	}
	return body, nil
}

// simulate maps a command line to a synthetic response via the
// command-prefix table.
func (s *SimTransport) simulate(line string) (body string, isErr bool) {
	trimmed := strings.TrimSpace(line)
	s.base.setStatus(StatusBusy)
	defer s.base.setStatus(StatusIdle)

	// While a write bracket is open (M28 .. M29), every line except the
	// closing M29 is payload: append it to the open file and acknowledge.
	s.filesMu.Lock()
	if s.writing && !strings.HasPrefix(trimmed, "M29") {
		s.files[s.current] += trimmed + "\n"
		s.filesMu.Unlock()
		return "ok", false
	}
	s.filesMu.Unlock()

	switch {
	case strings.HasPrefix(trimmed, "M114"):
		pos := s.base.State().Position
		return fmt.Sprintf("X:%.3f Y:%.3f Z:%.3f E:%.3f\nok", pos.X, pos.Y, pos.Z, pos.E), false

	case strings.HasPrefix(trimmed, "M20"):
		s.filesMu.Lock()
		defer s.filesMu.Unlock()
		var b strings.Builder
		b.WriteString("Begin file list\n")
		for name := range s.files {
			b.WriteString(name)
			b.WriteString("\n")
		}
		b.WriteString("End file list\nok")
		return b.String(), false

	case strings.HasPrefix(trimmed, "M39"):
		return "SD card ok\nok", false

	case strings.HasPrefix(trimmed, "M23"):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "M23"))
		s.filesMu.Lock()
		_, known := s.files[name]
		if known {
			s.current = name
		}
		s.filesMu.Unlock()
		if !known {
			return "File not found\nError", true
		}
		return fmt.Sprintf("File opened: %s\nok", name), false

	case strings.HasPrefix(trimmed, "M24"):
		return "ok", false

	case strings.HasPrefix(trimmed, "M28"):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "M28"))
		s.filesMu.Lock()
		s.current = name
		s.files[name] = ""
		s.writing = true
		s.filesMu.Unlock()
		return "Writing to file\nok", false

	case strings.HasPrefix(trimmed, "M29"):
		s.filesMu.Lock()
		s.writing = false
		s.filesMu.Unlock()
		return "Done saving file\nok", false

	case strings.HasPrefix(trimmed, "M25"):
		return "ok", false

	case trimmed == "M0":
		return "ok", false

	case trimmed == "M112":
		return "ok", false

	case strings.HasPrefix(trimmed, "G28"):
		return "ok", false

	case strings.HasPrefix(trimmed, "G0"), strings.HasPrefix(trimmed, "G1"):
		s.applyMotion(trimmed)
		return "ok", false

	case strings.HasPrefix(trimmed, "M42"):
		return "ok", false

	default:
		return "ok", false
	}
}

func (s *SimTransport) applyMotion(line string) {
	pos := s.base.State().Position
	for _, tok := range strings.Fields(line) {
		if len(tok) < 2 {
			continue
		}
		var val float64
		if _, err := fmt.Sscanf(tok[1:], "%f", &val); err != nil {
			continue
		}
		switch tok[0] {
		case 'X':
			pos.X = val
		case 'Y':
			pos.Y = val
		case 'Z':
			pos.Z = val
		}
	}
	s.base.mu.Lock()
	s.base.state.Position = pos
	s.base.state.LastUpdate = time.Now()
	s.base.mu.Unlock()
	s.base.positionHub.publish(pos)
}
