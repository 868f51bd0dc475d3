package transport

import (
	"bufio"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"plotterd/pkg/perrors"
)

// SerialConfig configures the real (non-simulated) link.
type SerialConfig struct {
	Path           string
	BaudRate       int
	CommandTimeout time.Duration
}

// SerialTransport owns the one serial link to the controller: a single
// reader goroutine continually drains the stream and a single-flight gate
// enforces the one-command-in-flight invariant.
type SerialTransport struct {
	*base

	cfg  SerialConfig
	port *serial.Port

	cmdGate chan struct{}

	mu       sync.Mutex
	inFlight *responseAccumulator
	waiting  chan struct{} // closed when inFlight completes
}

// Open dials the serial link and starts the reader goroutine. On failure
// the transport is left not-ready and an error event is emitted.
func Open(ctx context.Context, cfg SerialConfig, log *logrus.Entry) (*SerialTransport, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("transport", "serial")

	t := &SerialTransport{
		base:    newBase(log),
		cfg:     cfg,
		cmdGate: make(chan struct{}, 1),
	}
	t.send = t.rawSend

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Path,
		Baud:        cfg.BaudRate,
		ReadTimeout: time.Second,
	})
	if err != nil {
		wrapped := perrors.Wrap(perrors.IOError, err, "failed to open serial port "+cfg.Path)
		t.errorHub.publish(wrapped)
		return nil, wrapped
	}
	t.port = port
	t.base.setStatus(StatusIdle)

	go t.readLoop()

	t.readyHub.publish(struct{}{})
	return t, nil
}

func (t *SerialTransport) Close() error {
	t.closedHub.publish(struct{}{})
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	if err != nil {
		return perrors.Wrap(perrors.IOError, err, "failed to close serial port")
	}
	return nil
}

// readLoop continually scans lines from the controller and routes them to
// whichever command is currently in flight.
func (t *SerialTransport) readLoop() {
	scanner := bufio.NewScanner(t.port)
	for scanner.Scan() {
		line := scanner.Text()

		t.mu.Lock()
		acc := t.inFlight
		var waiting chan struct{}
		if acc != nil {
			if done, _ := acc.feed(line); done {
				waiting = t.waiting
				t.waiting = nil
			}
		}
		t.mu.Unlock()

		if acc == nil {
			// Unsolicited data (e.g. startup banner); surface it via Data,
			// and via position tracking when it carries an X: value.
			t.base.observe(line)
			continue
		}
		if waiting != nil {
			close(waiting)
		}
	}
	if err := scanner.Err(); err != nil {
		t.errorHub.publish(perrors.Wrap(perrors.ProtocolError, err, "serial read failed"))
	}
	t.closedHub.publish(struct{}{})
}

// rawSend serializes command exchanges on cmdGate, so only one accumulator
// is ever in flight per transport instance.
func (t *SerialTransport) rawSend(ctx context.Context, line string, timeout time.Duration) (string, error) {
	if t.port == nil {
		return "", ErrNotReady
	}

	select {
	case t.cmdGate <- struct{}{}:
	case <-ctx.Done():
		return "", perrors.Wrap(perrors.Cancelled, ctx.Err(), "send canceled")
	}
	defer func() { <-t.cmdGate }()

	acc := &responseAccumulator{}
	done := make(chan struct{})

	t.mu.Lock()
	t.inFlight = acc
	t.waiting = done
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight = nil
		t.mu.Unlock()
	}()

	if _, err := t.port.Write([]byte(line + "\n")); err != nil {
		return "", perrors.Wrap(perrors.IOError, err, "serial write failed")
	}

	select {
	case <-done:
	case <-time.After(timeout):
		return "", perrors.Newf(perrors.Timeout, "command %q timed out after %s", line, timeout)
	case <-ctx.Done():
		return "", perrors.Wrap(perrors.Cancelled, ctx.Err(), "send canceled")
	}

	if _, isErr, _ := terminalMarker(acc.lines[len(acc.lines)-1]); isErr {
		return "", acc.asError()
	}
	return acc.body(), nil
}
