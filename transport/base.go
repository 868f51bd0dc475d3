package transport

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"plotterd/pkg/gcode"
	"plotterd/pkg/perrors"
)

// rawSendFunc performs the low-level exchange for a single line and waits
// for its accumulated, terminator-matched response. Both SimTransport and
// SerialTransport supply one of these; everything else (file commands,
// motion primitives, pin control, position polling) is implemented once on
// top of it here, in base, so the command vocabulary has a single source of
// truth.
type rawSendFunc func(ctx context.Context, line string, timeout time.Duration) (string, error)

// base implements the high-level Transport/Controller surface in terms of a
// rawSendFunc and a shared, hub-broadcast event model.
type base struct {
	send rawSendFunc
	log  *logrus.Entry

	mu    sync.Mutex
	state MachineState

	readyHub    *hub[struct{}]
	errorHub    *hub[error]
	closedHub   *hub[struct{}]
	dataHub     *hub[string]
	positionHub *hub[Position]
}

func newBase(log *logrus.Entry) *base {
	return &base{
		log:         log,
		state:       MachineState{Status: StatusUnknown},
		readyHub:    newHub[struct{}](),
		errorHub:    newHub[error](),
		closedHub:   newHub[struct{}](),
		dataHub:     newHub[string](),
		positionHub: newHub[Position](),
	}
}

func (b *base) SubscribeReady() (<-chan struct{}, func())  { return b.readyHub.subscribe(1) }
func (b *base) SubscribeErrors() (<-chan error, func())    { return b.errorHub.subscribe(4) }
func (b *base) SubscribeClosed() (<-chan struct{}, func()) { return b.closedHub.subscribe(1) }
func (b *base) SubscribeData() (<-chan string, func())     { return b.dataHub.subscribe(32) }
func (b *base) SubscribePositions() (<-chan Position, func()) {
	return b.positionHub.subscribe(8)
}

func (b *base) State() MachineState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setStatus(status string) {
	b.mu.Lock()
	b.state.Status = status
	b.mu.Unlock()
}

// observe scans a response body for position data and, when found, updates
// state and emits a position event.
func (b *base) observe(body string) {
	b.mu.Lock()
	pos, ok := parsePosition(body, b.state.Position)
	if ok {
		b.state.Position = pos
		b.state.LastUpdate = time.Now()
	}
	b.mu.Unlock()

	if ok {
		b.positionHub.publish(pos)
	}
	b.dataHub.publish(body)
}

func (b *base) SendCommand(ctx context.Context, line string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	body, err := b.send(ctx, line, timeout)
	if err != nil {
		return "", err
	}
	b.observe(body)
	return body, nil
}

func (b *base) GetPosition(ctx context.Context) (Position, error) {
	if _, err := b.SendCommand(ctx, "M114", DefaultCommandTimeout); err != nil {
		return Position{}, err
	}
	return b.State().Position, nil
}

func (b *base) ListFiles(ctx context.Context) ([]string, error) {
	body, err := b.SendCommand(ctx, "M20", DefaultCommandTimeout)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range splitNonEmpty(body) {
		if line == "ok" || line == "Done" ||
			strings.HasPrefix(line, "Begin file list") || strings.HasPrefix(line, "End file list") {
			continue
		}
		files = append(files, line)
	}
	return files, nil
}

func (b *base) StorageInfo(ctx context.Context) (string, error) {
	return b.SendCommand(ctx, "M39", DefaultCommandTimeout)
}

func (b *base) RunFile(ctx context.Context, name string) error {
	if _, err := b.SendCommand(ctx, fmt.Sprintf("M23 %s", name), DefaultCommandTimeout); err != nil {
		return err
	}
	_, err := b.SendCommand(ctx, "M24", DefaultCommandTimeout)
	return err
}

// UploadFile brackets the payload with begin- and end-write commands and
// sends every non-empty line in order, expecting one "ok" per line. Some
// firmwares echo differently; this has only been run against the simulated
// responder.
func (b *base) UploadFile(ctx context.Context, name string, content string) error {
	if _, err := b.SendCommand(ctx, fmt.Sprintf("M28 %s", name), DefaultCommandTimeout); err != nil {
		return err
	}
	for _, line := range splitNonEmpty(content) {
		if _, err := b.SendCommand(ctx, line, DefaultCommandTimeout); err != nil {
			return err
		}
	}
	_, err := b.SendCommand(ctx, "M29", DefaultCommandTimeout)
	return err
}

func (b *base) Pause(ctx context.Context) error {
	_, err := b.SendCommand(ctx, "M25", DefaultCommandTimeout)
	return err
}

func (b *base) Stop(ctx context.Context) error {
	_, err := b.SendCommand(ctx, "M0", DefaultCommandTimeout)
	return err
}

func (b *base) EmergencyStop(ctx context.Context) error {
	_, err := b.SendCommand(ctx, "M112", DefaultCommandTimeout)
	return err
}

func (b *base) HomeAll(ctx context.Context, axes string) error {
	line := "G28"
	if axes != "" {
		line = fmt.Sprintf("G28 %s", axes)
	}
	_, err := b.SendCommand(ctx, line, DefaultCommandTimeout)
	return err
}

func (b *base) MoveRapid(ctx context.Context, x, y, z float64) error {
	line := fmt.Sprintf("G0 X%s Y%s Z%s", gcode.FormatCoord(x), gcode.FormatCoord(y), gcode.FormatCoord(z))
	_, err := b.SendCommand(ctx, line, DefaultCommandTimeout)
	return err
}

func (b *base) MoveLinear(ctx context.Context, x, y, z, feedRate float64) error {
	line := fmt.Sprintf("G1 X%s Y%s Z%s", gcode.FormatCoord(x), gcode.FormatCoord(y), gcode.FormatCoord(z))
	if feedRate > 0 {
		line += " F" + gcode.FormatFeed(feedRate)
	}
	_, err := b.SendCommand(ctx, line, DefaultCommandTimeout)
	return err
}

func (b *base) SetPin(ctx context.Context, pin, value int) error {
	line := fmt.Sprintf("M42 P%d S%d", pin, value)
	_, err := b.SendCommand(ctx, line, DefaultCommandTimeout)
	return err
}

func (b *base) ReadPin(ctx context.Context, pin int) (int, error) {
	body, err := b.SendCommand(ctx, fmt.Sprintf("M42 P%d", pin), DefaultCommandTimeout)
	if err != nil {
		return 0, err
	}
	return parsePinValue(body), nil
}

func (b *base) WaitForIdle(ctx context.Context) error {
	for {
		state := b.State()
		if state.Status != StatusBusy {
			return nil
		}
		select {
		case <-ctx.Done():
			return perrors.Wrap(perrors.Cancelled, ctx.Err(), "wait for idle canceled")
		case <-time.After(positionPollInterval):
		}
		if _, err := b.GetPosition(ctx); err != nil {
			return err
		}
	}
}

// splitNonEmpty breaks content into trimmed, non-blank lines, in order.
func splitNonEmpty(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

var pinValuePattern = regexp.MustCompile(`:\s*(-?\d+)`)

func parsePinValue(body string) int {
	m := pinValuePattern.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	v, _ := strconv.Atoi(m[1])
	return v
}
