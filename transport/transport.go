// Package transport owns the single bidirectional line-oriented channel to
// the pen-plotter controller: command serialization, response matching,
// position tracking, and a deterministic simulation mode for tests.
package transport

import (
	"context"
	"strings"
	"time"

	"plotterd/pkg/perrors"
)

// Transport is the full controller surface. The job manager is handed the
// narrower Controller interface below rather than this one, so it cannot
// reach into file-storage or pin operations it has no business touching.
type Transport interface {
	Controller

	ListFiles(ctx context.Context) ([]string, error)
	StorageInfo(ctx context.Context) (string, error)
	RunFile(ctx context.Context, name string) error
	UploadFile(ctx context.Context, name string, content string) error

	HomeAll(ctx context.Context, axes string) error
	MoveRapid(ctx context.Context, x, y, z float64) error
	MoveLinear(ctx context.Context, x, y, z, feedRate float64) error
	SetPin(ctx context.Context, pin, value int) error
	ReadPin(ctx context.Context, pin int) (int, error)
	WaitForIdle(ctx context.Context) error

	GetPosition(ctx context.Context) (Position, error)
	State() MachineState

	// Close releases the underlying link. Safe to call once.
	Close() error

	// SubscribeReady, SubscribeErrors, SubscribeClosed and SubscribeData
	// expose the transport's remaining observable events. Each returns an
	// independent channel plus a cancel func to release it, so the bus and
	// the job manager can each hold their own subscription without stealing
	// events from one another.
	SubscribeReady() (<-chan struct{}, func())
	SubscribeErrors() (<-chan error, func())
	SubscribeClosed() (<-chan struct{}, func())
	SubscribeData() (<-chan string, func())
}

// Controller is the narrow surface the job manager depends on: send a line,
// pause, stop, and observe position. Keeping this separate from Transport
// breaks what would otherwise be a cyclic dependency between the two.
type Controller interface {
	SendCommand(ctx context.Context, line string, timeout time.Duration) (string, error)
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	// SubscribePositions returns an independent feed of position events
	// plus a cancel func to release it.
	SubscribePositions() (<-chan Position, func())
}

// ErrNotReady is returned by command execution when no link is open.
var ErrNotReady = perrors.New(perrors.NotReady, "transport is not ready")

// terminators are the substrings that end a response: a response line
// containing one of these completes the command, and "Error" fails it.
var terminators = []string{"ok", "Done", "Error"}

func terminalMarker(line string) (marker string, isError bool, ok bool) {
	for _, t := range terminators {
		if strings.Contains(line, t) {
			return t, t == "Error", true
		}
	}
	return "", false, false
}
