package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = time.Second
	readWait   = time.Second
	closeGrace = 5 * time.Second
)

// ErrSockCongestion indicates too many waiters on the socket for a given
// operation.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

// websock serializes reads and writes to a single websocket connection,
// which gorilla/websocket requires (at most one concurrent reader, one
// concurrent writer).
type websock struct {
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

func (s *websock) conn() *websocket.Conn { return s.ws }

func (s *websock) close() {
	s.readSem <- struct{}{}
	s.writeSem <- struct{}{}
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGrace)
	s.ws.Close()
}

func (s *websock) read(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.readSem <- struct{}{}:
		defer func() { <-s.readSem }()
		return fn(s.ws)
	case <-time.After(readWait):
		return ErrSockCongestion
	}
}

func (s *websock) write(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.writeSem <- struct{}{}:
		defer func() { <-s.writeSem }()
		return fn(s.ws)
	case <-time.After(writeWait):
		return ErrSockCongestion
	}
}

func isUnexpectedClose(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
