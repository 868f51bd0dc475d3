package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const outboxSize = 64

// Client is one connected websocket subscriber: it can be subscribed to
// zero or more job ids, and receives broadcasts plus acks for its own
// inbound requests.
type Client struct {
	ws  *websock
	bus *Bus
	log *logrus.Entry

	out chan Message
}

func newClient(ws *websocket.Conn, bus *Bus, log *logrus.Entry) *Client {
	return &Client{
		ws:  newWebsock(ws),
		bus: bus,
		log: log,
		out: make(chan Message, outboxSize),
	}
}

// send enqueues msg for delivery to this client, dropping it if the
// client's outbox is saturated rather than blocking the publisher.
func (c *Client) send(msg Message) {
	select {
	case c.out <- msg:
	default:
		c.log.Warn("client outbox full, dropping event")
	}
}

// run drives the client's read loop, heartbeat, and publish loop until the
// connection closes or ctx is canceled; the three goroutines are torn down
// together via the errgroup.
func (c *Client) run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return c.readLoop(groupCtx) })
	group.Go(func() error { return c.pingLoop(groupCtx) })
	group.Go(func() error { return c.publishLoop(groupCtx) })

	err := group.Wait()
	c.bus.unregister(c)
	c.ws.close()
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		var msg Message
		err := c.ws.read(ctx, func(ws *websocket.Conn) error {
			return ws.ReadJSON(&msg)
		})
		if err != nil {
			if isUnexpectedClose(err) {
				return fmt.Errorf("client read failed: %w", err)
			}
			return err
		}
		c.handleInbound(msg)
	}
}

func (c *Client) handleInbound(msg Message) {
	switch msg.Type {
	case InboundSubscribe:
		req := decodeSubscription(msg.Data)
		if req.JobID == "" {
			return
		}
		c.bus.subscribe(c, req.JobID)
		c.send(Message{Type: EventSubscribed, Data: req, Timestamp: nowMillis()})
	case InboundUnsubscribe:
		req := decodeSubscription(msg.Data)
		if req.JobID == "" {
			return
		}
		c.bus.unsubscribe(c, req.JobID)
		c.send(Message{Type: EventUnsubscribed, Data: req, Timestamp: nowMillis()})
	case InboundPing:
		c.send(Message{Type: EventPong, Timestamp: nowMillis()})
	}
}

func decodeSubscription(data interface{}) subscriptionRequest {
	m, ok := data.(map[string]interface{})
	if !ok {
		return subscriptionRequest{}
	}
	id, _ := m["jobId"].(string)
	return subscriptionRequest{JobID: id}
}

func (c *Client) pingLoop(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	c.ws.conn().SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	// Each ping must be answered before the next tick: a client that misses
	// one probe entirely is dropped on the next.
	ticker := channerics.NewTicker(ctx.Done(), c.bus.heartbeatInterval)
	awaitingPong := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker:
			if awaitingPong {
				return fmt.Errorf("pong deadline exceeded")
			}
			err := c.ws.write(ctx, func(ws *websocket.Conn) error {
				return ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			})
			if err != nil {
				return err
			}
			awaitingPong = true
		case <-pong:
			awaitingPong = false
		}
	}
}

func (c *Client) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.out:
			if !ok {
				return nil
			}
			err := c.ws.write(ctx, func(ws *websocket.Conn) error {
				if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return err
				}
				return ws.WriteJSON(msg)
			})
			if err != nil {
				return err
			}
		}
	}
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
