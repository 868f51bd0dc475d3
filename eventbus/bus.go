package eventbus

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultHeartbeatInterval is the liveness-probe period applied when no
// interval is configured.
const DefaultHeartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Bus is the per-connection subscription registry: broadcast to all,
// broadcast to a job's subscribers, and unicast acks to the sender.
type Bus struct {
	heartbeatInterval time.Duration
	log               *logrus.Entry

	mu      sync.RWMutex
	clients map[*Client]struct{}
	subs    map[string]map[*Client]struct{}
}

// New returns a Bus with the given heartbeat interval. A non-positive
// interval falls back to DefaultHeartbeatInterval.
func New(heartbeatInterval time.Duration, log *logrus.Entry) *Bus {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{
		heartbeatInterval: heartbeatInterval,
		log:               log.WithField("component", "eventbus"),
		clients:           make(map[*Client]struct{}),
		subs:              make(map[string]map[*Client]struct{}),
	}
}

// ServeWS upgrades r to a websocket, registers the resulting client, and
// blocks until the connection closes. Intended to be called directly from
// an httpapi handler for the /ws route.
func (b *Bus) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newClient(conn, b, b.log)
	b.register(c)
	c.send(Message{Type: EventConnected, Timestamp: nowMillis()})

	return c.run(r.Context())
}

func (b *Bus) register(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Bus) unregister(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
	for jobID, set := range b.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(b.subs, jobID)
		}
	}
}

func (b *Bus) subscribe(c *Client, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[*Client]struct{})
		b.subs[jobID] = set
	}
	set[c] = struct{}{}
}

func (b *Bus) unsubscribe(c *Client, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[jobID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(b.subs, jobID)
		}
	}
}

// Broadcast delivers msg to every connected client.
func (b *Bus) Broadcast(eventType string, data interface{}) {
	msg := Message{Type: eventType, Data: data, Timestamp: nowMillis()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		c.send(msg)
	}
}

// BroadcastJob delivers msg only to clients subscribed to jobID.
func (b *Bus) BroadcastJob(jobID, eventType string, data interface{}) {
	msg := Message{Type: eventType, Data: data, Timestamp: nowMillis()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.subs[jobID] {
		c.send(msg)
	}
}

// ClientCount reports the number of connected clients, mainly for
// diagnostics and tests.
func (b *Bus) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
