// Package eventbus is the WebSocket fan-out bus: a per-connection
// subscription registry with broadcast, job-scoped, and unicast delivery.
package eventbus

// Outbound event type names the job execution loop and transport emit.
const (
	EventJobCreated     = "job:created"
	EventJobStarted     = "job:started"
	EventJobProgress    = "job:progress"
	EventJobLayerChange = "job:layer-change"
	EventJobPaused      = "job:paused"
	EventJobResumed     = "job:resumed"
	EventJobCompleted   = "job:completed"
	EventJobError       = "job:error"
	EventPositionUpdate = "position:update"
	EventMachineStatus  = "machine:status"

	EventConnected    = "connected"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventPong         = "pong"
)

// Inbound message type names the bus understands from clients.
const (
	InboundSubscribe   = "subscribe"
	InboundUnsubscribe = "unsubscribe"
	InboundPing        = "ping"
)

// Message is the wire schema for every frame the bus sends or receives.
// Timestamp is unix milliseconds.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// subscriptionRequest is the payload shape of inbound subscribe/unsubscribe
// messages.
type subscriptionRequest struct {
	JobID string `json:"jobId"`
}
