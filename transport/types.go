package transport

import "time"

// Position is the controller's reported axis state, in millimetres for X/Y/Z
// and extruder-equivalent units for E (unused by a pen plotter but part of
// the wire format every M114-style controller emits).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	E float64 `json:"e"`
}

// MachineState is the Transport's view of the controller: the last known
// position, a free-form status string, and when it was last refreshed.
type MachineState struct {
	Position   Position  `json:"position"`
	Status     string    `json:"status"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// Status values the transport assigns. Status is never set from controller
// output.
const (
	StatusUnknown = "unknown"
	StatusIdle    = "idle"
	StatusBusy    = "busy"
)

// DefaultCommandTimeout is applied when a caller does not specify one.
const DefaultCommandTimeout = 5 * time.Second

// simResponseDelay approximates the latency of a real controller in
// simulation mode.
const simResponseDelay = 100 * time.Millisecond

// positionPollInterval is how often WaitForIdle re-polls position while the
// controller is busy.
const positionPollInterval = 500 * time.Millisecond
