package kalm

import (
	"time"

	"github.com/bft-labs/kalm/internal/lifecycle"
)

// State is the lifecycle state of a connection or server.
type State = lifecycle.State

const (
	StateOpen    = lifecycle.StateOpen
	StateClosing = lifecycle.StateClosing
	StateClosed  = lifecycle.StateClosed
)

// StateChangeEvent is emitted on every connection state transition.
type StateChangeEvent struct {
	ConnectionID string
	Previous     State
	Current      State
	Reason       string
	Timestamp    time.Time
}

// ConnectionOpenedEvent is emitted when a connection is established, before
// its receive loop starts.
type ConnectionOpenedEvent struct {
	ConnectionID string
	RemoteAddr   string
	Transport    string
}

// ConnectionClosedEvent is emitted once per connection after its receive
// loop exits. Err is nil for a normal close and otherwise reports the fatal
// stream error (ErrIntegrity, ErrMalformedFrame, ErrConnection).
type ConnectionClosedEvent struct {
	ConnectionID string
	Err          error
}

// DispatchErrorEvent reports a packet that could not be delivered to a
// subscriber. The connection stays open.
type DispatchErrorEvent struct {
	ConnectionID string
	Channel      string
	Err          error
}

// FlushEvent is emitted after buffered packets are sent.
type FlushEvent struct {
	ConnectionID string
	Frames       int
	Packets      int
	Bytes        int
}

// EventHandler receives connection events. Methods are called synchronously
// from connection goroutines and must be safe for concurrent use.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnConnectionOpened(event ConnectionOpenedEvent)
	OnConnectionClosed(event ConnectionClosedEvent)
	OnDispatchError(event DispatchErrorEvent)
	OnFlush(event FlushEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only the events of interest.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)           {}
func (BaseEventHandler) OnConnectionOpened(ConnectionOpenedEvent) {}
func (BaseEventHandler) OnConnectionClosed(ConnectionClosedEvent) {}
func (BaseEventHandler) OnDispatchError(DispatchErrorEvent)       {}
func (BaseEventHandler) OnFlush(FlushEvent)                       {}

// stateEmitter adapts EventHandler to the lifecycle emitter.
type stateEmitter struct {
	connectionID string
	handler      EventHandler
}

func (e *stateEmitter) OnStateChange(previous, current lifecycle.State, reason string) {
	e.handler.OnStateChange(StateChangeEvent{
		ConnectionID: e.connectionID,
		Previous:     previous,
		Current:      current,
		Reason:       reason,
		Timestamp:    time.Now(),
	})
}
