// Package transport defines the capability set every kalm backend implements
// and the stream link shared by the connection-oriented backends.
//
// Backends live in sub-packages: tcp (stream), udp (datagram), ipc (local
// unix socket) and ws (websocket). Each exposes a value satisfying
// [Transport].
package transport

import (
	"context"
	"errors"
)

var (
	// ErrListenerClosed is returned by Accept after the listener is closed.
	ErrListenerClosed = errors.New("transport: listener closed")

	// ErrLinkClosed is returned by Send after the link is closed.
	ErrLinkClosed = errors.New("transport: link closed")
)

// Transport establishes links.
type Transport interface {
	// Name identifies the backend in logs and configuration.
	Name() string

	// Listen binds address and returns a listener for incoming links.
	Listen(ctx context.Context, address string) (Listener, error)

	// Dial connects to a listening peer.
	Dial(ctx context.Context, address string) (Link, error)
}

// Listener yields one Link per remote peer.
type Listener interface {
	// Accept blocks until a peer connects, ctx is done or the listener is
	// closed. Connectionless backends return a link on the first datagram
	// from a new peer.
	Accept(ctx context.Context) (Link, error)

	// Close stops accepting and unblocks pending Accept calls.
	Close() error

	// Addr is the bound address, useful when listening on port 0.
	Addr() string
}

// Link is one established end of a connection.
type Link interface {
	// Send transmits bytes. It may block under backpressure.
	Send(b []byte) error

	// Receive blocks until bytes arrive. It returns io.EOF once the link is
	// closed by either side.
	Receive() ([]byte, error)

	Close() error
	RemoteAddr() string
}
