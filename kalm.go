// Package kalm is the convenience entry point for channel messaging over
// interchangeable transports.
//
// Example usage:
//
//	cfg := kalm.DefaultConfig()
//	srv, err := kalm.Listen(ctx, cfg, kalm.WithConnectionHandler(onConnect))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop(ctx)
//
//	conn, err := kalm.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//	err = conn.Write("messages", map[string]any{"foo": "bar"})
//
// The full API lives in github.com/bft-labs/kalm/pkg/kalm.
package kalm

import (
	"context"

	core "github.com/bft-labs/kalm/pkg/kalm"
)

type (
	// Config holds the settings shared by servers and clients.
	Config = core.Config

	// Profile controls write buffering.
	Profile = core.Profile

	// Option configures servers and connections.
	Option = core.Option

	// Server accepts connections.
	Server = core.Server

	// Connection is one established link with a peer.
	Connection = core.Connection

	// Message is what a subscriber receives.
	Message = core.Message
)

// Listen starts a server. See core.Listen.
func Listen(ctx context.Context, cfg Config, opts ...Option) (*Server, error) {
	return core.Listen(ctx, cfg, opts...)
}

// Connect dials a server. See core.Connect.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Connection, error) {
	return core.Connect(ctx, cfg, opts...)
}

// DefaultConfig returns a Config using TCP on 127.0.0.1:3000 with JSON
// serialization, no encryption and no buffering.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Options re-exported for single-import use.
var (
	WithLogger            = core.WithLogger
	WithEventHandler      = core.WithEventHandler
	WithConnectionHandler = core.WithConnectionHandler
	WithPlugin            = core.WithPlugin
	WithTransport         = core.WithTransport
)
