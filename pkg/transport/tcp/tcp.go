// Package tcp is the reliable stream transport.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/kalm/pkg/transport"
)

// DefaultAddress is used when no address is configured.
const DefaultAddress = "127.0.0.1:3000"

// Transport dials and listens on TCP.
type Transport struct {
	// KeepAlive is passed to the dialer and listener; zero uses the Go default.
	KeepAlive time.Duration
	// NoDelay disables Nagle's algorithm on every link. Batching already
	// happens in the profile, so it defaults to true via New.
	NoDelay bool
}

// New returns a TCP transport with Nagle disabled.
func New() *Transport {
	return &Transport{NoDelay: true}
}

func (t *Transport) Name() string { return "tcp" }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if address == "" {
		address = DefaultAddress
	}
	lc := net.ListenConfig{KeepAlive: t.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", address, err)
	}
	return &listener{StreamListener: transport.NewStreamListener(ln), noDelay: t.NoDelay}, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Link, error) {
	if address == "" {
		address = DefaultAddress
	}
	d := net.Dialer{KeepAlive: t.KeepAlive}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", address, err)
	}
	setNoDelay(conn, t.NoDelay)
	return transport.NewStreamLink(conn), nil
}

type listener struct {
	*transport.StreamListener
	noDelay bool
}

func (l *listener) Accept(ctx context.Context) (transport.Link, error) {
	link, err := l.StreamListener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	if sl, ok := link.(*transport.StreamLink); ok {
		setNoDelay(sl.Conn(), l.noDelay)
	}
	return link, nil
}

func setNoDelay(conn net.Conn, on bool) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(on)
	}
}

var _ transport.Transport = (*Transport)(nil)
