// Package ipc is the local inter-process transport over unix domain sockets.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"github.com/bft-labs/kalm/pkg/transport"
)

// DefaultAddress returns the socket path used when none is configured.
func DefaultAddress() string {
	return filepath.Join(os.TempDir(), "kalm-3000.sock")
}

// Transport listens on and dials filesystem socket paths.
type Transport struct{}

// New returns the local transport.
func New() *Transport { return &Transport{} }

func (t *Transport) Name() string { return "ipc" }

// Listen removes a stale socket file at address before binding. The file is
// unlinked again when the listener closes.
func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if address == "" {
		address = DefaultAddress()
	}
	if err := removeStale(address); err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", address)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", address, err)
	}
	return transport.NewStreamListener(ln), nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Link, error) {
	if address == "" {
		address = DefaultAddress()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", address)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", address, err)
	}
	return transport.NewStreamLink(conn), nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ipc: stat %s: %w", path, err)
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("ipc: %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("ipc: remove stale socket %s: %w", path, err)
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
