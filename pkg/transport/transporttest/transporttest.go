// Package transporttest holds conformance checks shared by transport backends.
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bft-labs/kalm/pkg/transport"
)

const timeout = 5 * time.Second

// Run exercises the Transport contract against address, which should bind an
// ephemeral port or a fresh socket path.
func Run(t *testing.T, tr transport.Transport, address string) {
	t.Helper()

	t.Run("exchange", func(t *testing.T) { testExchange(t, tr, address) })
	t.Run("close listener unblocks accept", func(t *testing.T) { testListenerClose(t, tr, address) })
	t.Run("accept honours context", func(t *testing.T) { testAcceptContext(t, tr, address) })
}

func listen(t *testing.T, tr transport.Transport, address string) transport.Listener {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ln, err := tr.Listen(ctx, address)
	if err != nil {
		t.Fatalf("Listen(%q) error = %v", address, err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// ReadN receives from link until n bytes have arrived.
func ReadN(t *testing.T, link transport.Link, n int) []byte {
	t.Helper()
	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		var buf []byte
		for len(buf) < n {
			b, err := link.Receive()
			if err != nil {
				done <- result{buf, err}
				return
			}
			buf = append(buf, b...)
		}
		done <- result{buf, nil}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Receive() error after %d/%d bytes: %v", len(r.b), n, r.err)
		}
		return r.b
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %d bytes", n)
		return nil
	}
}

func testExchange(t *testing.T, tr transport.Transport, address string) {
	ln := listen(t, tr, address)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	accepted := make(chan transport.Link, 1)
	acceptErr := make(chan error, 1)
	go func() {
		link, err := ln.Accept(ctx)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- link
	}()

	client, err := tr.Dial(ctx, ln.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("client Send() error = %v", err)
	}

	var server transport.Link
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept() error = %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for Accept")
	}
	defer server.Close()

	if got := ReadN(t, server, 5); string(got) != "hello" {
		t.Fatalf("server received %q, want hello", got)
	}

	if err := server.Send([]byte("world")); err != nil {
		t.Fatalf("server Send() error = %v", err)
	}
	if got := ReadN(t, client, 5); string(got) != "world" {
		t.Fatalf("client received %q, want world", got)
	}

	large := make([]byte, 100*1024)
	for i := range large {
		large[i] = byte(i % 251)
	}
	if err := client.Send(large); err != nil {
		t.Fatalf("large Send() error = %v", err)
	}
	if got := ReadN(t, server, len(large)); !bytes.Equal(got, large) {
		t.Fatal("large payload corrupted or reordered")
	}

	if err := client.Close(); err != nil {
		t.Logf("client Close() error = %v", err)
	}
	if err := client.Send([]byte("late")); !errors.Is(err, transport.ErrLinkClosed) {
		t.Errorf("Send after Close error = %v, want ErrLinkClosed", err)
	}

	eof := make(chan error, 1)
	go func() {
		for {
			if _, err := server.Receive(); err != nil {
				eof <- err
				return
			}
		}
	}()
	select {
	case err := <-eof:
		if !errors.Is(err, io.EOF) {
			t.Errorf("server Receive after peer close error = %v, want io.EOF", err)
		}
	case <-time.After(timeout):
		t.Error("server Receive did not observe peer close")
	}
}

func testListenerClose(t *testing.T, tr transport.Transport, address string) {
	ln := listen(t, tr, address)

	errCh := make(chan error, 1)
	go func() {
		_, err := ln.Accept(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := ln.Close(); err != nil {
		t.Logf("Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, transport.ErrListenerClosed) {
			t.Errorf("Accept() error = %v, want ErrListenerClosed", err)
		}
	case <-time.After(timeout):
		t.Fatal("Accept not unblocked by Close")
	}
}

func testAcceptContext(t *testing.T, tr transport.Transport, address string) {
	ln := listen(t, tr, address)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ln.Accept(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Accept() error = %v, want context.DeadlineExceeded", err)
	}
}
