package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ReadBufferSize is the chunk size read from stream links.
const ReadBufferSize = 64 * 1024

// StreamLink adapts a net.Conn to Link. Frame boundaries are not preserved by
// the underlying stream; the frame codec reassembles them.
type StreamLink struct {
	conn net.Conn

	sendMu sync.Mutex
	buf    []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStreamLink wraps conn.
func NewStreamLink(conn net.Conn) *StreamLink {
	return &StreamLink{
		conn:   conn,
		buf:    make([]byte, ReadBufferSize),
		closed: make(chan struct{}),
	}
}

func (l *StreamLink) Send(b []byte) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	for len(b) > 0 {
		n, err := l.conn.Write(b)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrLinkClosed
			}
			return fmt.Errorf("transport: write: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// Receive must only be called from a single goroutine.
func (l *StreamLink) Receive() ([]byte, error) {
	n, err := l.conn.Read(l.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, l.buf[:n])
		return out, nil
	}
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil, io.EOF
	}
	select {
	case <-l.closed:
		return nil, io.EOF
	default:
	}
	return nil, fmt.Errorf("transport: read: %w", err)
}

func (l *StreamLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.conn.Close()
	})
	return err
}

func (l *StreamLink) RemoteAddr() string {
	if a := l.conn.RemoteAddr(); a != nil && a.String() != "" {
		return a.String()
	}
	return l.conn.LocalAddr().String()
}

// deadliner is implemented by *net.TCPListener and *net.UnixListener.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// StreamListener adapts a net.Listener to Listener.
type StreamListener struct {
	ln net.Listener

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStreamListener wraps ln.
func NewStreamListener(ln net.Listener) *StreamListener {
	return &StreamListener{ln: ln, closed: make(chan struct{})}
}

func (l *StreamListener) Accept(ctx context.Context) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d, ok := l.ln.(deadliner); ok {
		_ = d.SetDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Now())
		})
		defer stop()
	}

	conn, err := l.ln.Accept()
	if err != nil {
		select {
		case <-l.closed:
			return nil, ErrListenerClosed
		default:
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return NewStreamLink(conn), nil
}

func (l *StreamListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.ln.Close()
	})
	return err
}

func (l *StreamListener) Addr() string {
	return l.ln.Addr().String()
}

// Conn exposes the wrapped connection for backend-specific tuning.
func (l *StreamLink) Conn() net.Conn {
	return l.conn
}
