// Package ws carries kalm frames as binary websocket messages.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/kalm/pkg/transport"
)

const (
	// DefaultAddress is used when no address is configured.
	DefaultAddress = "127.0.0.1:3000"

	// DefaultPath is the HTTP path upgraded to a websocket.
	DefaultPath = "/"

	closeGrace    = time.Second
	acceptBacklog = 64
)

// Transport serves and dials websockets.
type Transport struct {
	Path         string
	Upgrader     websocket.Upgrader
	Dialer       *websocket.Dialer
	ReadLimit    int64
	HandshakeTTL time.Duration
}

// New returns a websocket transport accepting any origin on DefaultPath.
func New() *Transport {
	return &Transport{
		Path: DefaultPath,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		Dialer:       websocket.DefaultDialer,
		HandshakeTTL: 10 * time.Second,
	}
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) path() string {
	if t.Path == "" {
		return DefaultPath
	}
	return t.Path
}

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if address == "" {
		address = DefaultAddress
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("ws: listen %s: %w", address, err)
	}

	l := &listener{
		ln:     ln,
		accept: make(chan *link, acceptBacklog),
		done:   make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.path(), func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		lk := newLink(conn, t.ReadLimit)
		select {
		case l.accept <- lk:
		case <-l.done:
			_ = lk.Close()
		}
	})
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: t.HandshakeTTL,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.srv.Serve(ln)
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Link, error) {
	if address == "" {
		address = DefaultAddress
	}
	url := address
	if !strings.Contains(url, "://") {
		url = "ws://" + address + t.path()
	}
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, resp, err := d.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	return newLink(conn, t.ReadLimit), nil
}

type listener struct {
	ln     net.Listener
	srv    *http.Server
	accept chan *link

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func (l *listener) Accept(ctx context.Context) (transport.Link, error) {
	select {
	case lk := <-l.accept:
		return lk, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the HTTP server. Upgraded links are owned by their connections
// and closed by them.
func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.srv.Close()
		l.wg.Wait()
	})
	return err
}

func (l *listener) Addr() string { return l.ln.Addr().String() }

type link struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newLink(conn *websocket.Conn, readLimit int64) *link {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &link{conn: conn, closed: make(chan struct{})}
}

func (l *link) Send(b []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.closed:
		return transport.ErrLinkClosed
	default:
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

func (l *link) Receive() ([]byte, error) {
	for {
		typ, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
				return nil, io.EOF
			default:
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("ws: read: %w", err)
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (l *link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		close(l.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *link) RemoteAddr() string { return l.conn.RemoteAddr().String() }

var _ transport.Transport = (*Transport)(nil)
