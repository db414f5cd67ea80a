package kalm_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/kalm/pkg/kalm"
	"github.com/bft-labs/kalm/pkg/transport"
)

const waitTimeout = 5 * time.Second

type transportCase struct {
	name      string
	transport string
	address   func(t *testing.T) string
}

func transportCases() []transportCase {
	loopback := func(*testing.T) string { return "127.0.0.1:0" }
	return []transportCase{
		{"tcp", kalm.TransportTCP, loopback},
		{"udp", kalm.TransportUDP, loopback},
		{"ws", kalm.TransportWebSocket, loopback},
		{"ipc", kalm.TransportIPC, func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "kalm.sock")
		}},
	}
}

func listen(t *testing.T, cfg kalm.Config, opts ...kalm.Option) *kalm.Server {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	srv, err := kalm.Listen(ctx, cfg, opts...)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

// dial connects to srv using cfg with the server's bound address.
func dial(t *testing.T, srv *kalm.Server, cfg kalm.Config, opts ...kalm.Option) *kalm.Connection {
	t.Helper()
	cfg.Address = srv.Addr()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	conn, err := kalm.Connect(ctx, cfg, opts...)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// subscribeAll registers a subscriber on channel for every accepted
// connection and returns the channel messages are forwarded to.
func subscribeAll(channel string) (kalm.Option, <-chan kalm.Message) {
	ch := make(chan kalm.Message, 64)
	opt := kalm.WithConnectionHandler(func(c *kalm.Connection) {
		_ = c.SubscribeFunc(channel, func(m kalm.Message) error {
			ch <- m
			return nil
		})
	})
	return opt, ch
}

func receive(t *testing.T, ch <-chan kalm.Message) kalm.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for message")
		return kalm.Message{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for close")
	}
}

// eventRecorder captures events for assertions.
type eventRecorder struct {
	kalm.BaseEventHandler

	mu             sync.Mutex
	opened         []kalm.ConnectionOpenedEvent
	closed         []kalm.ConnectionClosedEvent
	dispatchErrors []kalm.DispatchErrorEvent
	states         []kalm.StateChangeEvent
	flushes        []kalm.FlushEvent
	closedCh       chan kalm.ConnectionClosedEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{closedCh: make(chan kalm.ConnectionClosedEvent, 16)}
}

func (r *eventRecorder) OnConnectionOpened(e kalm.ConnectionOpenedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, e)
}

func (r *eventRecorder) OnConnectionClosed(e kalm.ConnectionClosedEvent) {
	r.mu.Lock()
	r.closed = append(r.closed, e)
	r.mu.Unlock()
	select {
	case r.closedCh <- e:
	default:
	}
}

func (r *eventRecorder) OnDispatchError(e kalm.DispatchErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchErrors = append(r.dispatchErrors, e)
}

func (r *eventRecorder) OnStateChange(e kalm.StateChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, e)
}

func (r *eventRecorder) OnFlush(e kalm.FlushEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, e)
}

func (r *eventRecorder) DispatchErrors() []kalm.DispatchErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kalm.DispatchErrorEvent{}, r.dispatchErrors...)
}

func (r *eventRecorder) States() []kalm.StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kalm.StateChangeEvent{}, r.states...)
}

func (r *eventRecorder) Flushes() []kalm.FlushEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kalm.FlushEvent{}, r.flushes...)
}

func (r *eventRecorder) waitClosed(t *testing.T) kalm.ConnectionClosedEvent {
	t.Helper()
	select {
	case e := <-r.closedCh:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for connection close event")
		return kalm.ConnectionClosedEvent{}
	}
}

// scriptedTransport dials a single in-memory link whose inbound bytes are
// fed by the test.
type scriptedTransport struct {
	link *scriptedLink
}

func (scriptedTransport) Name() string { return "scripted" }

func (scriptedTransport) Listen(context.Context, string) (transport.Listener, error) {
	return nil, errors.New("scripted: listen not supported")
}

func (s scriptedTransport) Dial(context.Context, string) (transport.Link, error) {
	return s.link, nil
}

type scriptedLink struct {
	in        chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedLink() *scriptedLink {
	return &scriptedLink{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (l *scriptedLink) Send([]byte) error {
	select {
	case <-l.closed:
		return transport.ErrLinkClosed
	default:
		return nil
	}
}

func (l *scriptedLink) Receive() ([]byte, error) {
	select {
	case b := <-l.in:
		return b, nil
	case <-l.closed:
		return nil, io.EOF
	}
}

func (l *scriptedLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedLink) RemoteAddr() string { return "scripted" }
