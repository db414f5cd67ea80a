// Package udp is the datagram transport.
//
// UDP has no connections, so the listener demultiplexes datagrams by remote
// address into virtual links: the first datagram from a new address yields
// exactly one accepted Link, and bytes from different peers are never merged.
// Sends larger than MaxDatagramSize are split across datagrams and the
// receiving side hands them to the resumable frame codec in arrival order.
// A zero-length datagram announces that the sender closed its link.
//
// Delivery is best effort. A lost or reordered datagram shifts the frame
// boundaries the codec sees, so the connection fails with a malformed frame
// or an integrity error rather than skipping the damaged frame.
//
// The shared read loop never waits on a link: each virtual link queues its
// datagrams without bound, so a slow reader cannot stall other peers.
package udp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/bft-labs/kalm/pkg/transport"
)

const (
	// DefaultAddress is used when no address is configured.
	DefaultAddress = "127.0.0.1:3000"

	// DefaultMaxDatagramSize bounds each datagram's payload.
	DefaultMaxDatagramSize = 16 * 1024

	readBufferSize = 64 * 1024
	acceptBacklog  = 64
)

// Transport dials and listens on UDP.
type Transport struct {
	MaxDatagramSize int
}

// New returns a UDP transport with the default datagram size.
func New() *Transport {
	return &Transport{MaxDatagramSize: DefaultMaxDatagramSize}
}

func (t *Transport) Name() string { return "udp" }

func (t *Transport) maxDatagram() int {
	if t.MaxDatagramSize <= 0 {
		return DefaultMaxDatagramSize
	}
	return t.MaxDatagramSize
}

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if address == "" {
		address = DefaultAddress
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", address, err)
	}
	l := &listener{
		pc:          pc,
		maxDatagram: t.maxDatagram(),
		links:       make(map[string]*serverLink),
		accept:      make(chan *serverLink, acceptBacklog),
		done:        make(chan struct{}),
	}
	l.wg.Add(1)
	go l.readLoop()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Link, error) {
	if address == "" {
		address = DefaultAddress
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", address, err)
	}
	return &clientLink{
		conn:        conn,
		maxDatagram: t.maxDatagram(),
		buf:         make([]byte, readBufferSize),
		closed:      make(chan struct{}),
	}, nil
}

type listener struct {
	pc          net.PacketConn
	maxDatagram int

	mu     sync.Mutex
	links  map[string]*serverLink
	accept chan *serverLink

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func (l *listener) readLoop() {
	defer l.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, addr, err := l.pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP errors surface on some platforms; the socket is still usable.
			continue
		}
		key := addr.String()

		l.mu.Lock()
		link, ok := l.links[key]
		if !ok && n == 0 {
			l.mu.Unlock()
			continue
		}
		if !ok {
			link = newServerLink(l, addr)
			l.links[key] = link
		}
		l.mu.Unlock()

		if !ok {
			select {
			case l.accept <- link:
			case <-l.done:
				return
			}
		}

		if n == 0 {
			link.deliver(nil)
			l.forget(key, link)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		link.deliver(data)
	}
}

func (l *listener) forget(key string, link *serverLink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.links[key] == link {
		delete(l.links, key)
	}
}

func (l *listener) Accept(ctx context.Context) (transport.Link, error) {
	select {
	case link := <-l.accept:
		return link, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the read loop and closes every virtual link.
func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)

		l.mu.Lock()
		links := make([]*serverLink, 0, len(l.links))
		for _, link := range l.links {
			links = append(links, link)
		}
		l.mu.Unlock()
		for _, link := range links {
			_ = link.Close()
		}

		err = l.pc.Close()
		l.wg.Wait()
	})
	return err
}

func (l *listener) Addr() string {
	return l.pc.LocalAddr().String()
}

type serverLink struct {
	l    *listener
	addr net.Addr

	inboxMu sync.Mutex
	inbox   [][]byte
	eof     bool
	ready   chan struct{}

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newServerLink(l *listener, addr net.Addr) *serverLink {
	return &serverLink{
		l:      l,
		addr:   addr,
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// deliver queues data in arrival order; nil marks a remote close. It never
// blocks.
func (s *serverLink) deliver(data []byte) {
	s.inboxMu.Lock()
	if data == nil {
		s.eof = true
	} else if !s.eof {
		s.inbox = append(s.inbox, data)
	}
	s.inboxMu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// next pops the oldest queued datagram. ok is false when the queue is empty.
func (s *serverLink) next() (data []byte, eof, ok bool) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	if len(s.inbox) > 0 {
		data = s.inbox[0]
		s.inbox[0] = nil
		s.inbox = s.inbox[1:]
		return data, false, true
	}
	return nil, s.eof, s.eof
}

func (s *serverLink) Send(b []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case <-s.closed:
		return transport.ErrLinkClosed
	default:
	}
	for len(b) > 0 {
		n := min(len(b), s.l.maxDatagram)
		if _, err := s.l.pc.WriteTo(b[:n], s.addr); err != nil {
			return fmt.Errorf("udp: write to %s: %w", s.addr, err)
		}
		b = b[n:]
	}
	return nil
}

func (s *serverLink) Receive() ([]byte, error) {
	for {
		if data, eof, ok := s.next(); ok {
			if eof {
				return nil, io.EOF
			}
			return data, nil
		}
		select {
		case <-s.ready:
		case <-s.closed:
			return nil, io.EOF
		}
	}
}

// Close tells the peer with an empty datagram and releases the address so a
// later datagram from it is accepted as a new link.
func (s *serverLink) Close() error {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		_, _ = s.l.pc.WriteTo(nil, s.addr)
		close(s.closed)
		s.sendMu.Unlock()
		s.l.forget(s.addr.String(), s)
	})
	return nil
}

func (s *serverLink) RemoteAddr() string { return s.addr.String() }

type clientLink struct {
	conn        net.Conn
	maxDatagram int
	buf         []byte

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *clientLink) Send(b []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	select {
	case <-c.closed:
		return transport.ErrLinkClosed
	default:
	}
	for len(b) > 0 {
		n := min(len(b), c.maxDatagram)
		if _, err := c.conn.Write(b[:n]); err != nil {
			return fmt.Errorf("udp: write: %w", err)
		}
		b = b[n:]
	}
	return nil
}

func (c *clientLink) Receive() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if err != nil {
		select {
		case <-c.closed:
			return nil, io.EOF
		default:
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("udp: read: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, nil
}

func (c *clientLink) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		_, _ = c.conn.Write(nil)
		close(c.closed)
		c.sendMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *clientLink) RemoteAddr() string { return c.conn.RemoteAddr().String() }

var _ transport.Transport = (*Transport)(nil)
