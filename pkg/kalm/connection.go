package kalm

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bft-labs/kalm/internal/batch"
	"github.com/bft-labs/kalm/internal/lifecycle"
	"github.com/bft-labs/kalm/internal/mux"
	"github.com/bft-labs/kalm/pkg/frame"
	"github.com/bft-labs/kalm/pkg/log"
	"github.com/bft-labs/kalm/pkg/transport"
)

type (
	// Message is what a subscriber receives.
	Message = mux.Message
	// FrameInfo describes the frame a message arrived in.
	FrameInfo = mux.FrameInfo
	// Subscriber handles messages for one channel.
	Subscriber = mux.Subscriber
	// SubscriberFunc adapts a function to Subscriber.
	SubscriberFunc = mux.SubscriberFunc
)

// Connection is one established link with a peer. Write, Flush, Subscribe
// and Unsubscribe are safe for concurrent use. Messages are delivered to
// subscribers in arrival order from a single receive goroutine.
type Connection struct {
	id        string
	transport string
	link      transport.Link
	codec     codec
	profile   Profile
	mux       *mux.Multiplexer
	life      *lifecycle.Lifecycle
	logger    log.Logger
	events    EventHandler

	writeMu sync.Mutex
	batcher batch.Batcher

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	// onClosed lets the owning server drop the connection from its registry.
	onClosed func(*Connection)

	stats connStats
}

type connStats struct {
	framesIn, framesOut   atomic.Uint64
	packetsIn, packetsOut atomic.Uint64
	bytesIn, bytesOut     atomic.Uint64
	decodeFailures        atomic.Uint64
}

func newConnection(link transport.Link, transportName string, cd codec, profile Profile, o options) *Connection {
	id := uuid.NewString()
	logger := log.With(o.logger,
		log.String("connection", id),
		log.String("transport", transportName))
	return &Connection{
		id:        id,
		transport: transportName,
		link:      link,
		codec:     cd,
		profile:   profile,
		mux:       mux.New(),
		life:      lifecycle.New(logger, &stateEmitter{connectionID: id, handler: o.eventHandler}),
		logger:    logger,
		events:    o.eventHandler,
		batcher:   batch.NewDefaultBatcher(profile.MaxBytes, cd.limits),
	}
}

// ID uniquely identifies the connection.
func (c *Connection) ID() string { return c.id }

// RemoteAddr is the peer address as reported by the transport.
func (c *Connection) RemoteAddr() string { return c.link.RemoteAddr() }

// Profile returns the buffering profile fixed at construction.
func (c *Connection) Profile() Profile { return c.profile }

// State returns the current lifecycle state.
func (c *Connection) State() State { return c.life.State() }

// Done is closed once the connection reaches StateClosed.
func (c *Connection) Done() <-chan struct{} { return c.life.Done() }

// Err returns the fatal error that closed the connection, if any.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Write serializes value and queues it on channel. The pending buffer is
// sent once it reaches the profile threshold, including this packet.
func (c *Connection) Write(channel string, value any) error {
	if err := checkChannel(channel); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.life.IsOpen() {
		return ErrClosed
	}
	body, err := c.codec.serial.Encode(value)
	if err != nil {
		return err
	}
	sealed, err := c.codec.cipher.Seal(body)
	if err != nil {
		return err
	}
	if n, limit := frame.BodyLen(channel, frame.PacketOverhead+len(sealed)), c.codec.limits.MaxBody(); n > int(limit) {
		return fmt.Errorf("%w: %d bytes on %q, limit %d", frame.ErrFrameTooLarge, n, channel, limit)
	}
	if c.batcher.Add(channel, sealed) {
		return c.flushLocked()
	}
	return nil
}

// Flush sends any buffered packets immediately.
func (c *Connection) Flush() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.life.IsOpen() {
		return ErrClosed
	}
	return c.flushLocked()
}

// Subscribe appends s to the subscribers of channel.
func (c *Connection) Subscribe(channel string, s Subscriber) error {
	if !c.life.IsOpen() {
		return ErrClosed
	}
	return c.mux.Subscribe(channel, s)
}

// SubscribeFunc is Subscribe for a plain function.
func (c *Connection) SubscribeFunc(channel string, fn func(Message) error) error {
	if fn == nil {
		return mux.ErrNilSubscriber
	}
	return c.Subscribe(channel, SubscriberFunc(fn))
}

// Unsubscribe removes every subscriber of channel and returns how many were
// removed. Messages arriving later on channel are dropped.
func (c *Connection) Unsubscribe(channel string) int {
	return c.mux.Unsubscribe(channel)
}

// Close flushes pending writes, releases the link and waits for the receive
// loop to exit. It is idempotent. A subscriber must not call Close directly
// because the receive loop would wait on itself; use go conn.Close().
func (c *Connection) Close() error {
	err := c.shutdown(nil, "close requested")
	<-c.life.Done()
	return err
}

// Stats returns a snapshot of the traffic counters.
func (c *Connection) Stats() Stats {
	m := c.mux.Stats()
	return Stats{
		FramesIn:       c.stats.framesIn.Load(),
		FramesOut:      c.stats.framesOut.Load(),
		PacketsIn:      c.stats.packetsIn.Load(),
		PacketsOut:     c.stats.packetsOut.Load(),
		BytesIn:        c.stats.bytesIn.Load(),
		BytesOut:       c.stats.bytesOut.Load(),
		Dispatched:     m.Dispatched,
		Unsubscribed:   m.Unsubscribed,
		DispatchErrors: m.Failed + c.stats.decodeFailures.Load(),
	}
}

func checkChannel(channel string) error {
	if channel == "" {
		return frame.ErrEmptyChannel
	}
	if len(channel) > frame.MaxChannelLen {
		return frame.ErrChannelTooLong
	}
	return nil
}

// flushLocked encodes and sends every pending frame. Callers hold writeMu.
func (c *Connection) flushLocked() error {
	if !c.batcher.HasPending() {
		return nil
	}
	frames := c.batcher.Drain()

	var (
		buf     []byte
		packets int
		err     error
	)
	for _, f := range frames {
		if buf, err = frame.AppendEncode(buf, f, c.codec.limits); err != nil {
			return fmt.Errorf("kalm: encode frame on %q: %w", f.Channel, err)
		}
		packets += len(f.Packets)
	}

	if err := c.link.Send(buf); err != nil {
		if errors.Is(err, transport.ErrLinkClosed) {
			return ErrClosed
		}
		return fmt.Errorf("%w: send: %w", ErrConnection, err)
	}

	c.stats.framesOut.Add(uint64(len(frames)))
	c.stats.packetsOut.Add(uint64(packets))
	c.stats.bytesOut.Add(uint64(len(buf)))
	c.logger.Debug("flushed",
		log.Int("frames", len(frames)),
		log.Int("packets", packets),
		log.Int("bytes", len(buf)))
	c.events.OnFlush(FlushEvent{
		ConnectionID: c.id,
		Frames:       len(frames),
		Packets:      packets,
		Bytes:        len(buf),
	})
	return nil
}

// shutdown moves the connection to Closing and releases the link. Pending
// writes are flushed unless cause is a fatal stream error. Only the first
// call has an effect.
func (c *Connection) shutdown(cause error, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.life.TransitionTo(lifecycle.StateClosing, reason)

		c.writeMu.Lock()
		if cause == nil {
			err = c.flushLocked()
		}
		c.writeMu.Unlock()

		if cause != nil {
			c.errMu.Lock()
			c.err = cause
			c.errMu.Unlock()
		}
		if cerr := c.link.Close(); cerr != nil {
			c.logger.Debug("link close failed", log.Err(cerr))
		}
	})
	return err
}

// start announces the connection and runs the receive loop through spawn.
func (c *Connection) start(spawn func(func())) {
	c.logger.Info("connection opened", log.String("remote", c.link.RemoteAddr()))
	c.events.OnConnectionOpened(ConnectionOpenedEvent{
		ConnectionID: c.id,
		RemoteAddr:   c.link.RemoteAddr(),
		Transport:    c.transport,
	})
	spawn(c.receiveLoop)
}

func (c *Connection) receiveLoop() {
	err := c.receive()
	if err != nil {
		c.logger.Error("connection failed", log.Err(err))
		_ = c.shutdown(err, err.Error())
	} else {
		_ = c.shutdown(nil, "peer closed")
	}

	if c.onClosed != nil {
		c.onClosed(c)
	}
	c.logger.Info("connection closed")
	c.events.OnConnectionClosed(ConnectionClosedEvent{ConnectionID: c.id, Err: c.Err()})
	c.mux.Clear()
	_ = c.life.TransitionTo(lifecycle.StateClosed, "receive loop exited")
}

// receive reads until the link ends. It returns nil on a normal close and
// the fatal error otherwise.
func (c *Connection) receive() error {
	var buf []byte
	for {
		data, err := c.link.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || !c.life.IsOpen() {
				return nil
			}
			return fmt.Errorf("%w: receive: %w", ErrConnection, err)
		}
		if len(data) == 0 {
			continue
		}
		buf = append(buf, data...)

		consumed := 0
		for {
			f, n, err := frame.DecodeNext(buf[consumed:], c.codec.limits)
			if err != nil {
				return err
			}
			if f == nil {
				break
			}
			consumed += n
			if err := c.deliver(f); err != nil {
				return err
			}
		}
		buf = append(buf[:0], buf[consumed:]...)
	}
}

// deliver authenticates every packet of f before dispatching any of them,
// so a tampered frame never reaches a subscriber.
func (c *Connection) deliver(f *frame.Frame) error {
	c.stats.framesIn.Add(1)
	c.stats.packetsIn.Add(uint64(len(f.Packets)))
	c.stats.bytesIn.Add(uint64(f.EncodedLen()))

	plain := make([][]byte, len(f.Packets))
	for i, p := range f.Packets {
		b, err := c.codec.cipher.Open(p)
		if err != nil {
			return fmt.Errorf("channel %q: %w", f.Channel, err)
		}
		plain[i] = b
	}

	info := FrameInfo{Channel: f.Channel, PayloadBytes: f.PayloadBytes()}
	for _, p := range plain {
		body, err := c.codec.serial.Decode(p)
		if err != nil {
			c.stats.decodeFailures.Add(1)
			c.reportDispatchError(f.Channel, err)
			continue
		}
		for _, derr := range c.mux.Dispatch(Message{Body: body, Frame: info, ConnectionID: c.id}) {
			c.reportDispatchError(f.Channel, derr)
		}
	}
	return nil
}

func (c *Connection) reportDispatchError(channel string, err error) {
	c.logger.Warn("dispatch failed", log.String("channel", channel), log.Err(err))
	c.events.OnDispatchError(DispatchErrorEvent{ConnectionID: c.id, Channel: channel, Err: err})
}
