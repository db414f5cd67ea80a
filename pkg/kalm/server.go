package kalm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/kalm/internal/lifecycle"
	"github.com/bft-labs/kalm/pkg/log"
	"github.com/bft-labs/kalm/pkg/transport"
)

// Pause after transient accept failures, such as running out of file
// descriptors.
const (
	acceptBackoffInitial = 50 * time.Millisecond
	acceptBackoffMax     = 2 * time.Second
)

// Server accepts links and turns each into a Connection.
type Server struct {
	cfg       Config
	transport string
	codec     codec
	listener  transport.Listener
	opts      options
	logger    log.Logger
	life      *lifecycle.Lifecycle
	cancel    context.CancelFunc

	mu      sync.RWMutex
	conns   map[string]*Connection
	profile Profile

	plugins  []Plugin
	accepted atomic.Uint64
	stopOnce sync.Once
}

// Listen binds cfg.Address and starts accepting connections in the
// background. ctx bounds binding and plugin initialization only; call Stop
// to shut the server down.
func Listen(ctx context.Context, cfg Config, opts ...Option) (*Server, error) {
	o := buildOptions(opts)
	tr, cd, err := prepare(&cfg, &o)
	if err != nil {
		return nil, err
	}

	ln, err := tr.Listen(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s %s: %w", ErrConnection, tr.Name(), cfg.Address, err)
	}

	logger := log.With(o.logger, log.String("transport", tr.Name()))
	s := &Server{
		cfg:       cfg,
		transport: tr.Name(),
		codec:     cd,
		listener:  ln,
		opts:      o,
		logger:    logger,
		life:      lifecycle.New(logger, nil),
		conns:     make(map[string]*Connection),
		profile:   cfg.Profile,
	}

	started, err := initializePlugins(ctx, o.plugins, PluginConfig{Config: cfg, Server: s, Logger: o.logger})
	if err != nil {
		shutdownPlugins(context.Background(), started, logger)
		_ = ln.Close()
		return nil, err
	}
	s.plugins = started

	acceptCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.life.Go(func() { s.acceptLoop(acceptCtx) })

	logger.Info("server listening", log.String("address", ln.Addr()))
	return s, nil
}

// Addr is the bound address.
func (s *Server) Addr() string { return s.listener.Addr() }

// State returns the server lifecycle state.
func (s *Server) State() State { return s.life.State() }

// Done is closed once Stop has finished.
func (s *Server) Done() <-chan struct{} { return s.life.Done() }

// Profile returns the profile applied to newly accepted connections.
func (s *Server) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetProfile changes the profile for connections accepted from now on.
// Established connections keep the profile they were created with.
func (s *Server) SetProfile(p Profile) {
	s.mu.Lock()
	prev := s.profile
	s.profile = p
	s.mu.Unlock()

	if prev != p {
		s.logger.Info("profile updated",
			log.Uint64("max_bytes", uint64(p.MaxBytes)),
			log.Uint64("previous_max_bytes", uint64(prev.MaxBytes)))
	}
}

// Connections returns a snapshot of the live connections.
func (s *Server) Connections() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast writes value on channel to every live connection. Connections
// that close concurrently are skipped; other failures are joined.
func (s *Server) Broadcast(channel string, value any) error {
	if !s.life.IsOpen() {
		return ErrClosed
	}
	var errs []error
	for _, c := range s.Connections() {
		if err := c.Write(channel, value); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, fmt.Errorf("connection %s: %w", c.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of server counters.
func (s *Server) Stats() ServerStats {
	conns := s.Connections()
	st := ServerStats{Accepted: s.accepted.Load(), Active: len(conns)}
	for _, c := range conns {
		st.Traffic.add(c.Stats())
	}
	return st
}

// Stop closes every live connection and the listener, then waits for all
// receive loops to exit. Pending writes are flushed. If ctx ends first Stop
// returns ErrShutdownTimeout. Calls after the first return nil.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		_ = s.life.TransitionTo(lifecycle.StateClosing, "Stop() called")

		conns := s.Connections()
		for _, c := range conns {
			_ = c.shutdown(nil, "server stopping")
		}
		s.cancel()
		_ = s.listener.Close()

		if werr := s.life.Wait(ctx); werr != nil {
			err = fmt.Errorf("%w: %w", ErrShutdownTimeout, werr)
		}

		shutdownPlugins(ctx, s.plugins, s.logger)
		_ = s.life.TransitionTo(lifecycle.StateClosed, "stopped")
		s.logger.Info("server stopped", log.Int("connections", len(conns)))
	})
	return err
}

func (s *Server) acceptLoop(ctx context.Context) {
	bo := lifecycle.NewBackoff(acceptBackoffInitial, acceptBackoffMax)
	for {
		link, err := s.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrListenerClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", log.Err(err), log.Duration("retry_in", bo.Current()))
			if !bo.Wait(ctx) {
				return
			}
			continue
		}
		bo.Reset()
		s.accepted.Add(1)

		conn := newConnection(link, s.transport, s.codec, s.Profile(), s.opts)
		conn.onClosed = s.remove

		s.mu.Lock()
		if !s.life.IsOpen() {
			s.mu.Unlock()
			_ = link.Close()
			return
		}
		s.conns[conn.ID()] = conn
		s.mu.Unlock()

		if s.opts.connectionHandler != nil {
			s.opts.connectionHandler(conn)
		}
		conn.start(s.life.Go)
	}
}

func (s *Server) remove(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
}
