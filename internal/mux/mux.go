// Package mux routes decoded messages to the subscribers of their channel.
package mux

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriber wraps errors returned or panics raised by a subscriber.
	ErrSubscriber = errors.New("mux: subscriber failed")

	ErrEmptyChannel  = errors.New("mux: empty channel name")
	ErrNilSubscriber = errors.New("mux: nil subscriber")
)

// Stats counts dispatch outcomes.
type Stats struct {
	Dispatched   uint64
	Unsubscribed uint64
	Failed       uint64
}

// Multiplexer maps channel names to ordered subscriber lists. Subscribe and
// Unsubscribe may be called concurrently with Dispatch.
type Multiplexer struct {
	mu   sync.RWMutex
	subs map[string][]Subscriber

	dispatched   atomic.Uint64
	unsubscribed atomic.Uint64
	failed       atomic.Uint64
}

// New creates an empty multiplexer.
func New() *Multiplexer {
	return &Multiplexer{subs: make(map[string][]Subscriber)}
}

// Subscribe appends s to the subscribers of channel.
func (m *Multiplexer) Subscribe(channel string, s Subscriber) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	if s == nil {
		return ErrNilSubscriber
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[channel] = append(m.subs[channel], s)
	return nil
}

// Unsubscribe removes every subscriber of channel and reports how many were
// removed.
func (m *Multiplexer) Unsubscribe(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.subs[channel])
	delete(m.subs, channel)
	return n
}

// Channels returns the number of channels with at least one subscriber.
func (m *Multiplexer) Channels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Subscribed reports whether channel has subscribers.
func (m *Multiplexer) Subscribed(channel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel]) > 0
}

// Clear drops all subscriptions.
func (m *Multiplexer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.subs)
}

// Dispatch invokes the subscribers of msg.Frame.Channel in subscription order.
// A message without subscribers is discarded. Each subscriber failure is
// isolated and returned; later subscribers still run.
func (m *Multiplexer) Dispatch(msg Message) []error {
	m.mu.RLock()
	subs := m.subs[msg.Frame.Channel]
	// Copied: callbacks may subscribe or unsubscribe.
	subs = append([]Subscriber(nil), subs...)
	m.mu.RUnlock()

	if len(subs) == 0 {
		m.unsubscribed.Add(1)
		return nil
	}

	var errs []error
	for _, s := range subs {
		if err := invoke(s, msg); err != nil {
			m.failed.Add(1)
			errs = append(errs, err)
		}
	}
	m.dispatched.Add(1)
	return errs
}

func invoke(s Subscriber, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: channel %q: panic: %v", ErrSubscriber, msg.Frame.Channel, r)
		}
	}()
	if herr := s.Handle(msg); herr != nil {
		return fmt.Errorf("%w: channel %q: %w", ErrSubscriber, msg.Frame.Channel, herr)
	}
	return nil
}

// Stats returns a snapshot of the dispatch counters.
func (m *Multiplexer) Stats() Stats {
	return Stats{
		Dispatched:   m.dispatched.Load(),
		Unsubscribed: m.unsubscribed.Load(),
		Failed:       m.failed.Load(),
	}
}
