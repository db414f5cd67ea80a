// Package lifecycle tracks the Open -> Closing -> Closed state machine shared
// by connections and servers, along with the goroutines they own.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/kalm/pkg/log"
)

// ErrInvalidTransition is returned for transitions the state machine forbids.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// State represents the lifecycle state of a connection or server.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when the state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle manages the state machine and worker accounting.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	wg           sync.WaitGroup
	done         chan struct{}
	logger       log.Logger
	eventEmitter EventEmitter
}

// New creates a lifecycle in StateOpen.
func New(logger log.Logger, emitter EventEmitter) *Lifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Lifecycle{
		state:        StateOpen,
		done:         make(chan struct{}),
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsOpen reports whether new work may be accepted.
func (l *Lifecycle) IsOpen() bool {
	return l.State() == StateOpen
}

// TransitionTo moves to newState. Only Open -> Closing and Closing -> Closed
// are valid; reaching Closed closes the Done channel after the emitter ran.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	valid := (oldState == StateOpen && newState == StateClosing) ||
		(oldState == StateClosing && newState == StateClosed)
	if !valid {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
	}

	l.state = newState
	l.mu.Unlock()

	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)

	// Waiters observe Closed only after it has been reported.
	if newState == StateClosed {
		close(l.done)
	}
	return nil
}

// Done is closed once the state reaches Closed.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Go runs fn in a tracked goroutine.
func (l *Lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// Wait blocks until every tracked goroutine has returned or ctx is done.
func (l *Lifecycle) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("shutdown wait abandoned", log.Err(ctx.Err()))
		return ctx.Err()
	}
}
