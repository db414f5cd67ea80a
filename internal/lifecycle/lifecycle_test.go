package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	previous State
	current  State
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func TestNew(t *testing.T) {
	l := New(nil, nil)
	if l.State() != StateOpen || !l.IsOpen() {
		t.Errorf("initial state = %v, want Open", l.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateOpen, "Open"},
		{StateClosing, "Closing"},
		{StateClosed, "Closed"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"open to closing", StateOpen, StateClosing, false},
		{"closing to closed", StateClosing, StateClosed, false},
		{"open to closed", StateOpen, StateClosed, true},
		{"closed to open", StateClosed, StateOpen, true},
		{"closing to open", StateClosing, StateOpen, true},
		{"closing twice", StateClosing, StateClosing, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(nil, nil)
			l.state = tt.from

			err := l.TransitionTo(tt.to, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error %v does not wrap ErrInvalidTransition", err)
			}
		})
	}
}

func TestTransitionTo_EmitsAndClosesDone(t *testing.T) {
	emitter := &mockEmitter{}
	l := New(nil, emitter)

	_ = l.TransitionTo(StateClosing, "close requested")
	select {
	case <-l.Done():
		t.Fatal("Done closed before Closed")
	default:
	}
	_ = l.TransitionTo(StateClosed, "link released")

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed after Closed")
	}

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[1].previous != StateClosing || events[1].current != StateClosed || events[1].reason != "link released" {
		t.Errorf("event = %+v", events[1])
	}
}

func TestWait(t *testing.T) {
	l := New(nil, nil)
	release := make(chan struct{})
	l.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() with blocked worker = %v, want DeadlineExceeded", err)
	}

	close(release)
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v", err)
	}
}
