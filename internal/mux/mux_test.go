package mux

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func msg(channel string, body any) Message {
	return Message{Body: body, Frame: FrameInfo{Channel: channel, PayloadBytes: 1}}
}

func TestDispatch_SubscriptionOrder(t *testing.T) {
	m := New()
	var got []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		if err := m.Subscribe("test", SubscriberFunc(func(Message) error {
			got = append(got, name)
			return nil
		})); err != nil {
			t.Fatal(err)
		}
	}

	if errs := m.Dispatch(msg("test", "v")); len(errs) != 0 {
		t.Fatalf("Dispatch() errors = %v", errs)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Errorf("order = %v", got)
	}
}

func TestDispatch_ExactChannelMatch(t *testing.T) {
	m := New()
	called := 0
	_ = m.Subscribe("test", SubscriberFunc(func(Message) error { called++; return nil }))

	m.Dispatch(msg("test.large", nil))
	m.Dispatch(msg("tes", nil))
	if called != 0 {
		t.Errorf("subscriber on %q invoked for other channels", "test")
	}
	if m.Stats().Unsubscribed != 2 {
		t.Errorf("Unsubscribed = %d, want 2", m.Stats().Unsubscribed)
	}
}

func TestUnsubscribe_RemovesAllCallbacks(t *testing.T) {
	m := New()
	called := 0
	for i := 0; i < 3; i++ {
		_ = m.Subscribe("test", SubscriberFunc(func(Message) error { called++; return nil }))
	}
	if n := m.Unsubscribe("test"); n != 3 {
		t.Errorf("Unsubscribe() = %d, want 3", n)
	}
	if errs := m.Dispatch(msg("test", nil)); errs != nil {
		t.Errorf("Dispatch() on unsubscribed channel = %v, want nil", errs)
	}
	if called != 0 {
		t.Errorf("removed callbacks invoked %d times", called)
	}
	if m.Subscribed("test") || m.Channels() != 0 {
		t.Error("channel still registered")
	}
}

func TestClear_DropsEveryChannel(t *testing.T) {
	m := New()
	for _, ch := range []string{"a", "b"} {
		_ = m.Subscribe(ch, SubscriberFunc(func(Message) error { return nil }))
	}
	m.Clear()
	if m.Channels() != 0 || m.Subscribed("a") || m.Subscribed("b") {
		t.Errorf("Clear left %d channels", m.Channels())
	}
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	var reached []int

	_ = m.Subscribe("c", SubscriberFunc(func(Message) error { reached = append(reached, 1); return boom }))
	_ = m.Subscribe("c", SubscriberFunc(func(Message) error { reached = append(reached, 2); panic("kaboom") }))
	_ = m.Subscribe("c", SubscriberFunc(func(Message) error { reached = append(reached, 3); return nil }))

	errs := m.Dispatch(msg("c", nil))
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2", errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrSubscriber) {
			t.Errorf("error %v does not wrap ErrSubscriber", err)
		}
	}
	if !errors.Is(errs[0], boom) {
		t.Errorf("first error %v does not wrap the subscriber error", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "kaboom") {
		t.Errorf("panic value missing from %v", errs[1])
	}
	if len(reached) != 3 {
		t.Errorf("reached = %v, want all three subscribers", reached)
	}

	// The multiplexer keeps working after a panic.
	if errs := m.Dispatch(msg("c", nil)); len(errs) != 2 {
		t.Errorf("second dispatch errors = %v", errs)
	}
	if s := m.Stats(); s.Failed != 4 || s.Dispatched != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDispatch_PassesMessage(t *testing.T) {
	m := New()
	var got Message
	_ = m.Subscribe("test", SubscriberFunc(func(msg Message) error { got = msg; return nil }))

	in := Message{Body: map[string]any{"foo": "bar"}, Frame: FrameInfo{Channel: "test", PayloadBytes: 26}, ConnectionID: "c1"}
	m.Dispatch(in)

	if got.Frame != in.Frame || got.ConnectionID != "c1" || got.Body.(map[string]any)["foo"] != "bar" {
		t.Errorf("got %+v", got)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	m := New()
	if err := m.Subscribe("", SubscriberFunc(func(Message) error { return nil })); !errors.Is(err, ErrEmptyChannel) {
		t.Errorf("empty channel error = %v", err)
	}
	if err := m.Subscribe("c", nil); !errors.Is(err, ErrNilSubscriber) {
		t.Errorf("nil subscriber error = %v", err)
	}
}

func TestDispatch_SubscribeFromCallback(t *testing.T) {
	m := New()
	_ = m.Subscribe("c", SubscriberFunc(func(Message) error {
		return m.Subscribe("c", SubscriberFunc(func(Message) error { return nil }))
	}))
	m.Dispatch(msg("c", nil))
	m.Unsubscribe("c")
}

func TestConcurrentSubscribeDispatch(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Subscribe("c", SubscriberFunc(func(Message) error { return nil }))
				m.Unsubscribe("c")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Dispatch(msg("c", j))
			}
		}()
	}
	wg.Wait()
}
