package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := NewBackoff(time.Millisecond, 4*time.Millisecond)
	ctx := context.Background()

	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	for i, w := range want {
		if !b.Wait(ctx) {
			t.Fatalf("Wait() #%d returned false", i)
		}
		if got := b.Current(); got != w {
			t.Errorf("Current() after wait #%d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Current(); got != time.Millisecond {
		t.Errorf("Current() after Reset = %v, want 1ms", got)
	}
}

func TestBackoff_WaitHonoursContext(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if b.Wait(ctx) {
		t.Error("Wait() = true with a cancelled context")
	}
}
