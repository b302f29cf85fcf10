package buffer

import (
	"testing"
	"time"
)

func TestPushPull(t *testing.T) {
	b := New()
	b.Push([]Sample{1, 2, 3})
	b.Push([]Sample{4, 5})

	if got := b.QueuedSamples(); got != 5 {
		t.Fatalf("QueuedSamples() = %d, want 5", got)
	}

	v := b.Pull()
	if len(v) != 3 || v[0] != 1 {
		t.Fatalf("Pull() = %v, want [1 2 3]", v)
	}
	if got := b.QueuedSamples(); got != 2 {
		t.Fatalf("QueuedSamples() after pull = %d, want 2", got)
	}

	v = b.Pull()
	if len(v) != 2 {
		t.Fatalf("Pull() = %v, want [4 5]", v)
	}
}

func TestPullBlocksUntilPush(t *testing.T) {
	b := New()
	done := make(chan []Sample, 1)
	go func() {
		done <- b.Pull()
	}()

	select {
	case <-done:
		t.Fatal("Pull returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	b.Push([]Sample{42})
	select {
	case v := <-done:
		if len(v) != 1 || v[0] != 42 {
			t.Fatalf("Pull() = %v, want [42]", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull never returned after Push")
	}
}

func TestPushEndUnblocksPull(t *testing.T) {
	b := New()
	done := make(chan []Sample, 1)
	go func() {
		done <- b.Pull()
	}()

	time.Sleep(10 * time.Millisecond)
	b.PushEnd()

	select {
	case v := <-done:
		if len(v) != 0 {
			t.Fatalf("Pull() after PushEnd = %v, want empty", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull never unblocked after PushEnd")
	}

	if !b.Ended() {
		t.Fatal("Ended() = false after PushEnd and drain")
	}
}

func TestWaitFill(t *testing.T) {
	b := New()
	reached := make(chan struct{})
	go func() {
		b.WaitFill(10)
		close(reached)
	}()

	select {
	case <-reached:
		t.Fatal("WaitFill returned before queue reached minimum")
	case <-time.After(20 * time.Millisecond):
	}

	b.Push(make([]Sample, 10))

	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatal("WaitFill never returned once the minimum was reached")
	}
}

func TestWaitFillUnblocksOnEnd(t *testing.T) {
	b := New()
	reached := make(chan struct{})
	go func() {
		b.WaitFill(1000)
		close(reached)
	}()

	time.Sleep(10 * time.Millisecond)
	b.PushEnd()

	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatal("WaitFill never returned after PushEnd")
	}
}
