package hub

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStopTerminatesRun(t *testing.T) {
	h := New("test")

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	waitFor(t, h.IsRunning)

	h.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if h.IsRunning() {
		t.Fatal("IsRunning true after Stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := New("test")
	go h.Run()
	waitFor(t, h.IsRunning)

	h.Stop()
	h.Stop() // second call must not panic
	waitFor(t, func() bool { return !h.IsRunning() })
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	h := New("test")
	go h.Run()
	waitFor(t, h.IsRunning)
	h.Stop()
	waitFor(t, func() bool { return !h.IsRunning() })

	done := make(chan struct{})
	go func() {
		// Queue is buffered; with no consumer the message is queued or
		// dropped, never blocking the caller.
		for i := 0; i < 300; i++ {
			h.Broadcast(NewJSONMessage([]byte(`{}`)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after Stop")
	}
}
