package presence

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-kiosk/pkg/detect"
)

// fakeSource hands out a constant frame and counts captures.
type fakeSource struct {
	mu       sync.Mutex
	captures int
	closed   bool
	err      error
}

func (f *fakeSource) CaptureJPEG() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0xff, 0xd8}, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// scriptedBackend returns a (possibly repeating) sequence of verdicts.
type scriptedBackend struct {
	mu      sync.Mutex
	script  []bool
	pos     int
	calls   int
	lastErr error
}

func (b *scriptedBackend) Detect(frame []byte) (detect.Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.lastErr != nil {
		return detect.Hit{}, b.lastErr
	}
	present := false
	if len(b.script) > 0 {
		if b.pos < len(b.script) {
			present = b.script[b.pos]
			b.pos++
		} else {
			present = b.script[len(b.script)-1]
		}
	}
	return detect.Hit{Present: present, Confidence: 0.9}, nil
}

func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func openFake(src *fakeSource) OpenFunc {
	return func() (FrameSource, error) { return src, nil }
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSensor_EdgeTriggerNotifiesOncePerChange(t *testing.T) {
	src := &fakeSource{}
	face := &scriptedBackend{script: []bool{true}} // present forever

	s := New(openFake(src), face, nil, ModeFace, time.Millisecond)

	var notifications int64
	s.Subscribe(func(present bool) {
		atomic.AddInt64(&notifications, 1)
	})

	s.Start()
	defer s.Stop()

	// Let well over 100 identical "present" cycles run.
	waitFor(t, 2*time.Second, func() bool { return face.callCount() >= 100 })

	if n := atomic.LoadInt64(&notifications); n != 1 {
		t.Errorf("expected exactly 1 notification for identical cycles, got %d", n)
	}
	if !s.State().IsPresent {
		t.Error("state should report present")
	}
}

func TestSensor_NotifiesOnEachEdge(t *testing.T) {
	src := &fakeSource{}
	// absent x3, present x3, absent forever: two edges after the
	// initial absent run (absent is the starting state, no edge).
	face := &scriptedBackend{script: []bool{false, false, false, true, true, true, false}}

	s := New(openFake(src), face, nil, ModeFace, time.Millisecond)

	var mu sync.Mutex
	var seen []bool
	s.Subscribe(func(present bool) {
		mu.Lock()
		seen = append(seen, present)
		mu.Unlock()
	})

	s.Start()
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != true || seen[1] != false {
		t.Errorf("expected edges [true false], got %v", seen)
	}
}

func TestSensor_PoseSkippedWhenFaceFoundUnlessBoth(t *testing.T) {
	t.Run("both mode always runs pose", func(t *testing.T) {
		src := &fakeSource{}
		face := &scriptedBackend{script: []bool{true}}
		pose := &scriptedBackend{script: []bool{true}}

		s := New(openFake(src), face, pose, ModeBoth, time.Millisecond)
		s.Start()
		defer s.Stop()

		waitFor(t, time.Second, func() bool { return face.callCount() >= 5 })
		if pose.callCount() == 0 {
			t.Error("pose backend should run in both mode even when face hits")
		}
	})

	t.Run("pose mode never runs face", func(t *testing.T) {
		src := &fakeSource{}
		face := &scriptedBackend{script: []bool{true}}
		pose := &scriptedBackend{script: []bool{true}}

		s := New(openFake(src), face, pose, ModePose, time.Millisecond)
		s.Start()
		defer s.Stop()

		waitFor(t, time.Second, func() bool { return pose.callCount() >= 5 })
		if face.callCount() != 0 {
			t.Errorf("face backend ran %d times in pose mode", face.callCount())
		}
	})
}

func TestSensor_SubscriberPanicIsIsolated(t *testing.T) {
	src := &fakeSource{}
	face := &scriptedBackend{script: []bool{true}}

	s := New(openFake(src), face, nil, ModeFace, time.Millisecond)

	var delivered int64
	s.Subscribe(func(present bool) {
		panic("bad observer")
	})
	s.Subscribe(func(present bool) {
		atomic.AddInt64(&delivered, 1)
	})

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt64(&delivered) >= 1
	})
}

func TestSensor_CameraOpenFailureIsFatalToLoopOnly(t *testing.T) {
	s := New(func() (FrameSource, error) {
		return nil, errors.New("no such device")
	}, &scriptedBackend{}, nil, ModeFace, time.Millisecond)

	s.Start()

	waitFor(t, time.Second, func() bool { return !s.IsRunning() })
}

func TestSensor_FrameErrorSkipsCycleWithoutEdge(t *testing.T) {
	src := &fakeSource{err: errors.New("read failed")}
	face := &scriptedBackend{script: []bool{true}}

	s := New(openFake(src), face, nil, ModeFace, time.Millisecond)

	var notifications int64
	s.Subscribe(func(present bool) { atomic.AddInt64(&notifications, 1) })

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.captures >= 5
	})

	if n := atomic.LoadInt64(&notifications); n != 0 {
		t.Errorf("failed frames must not publish a verdict, got %d notifications", n)
	}
	if face.callCount() != 0 {
		t.Error("backends must not run when the frame read fails")
	}
}

func TestSensor_StopReleasesSource(t *testing.T) {
	src := &fakeSource{}
	face := &scriptedBackend{script: []bool{false}}

	s := New(openFake(src), face, nil, ModeFace, time.Millisecond)
	s.Start()

	waitFor(t, time.Second, func() bool { return face.callCount() >= 1 })

	s.Stop()

	if !src.isClosed() {
		t.Error("Stop must release the capture device")
	}
	if s.IsRunning() {
		t.Error("sensor should report not running after Stop")
	}
}

func TestSensor_StartTwiceIsNoOp(t *testing.T) {
	src := &fakeSource{}
	s := New(openFake(src), &scriptedBackend{}, nil, ModeFace, time.Millisecond)
	s.Start()
	s.Start() // must not spawn a second loop or panic
	defer s.Stop()

	if !s.IsRunning() {
		t.Error("sensor should be running")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"face", ModeFace, false},
		{"pose", ModePose, false},
		{"both", ModeBoth, false},
		{"sonar", ModeBoth, true},
	}

	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q): err=%v, wantErr=%v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}
