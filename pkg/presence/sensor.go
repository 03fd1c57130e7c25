// Package presence runs the camera sampling loop and fuses detector
// backends into a single edge-triggered presence signal.
package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-kiosk/internal/log"
	"github.com/teslashibe/go-kiosk/pkg/detect"
)

// Mode selects which detector backends participate in a cycle.
type Mode int

const (
	// ModeFace detects faces only - best when people look at the kiosk.
	ModeFace Mode = iota
	// ModePose detects body pose only - best for nearby presence.
	ModePose
	// ModeBoth detects either, and always runs both backends so the
	// combined kind can be reported.
	ModeBoth
)

// String returns the config-file name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFace:
		return "face"
	case ModePose:
		return "pose"
	default:
		return "both"
	}
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "face":
		return ModeFace, nil
	case "pose":
		return ModePose, nil
	case "both":
		return ModeBoth, nil
	default:
		return ModeBoth, fmt.Errorf("unknown detection mode %q", s)
	}
}

// FrameSource supplies encoded camera frames to the sampling loop.
type FrameSource interface {
	CaptureJPEG() ([]byte, error)
	Close() error
}

// OpenFunc opens the frame source. It runs on the sampling goroutine so
// a slow camera open never blocks the caller of Start.
type OpenFunc func() (FrameSource, error)

// State is the published presence snapshot. IsPresent reflects only the
// most recent sampling cycle - debouncing happens in the power machine,
// on the timeout clock, not here.
type State struct {
	IsPresent     bool
	LastKind      detect.Kind
	LastPresentAt time.Time
}

// Callback receives the fused presence boolean, exactly once per change.
type Callback func(present bool)

// joinTimeout bounds how long Stop waits for the loop to exit before
// force-releasing the capture device.
const joinTimeout = 5 * time.Second

// Sensor owns the capture device and the sampling loop.
type Sensor struct {
	open     OpenFunc
	face     detect.Backend // nil unless mode is face or both
	pose     detect.Backend // nil unless mode is pose or both
	mode     Mode
	interval time.Duration
	logger   interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Error(msg string, args ...any)
		Debug(msg string, args ...any)
	}

	mu        sync.Mutex
	running   bool
	state     State
	callbacks []Callback
	frameTap  func(jpeg []byte)
	source    FrameSource
	stop      chan struct{}
	done      chan struct{}
}

// New creates a sensor. Backends not matching the mode may be nil.
func New(open OpenFunc, face, pose detect.Backend, mode Mode, interval time.Duration) *Sensor {
	return &Sensor{
		open:     open,
		face:     face,
		pose:     pose,
		mode:     mode,
		interval: interval,
		logger:   log.Component("presence"),
	}
}

// Start begins continuous sampling on a dedicated goroutine.
// Calling Start while running is a no-op.
func (s *Sensor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	s.logger.Info("presence detector started", "mode", s.mode, "interval", s.interval)
}

// Stop terminates the loop and releases the capture device. The join is
// bounded; the device is force-released even if the loop is stuck.
func (s *Sensor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)

	select {
	case <-done:
	case <-time.After(joinTimeout):
		s.logger.Warn("sampling loop did not stop in time, force-releasing camera")
	}

	s.releaseSource()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("presence detector stopped")
}

// Subscribe registers a callback invoked exactly once per confirmed
// presence-state change. Callbacks run on the sampling goroutine.
func (s *Sensor) Subscribe(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// SetFrameTap installs an observer that receives every captured JPEG
// frame, for dashboard preview streaming. The tap runs on the sampling
// goroutine and must not block.
func (s *Sensor) SetFrameTap(tap func(jpeg []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameTap = tap
}

// IsRunning reports whether the sampling loop is live.
func (s *Sensor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// State returns the last published presence snapshot.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sensor) setSource(src FrameSource) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

func (s *Sensor) releaseSource() {
	s.mu.Lock()
	src := s.source
	s.source = nil
	s.mu.Unlock()
	if src != nil {
		if err := src.Close(); err != nil {
			s.logger.Warn("release camera", "error", err)
		}
	}
}

// run is the sampling loop. A camera-open failure terminates the loop
// without crashing the process; per-cycle faults only skip the cycle.
func (s *Sensor) run(stop, done chan struct{}) {
	defer close(done)

	src, err := s.open()
	if err != nil {
		s.logger.Error("could not open camera, presence detection disabled", "error", err)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return
	}
	s.setSource(src)
	defer s.releaseSource()

	prev := false
	for {
		select {
		case <-stop:
			return
		default:
		}

		start := time.Now()

		res, ok := s.sample(src, start)
		if ok && res.Present != prev {
			prev = res.Present
			s.publish(res)
		}

		// Keep the average cycle period at the configured interval
		// even under variable detector latency.
		elapsed := time.Since(start)
		if sleep := s.interval - elapsed; sleep > 0 {
			select {
			case <-stop:
				return
			case <-time.After(sleep):
			}
		}
	}
}

// sample runs one cycle. ok is false when the cycle produced no verdict
// (frame acquisition failed or a backend panicked).
func (s *Sensor) sample(src FrameSource, at time.Time) (res detect.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in detection cycle", "panic", r)
			ok = false
		}
	}()

	frame, err := src.CaptureJPEG()
	if err != nil {
		s.logger.Warn("could not read frame from camera", "error", err)
		return detect.Result{SampledAt: at}, false
	}

	s.mu.Lock()
	tap := s.frameTap
	s.mu.Unlock()
	if tap != nil {
		tap(frame)
	}

	faceFound := false
	if s.face != nil && (s.mode == ModeFace || s.mode == ModeBoth) {
		hit, err := s.face.Detect(frame)
		if err != nil {
			s.logger.Warn("face backend failed", "error", err)
		} else {
			faceFound = hit.Present
		}
	}

	// Pose runs only when the face backend found nothing, unless mode
	// is Both (combined-kind reporting wants both verdicts).
	poseFound := false
	if s.pose != nil && (s.mode == ModePose || s.mode == ModeBoth) &&
		(!faceFound || s.mode == ModeBoth) {
		hit, err := s.pose.Detect(frame)
		if err != nil {
			s.logger.Warn("pose backend failed", "error", err)
		} else {
			poseFound = hit.Present
		}
	}

	return detect.Result{
		Present:   faceFound || poseFound,
		Kind:      detect.Combine(faceFound, poseFound),
		SampledAt: at,
	}, true
}

// publish updates the snapshot and notifies subscribers of the edge.
func (s *Sensor) publish(res detect.Result) {
	s.mu.Lock()
	s.state.IsPresent = res.Present
	s.state.LastKind = res.Kind
	if res.Present {
		s.state.LastPresentAt = res.SampledAt
	}
	callbacks := make([]Callback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	if res.Present {
		s.logger.Info("presence changed: person detected", "kind", res.Kind.String())
	} else {
		s.logger.Info("presence changed: no person detected")
	}

	for _, cb := range callbacks {
		s.notify(cb, res.Present)
	}
}

// notify isolates one subscriber so a faulty observer cannot break
// delivery to the others.
func (s *Sensor) notify(cb Callback, present bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in presence callback", "panic", r)
		}
	}()
	cb(present)
}
