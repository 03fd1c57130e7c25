// Package input observes a local input device node and reports activity
// bursts. It is a pure producer: every burst becomes one callback, and
// debouncing is the power machine's job.
package input

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-kiosk/internal/log"
)

// Watcher blocks on reads from an input device node (e.g.
// /dev/input/mice) and fires the callback once per read burst.
type Watcher struct {
	device     string
	onActivity func(at time.Time)
	logger     interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
	}

	open func(string) (*os.File, error) // swapped in tests
}

// New creates a watcher for the given device node.
func New(device string, onActivity func(at time.Time)) *Watcher {
	return &Watcher{
		device:     device,
		onActivity: onActivity,
		logger:     log.Component("input"),
		open:       os.Open,
	}
}

// Run reads the device until the context is canceled. A missing or
// unreadable device is reported once and disables wake-on-input; it
// never brings the controller down.
func (w *Watcher) Run(ctx context.Context) error {
	f, err := w.open(w.device)
	if err != nil {
		w.logger.Warn("input device unavailable, wake-on-input disabled",
			"device", w.device, "error", err)
		return fmt.Errorf("open input device: %w", err)
	}
	defer f.Close()

	// Close the file when the context ends so the blocking Read
	// returns.
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	w.logger.Info("watching input device", "device", w.device)

	buf := make([]byte, 64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input device: %w", err)
		}
		if n > 0 {
			w.onActivity(time.Now())
		}
	}
}
