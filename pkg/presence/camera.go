package presence

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Camera capture resolution. Low resolution keeps detector latency well
// under the sampling interval on kiosk-grade hardware.
const (
	frameWidth  = 640
	frameHeight = 480
)

// Camera is a FrameSource backed by a local video device.
type Camera struct {
	cap *gocv.VideoCapture
	img gocv.Mat
}

// OpenCamera opens the video device at the given index.
func OpenCamera(index int) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("camera %d not opened", index)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, frameWidth)
	cap.Set(gocv.VideoCaptureFrameHeight, frameHeight)

	return &Camera{
		cap: cap,
		img: gocv.NewMat(),
	}, nil
}

// CaptureJPEG grabs one frame and returns it JPEG-encoded.
func (c *Camera) CaptureJPEG() ([]byte, error) {
	if ok := c.cap.Read(&c.img); !ok {
		return nil, fmt.Errorf("frame read failed")
	}
	if c.img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	buf, err := gocv.IMEncode(".jpg", c.img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// Copy out: the native buffer is invalid after Close.
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// Close releases the video device.
func (c *Camera) Close() error {
	c.img.Close()
	return c.cap.Close()
}

// Opener returns an OpenFunc for the device index, for wiring into New.
func Opener(index int) OpenFunc {
	return func() (FrameSource, error) {
		return OpenCamera(index)
	}
}
