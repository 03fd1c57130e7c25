package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// FaceBackend classifies frames with OpenCV's FaceDetectorYN.
// Short-range face detection is the strongest signal that someone is
// actually looking at the kiosk, not just walking past it.
type FaceBackend struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // protects inference
}

// NewFaceBackend creates a YuNet-based face presence backend.
func NewFaceBackend(cfg Config) (*FaceBackend, error) {
	if _, err := os.Stat(cfg.FaceModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("face model not found: %s", cfg.FaceModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModelPath,
		"", // no config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh), // score threshold
		0.3,                           // NMS threshold
		5000,                          // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &FaceBackend{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect reports whether at least one face above the confidence
// threshold is visible in the frame.
func (b *FaceBackend) Detect(frame []byte) (Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return Hit{}, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return Hit{}, fmt.Errorf("empty frame")
	}

	b.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	b.detector.Detect(img, &faces)

	// YuNet pre-filters on the score threshold, so any row is a hit.
	// Column 14 is the face score.
	best := 0.0
	for r := 0; r < faces.Rows(); r++ {
		if score := float64(faces.GetFloatAt(r, 14)); score > best {
			best = score
		}
	}

	return Hit{Present: faces.Rows() > 0, Confidence: best}, nil
}

// Close releases the detector resources.
func (b *FaceBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detector.Close()
	return nil
}
