package detect

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Pose model input size (BlazePose landmark models take 256x256).
const poseInputSize = 256

// Landmark count and stride in the raw output tensor: 33 body keypoints,
// 5 floats each (x, y, z, visibility logit, presence logit).
const (
	poseLandmarkCount  = 33
	poseLandmarkStride = 5
)

// PoseBackend classifies frames with a BlazePose landmark model run
// through OpenCV's DNN module. It catches people near the kiosk whose
// face is turned away from the camera.
type PoseBackend struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex // protects inference
}

// NewPoseBackend creates a pose-landmark presence backend.
func NewPoseBackend(cfg Config) (*PoseBackend, error) {
	if _, err := os.Stat(cfg.PoseModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("pose model not found: %s", cfg.PoseModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.PoseModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load pose model from %s", cfg.PoseModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &PoseBackend{
		net:    net,
		config: cfg,
	}, nil
}

// Detect reports whether a body is visible in the frame. Presence is
// confirmed only when at least 2 of the 4 torso landmarks (shoulders,
// hips) exceed the visibility threshold.
func (b *PoseBackend) Detect(frame []byte) (Hit, error) {
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

	blob := gocv.BlobFromImage(img, 1.0/255.0,
		image.Pt(poseInputSize, poseInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	b.net.SetInput(blob, "")

	output := b.net.Forward("")
	defer output.Close()

	landmarks, err := parsePoseOutput(output)
	if err != nil {
		return Hit{}, err
	}

	present := TorsoPresent(landmarks, b.config.ConfidenceThresh)
	return Hit{Present: present, Confidence: TorsoConfidence(landmarks)}, nil
}

// parsePoseOutput converts the raw landmark tensor into Landmarks.
// Visibility logits are squashed through a sigmoid to 0-1.
func parsePoseOutput(output gocv.Mat) ([]Landmark, error) {
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("pose output: %w", err)
	}
	if len(data) < poseLandmarkCount*poseLandmarkStride {
		return nil, fmt.Errorf("pose output too short: %d floats", len(data))
	}

	landmarks := make([]Landmark, poseLandmarkCount)
	for i := 0; i < poseLandmarkCount; i++ {
		off := i * poseLandmarkStride
		landmarks[i] = Landmark{
			X:          float64(data[off]) / poseInputSize,
			Y:          float64(data[off+1]) / poseInputSize,
			Z:          float64(data[off+2]) / poseInputSize,
			Visibility: sigmoid(float64(data[off+3])),
		}
	}
	return landmarks, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Close releases the network resources.
func (b *PoseBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.net.Close()
	return nil
}
