// Package detect provides binary human-presence classifiers over camera frames.
package detect

import "time"

// Kind records which backend(s) supported a presence verdict.
// It is diagnostic only and never drives control decisions.
type Kind int

const (
	KindNone Kind = iota
	KindFace
	KindPose
	KindFaceAndPose
)

// String returns the wire/diagnostic name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFace:
		return "face"
	case KindPose:
		return "pose"
	case KindFaceAndPose:
		return "face+pose"
	default:
		return "none"
	}
}

// Combine merges the kind of two backend outcomes.
func Combine(face, pose bool) Kind {
	switch {
	case face && pose:
		return KindFaceAndPose
	case face:
		return KindFace
	case pose:
		return KindPose
	default:
		return KindNone
	}
}

// Result is one fused sampling-cycle verdict.
type Result struct {
	Present   bool
	Kind      Kind
	SampledAt time.Time
}

// Hit is a single backend's verdict for one frame.
type Hit struct {
	Present    bool
	Confidence float64 // strongest supporting observation, 0-1
}

// Backend is a binary presence classifier. Detect receives one encoded
// (JPEG) camera frame and must be safe to call repeatedly from the
// sampling goroutine.
type Backend interface {
	Detect(frame []byte) (Hit, error)
	Close() error
}

// Config holds detector configuration shared by the backends.
type Config struct {
	FaceModelPath    string
	PoseModelPath    string
	ConfidenceThresh float64 // minimum confidence / landmark visibility
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns production defaults for the bundled ONNX models.
func DefaultConfig() Config {
	return Config{
		FaceModelPath:    "models/face_detection_yunet.onnx",
		PoseModelPath:    "models/pose_landmark_lite.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Landmark is one body keypoint with its visibility score.
type Landmark struct {
	X, Y, Z    float64
	Visibility float64 // 0-1, how confidently the point is in frame
}

// BlazePose landmark indices for the torso keypoints used to confirm
// a body is actually in front of the kiosk.
const (
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
)

var torsoIndices = [4]int{
	LandmarkLeftShoulder,
	LandmarkRightShoulder,
	LandmarkLeftHip,
	LandmarkRightHip,
}

// TorsoPresent reports whether at least 2 of the 4 torso landmarks
// (both shoulders, both hips) exceed the visibility threshold.
// A single visible landmark is treated as noise, not presence.
func TorsoPresent(landmarks []Landmark, threshold float64) bool {
	visible := 0
	for _, idx := range torsoIndices {
		if idx >= len(landmarks) {
			continue
		}
		if landmarks[idx].Visibility > threshold {
			visible++
		}
	}
	return visible >= 2
}

// TorsoConfidence returns the best torso landmark visibility, for diagnostics.
func TorsoConfidence(landmarks []Landmark) float64 {
	best := 0.0
	for _, idx := range torsoIndices {
		if idx >= len(landmarks) {
			continue
		}
		if v := landmarks[idx].Visibility; v > best {
			best = v
		}
	}
	return best
}
