// camtest exercises the camera and detector backends without touching
// the display. Useful when aiming the camera or picking a confidence
// threshold.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-kiosk/internal/config"
	"github.com/teslashibe/go-kiosk/internal/log"
	"github.com/teslashibe/go-kiosk/pkg/detect"
	"github.com/teslashibe/go-kiosk/pkg/presence"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	cycles := flag.Int("n", 30, "number of detection cycles to run")
	flag.Parse()

	log.Init("warn") // keep stdout clean for the verdict lines

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	dcfg := detect.DefaultConfig()
	dcfg.FaceModelPath = cfg.Presence.FaceModelPath
	dcfg.PoseModelPath = cfg.Presence.PoseModelPath
	dcfg.ConfidenceThresh = cfg.Presence.DetectionConfidence

	face, err := detect.NewFaceBackend(dcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "face backend: %v\n", err)
	} else {
		defer face.Close()
	}
	pose, err := detect.NewPoseBackend(dcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pose backend: %v\n", err)
	} else {
		defer pose.Close()
	}
	if face == nil && pose == nil {
		fmt.Fprintln(os.Stderr, "no detector backend available")
		os.Exit(1)
	}

	cam, err := presence.OpenCamera(cfg.Presence.CameraIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "camera %d: %v\n", cfg.Presence.CameraIndex, err)
		os.Exit(1)
	}
	defer cam.Close()

	fmt.Printf("camera %d open, running %d cycles at %s\n",
		cfg.Presence.CameraIndex, *cycles, cfg.Presence.Interval())

	for i := 0; i < *cycles; i++ {
		start := time.Now()

		frame, err := cam.CaptureJPEG()
		if err != nil {
			fmt.Printf("%3d  frame error: %v\n", i, err)
			continue
		}

		faceFound, poseFound := false, false
		var conf float64
		if face != nil {
			if hit, err := face.Detect(frame); err == nil {
				faceFound = hit.Present
				conf = hit.Confidence
			}
		}
		if pose != nil && !faceFound {
			if hit, err := pose.Detect(frame); err == nil {
				poseFound = hit.Present
				conf = hit.Confidence
			}
		}

		kind := detect.Combine(faceFound, poseFound)
		fmt.Printf("%3d  %-9s  confidence=%.2f  (%s)\n",
			i, kind, conf, time.Since(start).Round(time.Millisecond))

		if sleep := cfg.Presence.Interval() - time.Since(start); sleep > 0 {
			time.Sleep(sleep)
		}
	}
}
