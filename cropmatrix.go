// Package cropmatrix computes face-aware crop transforms for images shown in
// fixed-size viewports, and animates between a start and an end transform.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/cropmatrix"
//		"github.com/menta2k/cropmatrix/pkg/cropper"
//		"github.com/menta2k/cropmatrix/pkg/detection"
//		"github.com/menta2k/cropmatrix/pkg/types"
//	)
//
//	func main() {
//		det, err := detection.LoadCascadeDetector("cascade/facefinder", detection.DefaultCascadeOptions(), nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		cfg := cropper.DefaultConfig()
//		cfg.AutoFaceDetection = true
//
//		engine := cropmatrix.NewWithConfig(cropmatrix.Config{
//			Crop:      cfg,
//			ScaleType: cropper.CenterCrop,
//			Detector:  detection.NewCachedDetector(det, nil),
//		})
//
//		img, err := engine.Processor().LoadImage("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		plan, err := engine.Plan(context.Background(), img, types.Size{Width: 1080, Height: 1920})
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("end transform: %s", plan.End)
//	}
//
// The package consists of these components:
//
// 1. Cropper (pkg/cropper): the crop matrix calculation and scale type fallbacks
// 2. Animation (pkg/animation): the start to end transform animator
// 3. Detection (pkg/detection): pigo and vision model face detectors with a result cache
// 4. View (pkg/view): binding for hosts that redraw on every tick
// 5. Processing (pkg/processing): image I/O and rendering through a transform
//
// Engine wires them together for one-shot use such as the cropmatrix CLI.
package cropmatrix

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/cropmatrix/pkg/cropper"
	"github.com/menta2k/cropmatrix/pkg/detection"
	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/processing"
	"github.com/menta2k/cropmatrix/pkg/types"
	"github.com/menta2k/cropmatrix/pkg/view"
)

// Version of the cropmatrix library
const Version = "0.1.0"

// ErrInvalidSize is returned when the frame or the image has a non-positive side
var ErrInvalidSize = errors.New("frame and image sizes must be positive")

// Engine bundles a crop configuration, a face detector and an image processor
type Engine struct {
	processor *processing.Processor
	config    cropper.CropConfig
	scaleType cropper.ScaleType
	detector  detection.FaceDetector
	log       logrus.FieldLogger
}

// Config configures an Engine
type Config struct {
	Crop cropper.CropConfig
	// ScaleType is the placement used when no crop applies.
	ScaleType cropper.ScaleType
	// Detector is optional; without one no faces are found.
	Detector detection.FaceDetector
	Logger   logrus.FieldLogger
}

// DefaultConfig returns the default crop configuration with FitCenter
// placement and no detector.
func DefaultConfig() Config {
	return Config{
		Crop:      cropper.DefaultConfig(),
		ScaleType: cropper.FitCenter,
	}
}

// New creates an Engine with the default configuration, which only
// reproduces the scale type placement.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an Engine with a custom configuration
func NewWithConfig(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Engine{
		processor: processing.NewProcessor(),
		config:    cfg.Crop,
		scaleType: cfg.ScaleType,
		detector:  cfg.Detector,
		log:       cfg.Logger,
	}
}

// Processor returns the image processor used for loading and rendering
func (e *Engine) Processor() *processing.Processor {
	return e.processor
}

// Config returns the crop configuration
func (e *Engine) Config() cropper.CropConfig {
	return e.config
}

// Plan is the outcome of a crop computation for one frame size
type Plan struct {
	Frame    types.Size    `json:"frame"`
	Image    types.Size    `json:"image"`
	Faces    []types.Face  `json:"faces"`
	Cropped  bool          `json:"cropped"`
	Start    matrix.Matrix `json:"start"`
	End      matrix.Matrix `json:"end"`
	Duration time.Duration `json:"duration"`
	Cyclic   bool          `json:"cyclic"`
}

// Animated reports whether Start blends into End
func (p Plan) Animated() bool {
	return p.Duration > 0
}

// DetectFaces runs the configured detector. Without a detector it finds nothing.
func (e *Engine) DetectFaces(ctx context.Context, img image.Image) ([]types.Face, error) {
	if e.detector == nil {
		return nil, nil
	}
	faces, err := e.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	return faces, nil
}

// Plan detects faces when enabled for the image aspect and computes the
// crop of img inside frame. Detection failures degrade to no faces.
func (e *Engine) Plan(ctx context.Context, img image.Image, frame types.Size) (Plan, error) {
	b := img.Bounds()
	size := types.NewSize(b.Dx(), b.Dy())
	if !frame.Valid() || !size.Valid() {
		return Plan{}, fmt.Errorf("%w: frame %vx%v, image %vx%v", ErrInvalidSize, frame.Width, frame.Height, size.Width, size.Height)
	}

	var faces []types.Face
	if e.config.AutoFaceDetection && e.config.DetectionFlags.AllowsAspect(size) {
		var err error
		faces, err = e.DetectFaces(ctx, img)
		if err != nil {
			e.log.WithError(err).Warn("Continuing without faces")
		}
	}
	return e.PlanWithFaces(frame, size, faces)
}

// PlanWithFaces computes the crop for known faces
func (e *Engine) PlanWithFaces(frame, size types.Size, faces []types.Face) (Plan, error) {
	if !frame.Valid() || !size.Valid() {
		return Plan{}, ErrInvalidSize
	}

	plan := Plan{Frame: frame, Image: size, Faces: faces}
	res, ok := cropper.NewWithConfig(e.config).Compute(cropper.Request{
		Frame:     frame,
		Image:     size,
		Faces:     faces,
		ScaleType: e.scaleType,
		Current:   matrix.Identity(),
	})
	if !ok {
		m := cropper.OriginalMatrix(e.scaleType, frame, size, matrix.Identity())
		plan.Start, plan.End = m, m
		return plan, nil
	}

	plan.Cropped = true
	plan.End = res.End
	plan.Start = res.End
	if res.Animated() {
		plan.Start = res.Start
		plan.Duration = res.Duration
		plan.Cyclic = res.Cyclic
	}

	e.log.WithFields(logrus.Fields{
		"frame":    fmt.Sprintf("%vx%v", frame.Width, frame.Height),
		"faces":    len(faces),
		"animated": plan.Animated(),
	}).Debug("Crop planned")
	return plan, nil
}

// RenderPlan rasterizes the start and end transforms of plan
func (e *Engine) RenderPlan(img image.Image, plan Plan, bg color.Color) (start, end *image.NRGBA, err error) {
	if start, err = e.processor.Render(img, plan.Frame, plan.Start, bg); err != nil {
		return nil, nil, fmt.Errorf("failed to render start frame: %w", err)
	}
	if end, err = e.processor.Render(img, plan.Frame, plan.End, bg); err != nil {
		return nil, nil, fmt.Errorf("failed to render end frame: %w", err)
	}
	return start, end, nil
}

// RenderAnimation plays the crop animation of img inside frame at fps on a
// simulated clock and returns one image per tick, from the start transform
// through the end transform. A non-animated crop yields a single frame.
func (e *Engine) RenderAnimation(ctx context.Context, img image.Image, frame types.Size, fps int, bg color.Color) ([]*image.NRGBA, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", fps)
	}
	if !frame.Valid() {
		return nil, ErrInvalidSize
	}

	renderer := processing.NewFrameRenderer(e.processor, frame, bg)
	renderer.SetImage(img)

	t0 := time.Unix(0, 0)
	now := t0
	cfg := e.config
	ctrl := view.NewController(renderer, view.Options{
		Config:        &cfg,
		ScaleType:     e.scaleType,
		Detector:      e.detector,
		DetectTimeout: view.DefaultDetectTimeout,
		SyncDetection: true,
		Clock:         func() time.Time { return now },
		Logger:        e.log,
	})
	defer ctrl.Close()

	ctrl.ContentChanged(img)
	ctrl.ViewportResized(frame)

	// The last tick lands exactly on the duration so the end transform is
	// always shown, even when the step does not divide it.
	step := time.Second / time.Duration(fps)
	count := 1
	if d := cfg.AnimationDuration; d > 0 {
		ticks := d / step
		if ticks*step < d {
			ticks++
		}
		count = int(ticks) + 1
	}

	frames := make([]*image.NRGBA, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := time.Duration(i) * step
		if d := cfg.AnimationDuration; d > 0 && at > d {
			at = d
		}
		now = t0.Add(at)
		ctrl.Frame()
		snap, err := renderer.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to render frame %d: %w", i, err)
		}
		frames = append(frames, snap)
	}

	e.log.WithFields(logrus.Fields{
		"frames": len(frames),
		"fps":    fps,
	}).Debug("Animation rendered")
	return frames, nil
}
