// Package view binds the crop calculator and the animator to one displayed
// image. The host forwards content and viewport changes, calls Frame on
// every render tick and receives exactly one transform per tick.
//
// A Controller is driven from a single render goroutine. Face detection
// runs on its own goroutine and hands results back through the Scheduler.
package view

import (
	"context"
	"image"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/cropmatrix/pkg/animation"
	"github.com/menta2k/cropmatrix/pkg/cropper"
	"github.com/menta2k/cropmatrix/pkg/detection"
	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

// DefaultDetectTimeout bounds a single detection run
const DefaultDetectTimeout = 30 * time.Second

// Renderer receives the transform to draw with
type Renderer interface {
	SetTransform(m matrix.Matrix)
}

// Clock returns the current time; tests substitute a manual clock
type Clock func() time.Time

// FaceLookup is implemented by detectors that can answer from a cache
// without running detection.
type FaceLookup interface {
	Cached(img image.Image) ([]types.Face, bool)
}

// Options configure a Controller
type Options struct {
	// Config is the initial crop configuration, nil means cropper.DefaultConfig.
	Config    *cropper.CropConfig
	ScaleType cropper.ScaleType

	Detector      detection.FaceDetector
	DetectTimeout time.Duration
	// SyncDetection runs the detector inline in ContentChanged.
	SyncDetection bool

	Clock  Clock
	Logger logrus.FieldLogger
}

type detectResult struct {
	generation uint64
	faces      []types.Face
}

// Controller owns the crop state of one view
type Controller struct {
	log      logrus.FieldLogger
	renderer Renderer
	clock    Clock

	detector      detection.FaceDetector
	detectTimeout time.Duration
	syncDetection bool
	cancelDetect  context.CancelFunc

	sched    *Scheduler
	calc     *cropper.Calculator
	animator *animation.Animator

	scaleType  cropper.ScaleType
	hostMatrix matrix.Matrix
	frame      types.Size
	img        image.Image
	imgSize    types.Size
	faces      []types.Face
	generation uint64

	mu       sync.Mutex
	detected *detectResult
}

// NewController creates a controller drawing into renderer
func NewController(renderer Renderer, opts Options) *Controller {
	cfg := cropper.DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = DefaultDetectTimeout
	}

	return &Controller{
		log:           opts.Logger,
		renderer:      renderer,
		clock:         opts.Clock,
		detector:      opts.Detector,
		detectTimeout: opts.DetectTimeout,
		syncDetection: opts.SyncDetection,
		sched:         NewScheduler(),
		calc:          cropper.NewWithConfig(cfg),
		animator:      animation.New(cfg.Interpolator),
		scaleType:     opts.ScaleType,
		hostMatrix:    matrix.Identity(),
	}
}

// Scheduler exposes the pending-work slot, for hosts that wait on Wake
func (c *Controller) Scheduler() *Scheduler {
	return c.sched
}

// Config returns the active crop configuration
func (c *Controller) Config() cropper.CropConfig {
	return c.calc.Config()
}

// ScaleType returns the fallback scale type
func (c *Controller) ScaleType() cropper.ScaleType {
	return c.scaleType
}

// Viewport returns the last frame size reported by the host
func (c *Controller) Viewport() types.Size {
	return c.frame
}

// Faces returns the faces used by the last recompute
func (c *Controller) Faces() []types.Face {
	return append([]types.Face(nil), c.faces...)
}

// Animating reports whether the host should keep ticking
func (c *Controller) Animating() bool {
	return c.animator.State() == animation.Running
}

// Frame runs pending work and pushes the transform for the current time to
// the renderer.
func (c *Controller) Frame() matrix.Matrix {
	c.sched.RunPending()
	m := c.animator.Tick(c.clock())
	c.renderer.SetTransform(m)
	return m
}

// Close stops any detection in flight and drops pending work
func (c *Controller) Close() {
	c.stopDetection()
	c.sched.Cancel()
}

// ContentChanged is called when the displayed image changes. A nil image
// clears the view back to the identity transform.
func (c *Controller) ContentChanged(img image.Image) {
	c.generation++
	c.stopDetection()
	c.faces = nil

	if img == nil {
		c.img = nil
		c.imgSize = types.Size{}
		c.sched.Cancel()
		c.animator.Set(matrix.Identity())
		c.renderer.SetTransform(matrix.Identity())
		c.log.Debug("Content cleared")
		return
	}

	b := img.Bounds()
	c.img = img
	c.imgSize = types.NewSize(b.Dx(), b.Dy())
	c.refreshFaces()
	c.requestRecompute("content")
}

// ViewportResized is called when the frame size changes. Non-positive sizes
// leave the current transform in place until a usable size arrives.
func (c *Controller) ViewportResized(size types.Size) {
	if size == c.frame {
		return
	}
	c.frame = size
	c.requestRecompute("resize")
}

// SetHostMatrix sets the matrix used by the Matrix scale type
func (c *Controller) SetHostMatrix(m matrix.Matrix) {
	if m == c.hostMatrix {
		return
	}
	c.hostMatrix = m
	if c.scaleType == cropper.Matrix {
		c.requestRecompute("host_matrix")
	}
}

// SetScaleType changes the fallback placement
func (c *Controller) SetScaleType(st cropper.ScaleType) {
	if st == c.scaleType {
		return
	}
	c.scaleType = st
	c.requestRecompute("scale_type")
}

// SetAutoFaceDetection toggles running the detector on new content
func (c *Controller) SetAutoFaceDetection(on bool) {
	c.configure("auto_face_detection", func(cfg *cropper.CropConfig) bool {
		if cfg.AutoFaceDetection == on {
			return false
		}
		cfg.AutoFaceDetection = on
		return true
	})
}

// SetMinConfidence sets the floor a face confidence must exceed
func (c *Controller) SetMinConfidence(v float64) {
	c.configure("min_confidence", func(cfg *cropper.CropConfig) bool {
		if cfg.MinConfidence == v {
			return false
		}
		cfg.MinConfidence = v
		return true
	})
}

// SetMaxFaces limits how many faces are considered
func (c *Controller) SetMaxFaces(n int) {
	c.configure("max_faces", func(cfg *cropper.CropConfig) bool {
		if cfg.MaxFaces == n {
			return false
		}
		cfg.MaxFaces = n
		return true
	})
}

// SetPreScale sets the animation start scale; nil unsets it
func (c *Controller) SetPreScale(v *float64) {
	c.configure("pre_scale", func(cfg *cropper.CropConfig) bool {
		if sameOptional(cfg.PreScale, v) {
			return false
		}
		cfg.PreScale = copyOptional(v)
		return true
	})
}

// SetPreTranslate sets the animation start translation fractions
func (c *Controller) SetPreTranslate(x, y float64) {
	c.configure("pre_translate", func(cfg *cropper.CropConfig) bool {
		if cfg.PreTranslateX == x && cfg.PreTranslateY == y {
			return false
		}
		cfg.PreTranslateX, cfg.PreTranslateY = x, y
		return true
	})
}

// SetScale sets the end scale; nil unsets it
func (c *Controller) SetScale(v *float64) {
	c.configure("scale", func(cfg *cropper.CropConfig) bool {
		if sameOptional(cfg.Scale, v) {
			return false
		}
		cfg.Scale = copyOptional(v)
		return true
	})
}

// SetTranslate sets the end translation fractions
func (c *Controller) SetTranslate(x, y float64) {
	c.configure("translate", func(cfg *cropper.CropConfig) bool {
		if cfg.TranslateX == x && cfg.TranslateY == y {
			return false
		}
		cfg.TranslateX, cfg.TranslateY = x, y
		return true
	})
}

// SetOffsets sets the default-offset fractions used when no face qualifies
func (c *Controller) SetOffsets(x, y float64) {
	x, y = cropper.OffsetFraction(x), cropper.OffsetFraction(y)
	c.configure("offsets", func(cfg *cropper.CropConfig) bool {
		if sameOptional(cfg.OffsetX, &x) && sameOptional(cfg.OffsetY, &y) {
			return false
		}
		cfg.OffsetX, cfg.OffsetY = cropper.Float(x), cropper.Float(y)
		return true
	})
}

// ResetOffsets restores centered default offsets
func (c *Controller) ResetOffsets() {
	c.configure("offsets", func(cfg *cropper.CropConfig) bool {
		if cfg.OffsetX == nil && cfg.OffsetY == nil {
			return false
		}
		cfg.OffsetX, cfg.OffsetY = nil, nil
		return true
	})
}

// SetDetectionFlags sets which aspects run face detection
func (c *Controller) SetDetectionFlags(f cropper.Flags) {
	c.configure("detection_flags", func(cfg *cropper.CropConfig) bool {
		if cfg.DetectionFlags == f {
			return false
		}
		cfg.DetectionFlags = f
		return true
	})
}

// SetMatrixFlags sets which aspects and face outcomes apply the crop
func (c *Controller) SetMatrixFlags(f cropper.Flags) {
	c.configure("matrix_flags", func(cfg *cropper.CropConfig) bool {
		if cfg.MatrixFlags == f {
			return false
		}
		cfg.MatrixFlags = f
		return true
	})
}

// SetAnimationDuration sets the start-to-end animation length; zero disables it
func (c *Controller) SetAnimationDuration(d time.Duration) {
	c.configure("animation_duration", func(cfg *cropper.CropConfig) bool {
		if cfg.AnimationDuration == d {
			return false
		}
		cfg.AnimationDuration = d
		return true
	})
}

// SetCyclic makes the animation restart from the start matrix every period
func (c *Controller) SetCyclic(on bool) {
	c.configure("cyclic", func(cfg *cropper.CropConfig) bool {
		if cfg.Cyclic == on {
			return false
		}
		cfg.Cyclic = on
		return true
	})
}

// SetInterpolator sets the animation time warp; nil jumps straight to the end transform
func (c *Controller) SetInterpolator(fn animation.Interpolator) {
	c.configure("interpolator", func(cfg *cropper.CropConfig) bool {
		if sameFunc(cfg.Interpolator, fn) {
			return false
		}
		cfg.Interpolator = fn
		return true
	})
}

// SetFaces supplies faces directly, for hosts that detect on their own.
// An empty slice means no faces.
func (c *Controller) SetFaces(faces []types.Face) {
	c.faces = append([]types.Face(nil), faces...)
	if len(c.faces) == 0 {
		c.faces = nil
	}
	c.requestRecompute("faces")
}

// SetConfig replaces the whole configuration
func (c *Controller) SetConfig(cfg cropper.CropConfig) {
	c.calc.SetConfig(cfg)
	c.animator.SetInterpolator(cfg.Interpolator)
	c.refreshFaces()
	c.requestRecompute("config")
}

func (c *Controller) configure(name string, change func(cfg *cropper.CropConfig) bool) {
	cfg := c.calc.Config()
	if !change(&cfg) {
		return
	}
	c.calc.SetConfig(cfg)
	c.animator.SetInterpolator(cfg.Interpolator)

	switch name {
	case "auto_face_detection", "detection_flags":
		c.refreshFaces()
	}
	c.requestRecompute(name)
}

func (c *Controller) requestRecompute(reason string) {
	id := c.sched.Schedule(reason, c.recompute)
	c.log.WithFields(logrus.Fields{
		"job":    id,
		"reason": reason,
	}).Trace("Recompute scheduled")
}

// recompute runs on the render goroutine
func (c *Controller) recompute() {
	c.mu.Lock()
	if c.detected != nil && c.detected.generation == c.generation {
		c.faces = c.detected.faces
	}
	c.detected = nil
	c.mu.Unlock()

	if !c.frame.Valid() || !c.imgSize.Valid() {
		c.log.WithFields(logrus.Fields{
			"frame": c.frame,
			"image": c.imgSize,
		}).Debug("Skipping recompute on degenerate size")
		return
	}

	res, ok := c.calc.Compute(cropper.Request{
		Frame:     c.frame,
		Image:     c.imgSize,
		Faces:     c.faces,
		ScaleType: c.scaleType,
		Current:   c.hostMatrix,
	})

	fields := logrus.Fields{
		"frame": c.frame,
		"image": c.imgSize,
		"faces": len(c.faces),
	}
	switch {
	case !ok:
		m := cropper.OriginalMatrix(c.scaleType, c.frame, c.imgSize, c.hostMatrix)
		c.animator.Set(m)
		c.log.WithFields(fields).WithField("scale_type", c.scaleType).Debug("No crop, using scale type")
	case res.Animated():
		c.animator.Start(res.Start, res.End, res.Duration, res.Cyclic, c.clock())
		c.log.WithFields(fields).WithField("duration", res.Duration).Debug("Crop animation started")
	default:
		c.animator.Set(res.End)
		c.log.WithFields(fields).Debug("Crop applied")
	}
}

// refreshFaces starts detection for the current image or, when automatic
// detection is off, takes whatever the detector already knows.
func (c *Controller) refreshFaces() {
	if c.img == nil || c.detector == nil {
		return
	}
	cfg := c.calc.Config()

	if !cfg.AutoFaceDetection {
		if lookup, ok := c.detector.(FaceLookup); ok {
			if faces, ok := lookup.Cached(c.img); ok {
				c.faces = faces
			}
		}
		return
	}
	if !cfg.DetectionFlags.AllowsAspect(c.imgSize) {
		c.log.WithField("flags", cfg.DetectionFlags).Debug("Detection skipped for image aspect")
		return
	}
	c.startDetection(c.img, c.generation)
}

func (c *Controller) startDetection(img image.Image, generation uint64) {
	c.stopDetection()
	ctx, cancel := context.WithTimeout(context.Background(), c.detectTimeout)

	if c.syncDetection {
		defer cancel()
		c.faces = c.detect(ctx, img)
		return
	}

	c.cancelDetect = cancel
	go func() {
		defer cancel()
		faces := c.detect(ctx, img)
		if ctx.Err() == context.Canceled {
			return
		}

		c.mu.Lock()
		c.detected = &detectResult{generation: generation, faces: faces}
		c.mu.Unlock()
		c.sched.Schedule("detected", c.recompute)
	}()
}

func (c *Controller) stopDetection() {
	if c.cancelDetect != nil {
		c.cancelDetect()
		c.cancelDetect = nil
	}
}

// detect never fails: detector errors mean no faces
func (c *Controller) detect(ctx context.Context, img image.Image) []types.Face {
	start := time.Now()
	faces, err := c.detector.Detect(ctx, img)
	if err != nil {
		c.log.WithError(err).Warn("Face detection failed")
		return nil
	}
	c.log.WithFields(logrus.Fields{
		"faces":   len(faces),
		"elapsed": time.Since(start),
	}).Debug("Face detection finished")
	return faces
}

func sameOptional(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyOptional(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return cropper.Float(*v)
}

func sameFunc(a, b animation.Interpolator) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
