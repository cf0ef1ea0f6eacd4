package cropper

import (
	"math"
	"time"

	"github.com/menta2k/cropmatrix/pkg/animation"
	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

// CropConfig holds the knobs of the crop calculation. Optional scales are nil
// when unset.
type CropConfig struct {
	AutoFaceDetection bool
	MinConfidence     float64
	MaxFaces          int

	// Start transform, only used when AnimationDuration > 0.
	PreScale      *float64
	PreTranslateX float64
	PreTranslateY float64

	// End transform. Translations are fractions of the over-scan.
	Scale      *float64
	TranslateX float64
	TranslateY float64

	// Default offsets used when no face qualifies, fractions in [0,1].
	OffsetX *float64
	OffsetY *float64

	DetectionFlags Flags
	MatrixFlags    Flags

	AnimationDuration time.Duration
	Cyclic            bool
	Interpolator      animation.Interpolator
}

// Float returns a pointer to v, for the optional CropConfig fields
func Float(v float64) *float64 {
	return &v
}

// DefaultConfig returns the configuration of a freshly created view: no
// detection, no scale, no animation.
func DefaultConfig() CropConfig {
	return CropConfig{MaxFaces: 4}
}

// OffsetFraction normalizes a default-offset fraction to [0,1]
func OffsetFraction(v float64) float64 {
	return math.Min(1, math.Abs(v))
}

func (c CropConfig) defaultOffsets() Offsets {
	o := DefaultOffsets
	if c.OffsetX != nil {
		o.X = OffsetFraction(*c.OffsetX)
	}
	if c.OffsetY != nil {
		o.Y = OffsetFraction(*c.OffsetY)
	}
	return o
}

// IsDefault reports whether the configuration asks for nothing beyond the
// plain scale type, so there is no reason to crop without face detection.
func (c CropConfig) IsDefault() bool {
	return scaleOrOne(c.Scale) == 1 && c.TranslateX == 0 && c.TranslateY == 0 &&
		scaleOrOne(c.PreScale) == 1 && c.PreTranslateX == 0 && c.PreTranslateY == 0 &&
		c.OffsetX == nil && c.OffsetY == nil
}

// Limit returns at most MaxFaces faces. A non-positive MaxFaces keeps all.
func (c CropConfig) Limit(faces []types.Face) []types.Face {
	if c.MaxFaces > 0 && len(faces) > c.MaxFaces {
		return faces[:c.MaxFaces]
	}
	return faces
}

func isUnset(scale *float64) bool {
	return scale == nil || *scale <= 0
}

func scaleOrOne(scale *float64) float64 {
	if isUnset(scale) {
		return 1
	}
	return *scale
}

// Request is the per-call input of the calculator
type Request struct {
	Frame     types.Size
	Image     types.Size
	Faces     []types.Face
	ScaleType ScaleType
	// Current is the host's matrix, used by the Matrix scale type.
	Current matrix.Matrix
}

// Result carries the matrix to show and, when animated, where to start from
type Result struct {
	Start    matrix.Matrix
	End      matrix.Matrix
	Duration time.Duration
	Cyclic   bool
}

// Animated reports whether Start should blend into End
func (r Result) Animated() bool {
	return r.Duration > 0
}

// Calculator computes crop matrices from a CropConfig
type Calculator struct {
	config CropConfig
}

// New creates a Calculator with the default configuration
func New() *Calculator {
	return &Calculator{config: DefaultConfig()}
}

// NewWithConfig creates a Calculator with a custom configuration
func NewWithConfig(config CropConfig) *Calculator {
	return &Calculator{config: config}
}

// Config returns the active configuration
func (c *Calculator) Config() CropConfig {
	return c.config
}

// SetConfig replaces the configuration
func (c *Calculator) SetConfig(config CropConfig) {
	c.config = config
}

// Compute returns the crop for req. The boolean is false when no crop applies
// (degenerate sizes, or nothing configured without face detection); callers
// then fall back to OriginalMatrix.
func (c *Calculator) Compute(req Request) (Result, bool) {
	cfg := c.config
	frame, img := req.Frame, req.Image

	if !frame.Valid() || !img.Valid() {
		return Result{}, false
	}
	if !cfg.AutoFaceDetection && cfg.IsDefault() {
		return Result{}, false
	}

	fitH := frame.Width / img.Width
	fitV := frame.Height / img.Height
	maxScale := math.Max(fitH, fitV)

	scaledW := img.Width * maxScale
	scaledH := img.Height * maxScale
	maxOffsetX := scaledW - frame.Width
	maxOffsetY := scaledH - frame.Height

	faces := cfg.Limit(req.Faces)
	_, hasFace := SelectFace(faces, cfg.MinConfidence)
	def := cfg.defaultOffsets()

	offsetX, offsetY := FaceOffset(faces, cfg.MinConfidence, maxScale, scaledW, scaledH, maxOffsetX, maxOffsetY, def)
	base := matrix.NewScale(maxScale, maxScale).PostTranslate(-offsetX, -offsetY)

	switch cfg.MatrixFlags.faceRule() {
	case faceNoFaceOnly:
		if !hasFace {
			return Result{End: OriginalMatrix(req.ScaleType, frame, img, req.Current)}, true
		}
	case faceIfFaceOnly:
		if hasFace {
			return Result{End: base}, true
		}
	}

	if !cfg.MatrixFlags.AllowsAspect(img) {
		return Result{End: base}, true
	}

	end := base
	if !isUnset(cfg.Scale) || cfg.TranslateX != 0 || cfg.TranslateY != 0 {
		scale := scaleOrOne(cfg.Scale)
		endScale := maxScale * scale
		endW := scaledW * scale
		endH := scaledH * scale

		endOffsetX, endOffsetY := FaceOffset(faces, cfg.MinConfidence, endScale, endW, endH,
			endW-frame.Width, endH-frame.Height, def)

		end = matrix.NewScale(endScale, endScale).PostTranslate(
			-endOffsetX+math.Abs(endW-frame.Width)*cfg.TranslateX,
			-endOffsetY+math.Abs(endH-frame.Height)*cfg.TranslateY)
	}

	if cfg.AnimationDuration <= 0 {
		return Result{End: end}, true
	}

	var start matrix.Matrix
	if isUnset(cfg.PreScale) && cfg.PreTranslateX == 0 && cfg.PreTranslateY == 0 {
		start = OriginalMatrix(req.ScaleType, frame, img, req.Current)
	} else {
		scale := scaleOrOne(cfg.PreScale)
		startW := scaledW * scale
		startH := scaledH * scale

		// Grow around the base crop rather than the image origin.
		startOffsetX := scaledW*(scale-1)/2 + offsetX
		startOffsetY := scaledH*(scale-1)/2 + offsetY

		start = matrix.NewScale(maxScale*scale, maxScale*scale).PostTranslate(
			-startOffsetX+math.Abs(startW-frame.Width)*cfg.PreTranslateX,
			-startOffsetY+math.Abs(startH-frame.Height)*cfg.PreTranslateY)
	}

	return Result{
		Start:    start,
		End:      end,
		Duration: cfg.AnimationDuration,
		Cyclic:   cfg.Cyclic,
	}, true
}
