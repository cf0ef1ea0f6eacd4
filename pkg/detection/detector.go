// Package detection finds faces for the crop calculator. Detection can be
// slow, so callers run it off the render loop and cache results per image.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/cropmatrix/pkg/client"
	"github.com/menta2k/cropmatrix/pkg/processing"
	"github.com/menta2k/cropmatrix/pkg/types"
)

// DefaultMaxFaces bounds how many faces a detector reports
const DefaultMaxFaces = 4

// ErrNoClassifier is returned when a detector was built without its model
var ErrNoClassifier = errors.New("face classifier not initialized")

// FaceDetector returns the faces found in img, midpoints in img pixels
type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Face, error)
}

// FacePrompt asks a vision model for every face in the image
const FacePrompt = `You are a face locator.

Return JSON only:
{
  "faces": [
    {"confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), box x/y is the top-left corner.
- One entry per human face, most prominent first. Confidence in [0,1].
- Do not guess identities.
- If there is no face, return {"faces": [], "description": "no faces"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionOptions configure how images are sent to a vision model
type VisionOptions struct {
	Model    string
	Format   string
	MaxSize  int
	Quality  int
	MaxFaces int
}

// DefaultVisionOptions returns the settings used by the CLI
func DefaultVisionOptions() VisionOptions {
	return VisionOptions{
		Model:    "openbmb/minicpm-v4.5",
		Format:   "jpg",
		MaxSize:  1536,
		Quality:  85,
		MaxFaces: DefaultMaxFaces,
	}
}

// VisionDetector locates faces by prompting a vision model
type VisionDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	opts      VisionOptions
	log       logrus.FieldLogger
}

// NewVisionDetector creates a detector backed by a vision client
func NewVisionDetector(c client.VisionClient, opts VisionOptions, log logrus.FieldLogger) *VisionDetector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VisionDetector{
		client:    c,
		processor: processing.NewProcessor(),
		opts:      opts,
		log:       log,
	}
}

// Detect implements FaceDetector
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	imgB64, _, err := d.processor.PrepareImageForModel(img, d.opts.Format, d.opts.MaxSize, d.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	result, err := d.client.AnalyzeImage(ctx, d.opts.Model, FacePrompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("face analysis failed: %w", err)
	}

	faces := FacesFromResult(result, img.Bounds(), d.opts.MaxFaces)
	d.log.WithFields(logrus.Fields{
		"model":       d.opts.Model,
		"faces":       len(faces),
		"description": result.Description,
	}).Debug("Vision model face detection finished")
	return faces, nil
}

// FacesFromResult converts normalized model boxes to faces in image pixels,
// sorted by confidence and limited to maxFaces (non-positive keeps all).
func FacesFromResult(result *types.AnalysisResult, bounds image.Rectangle, maxFaces int) []types.Face {
	if result == nil {
		return nil
	}
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	faces := make([]types.Face, 0, len(result.Faces))
	for _, fb := range result.Faces {
		box := normalizeBox(fb.Box)
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		faces = append(faces, types.Face{
			X:          (box.X + box.W/2) * w,
			Y:          (box.Y + box.H/2) * h,
			Confidence: clamp(fb.Confidence, 0, 1),
			Bounds:     box,
		})
	}
	return limitFaces(faces, maxFaces)
}

func limitFaces(faces []types.Face, maxFaces int) []types.Face {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Confidence > faces[j].Confidence
	})
	if maxFaces > 0 && len(faces) > maxFaces {
		faces = faces[:maxFaces]
	}
	if len(faces) == 0 {
		return nil
	}
	return faces
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps a box inside the unit square
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}
