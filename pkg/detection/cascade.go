package detection

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/cropmatrix/pkg/types"
)

// CascadeOptions tune the pigo cascade run
type CascadeOptions struct {
	MinSize          int
	MaxSize          int
	ShiftFactor      float64
	ScaleFactor      float64
	IoUThreshold     float64
	QualityThreshold float32
	MaxFaces         int
}

// DefaultCascadeOptions mirror pigo's recommended settings for photos
func DefaultCascadeOptions() CascadeOptions {
	return CascadeOptions{
		MinSize:          20,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
		MaxFaces:         DefaultMaxFaces,
	}
}

// CascadeDetector runs a pigo pixel-intensity cascade locally
type CascadeDetector struct {
	classifier *pigo.Pigo
	opts       CascadeOptions
	log        logrus.FieldLogger
}

// LoadCascadeDetector reads a pigo cascade file (such as "facefinder")
func LoadCascadeDetector(path string, opts CascadeOptions, log logrus.FieldLogger) (*CascadeDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewCascadeDetector(data, opts, log)
}

// NewCascadeDetector unpacks cascade data
func NewCascadeDetector(cascade []byte, opts CascadeOptions, log logrus.FieldLogger) (*CascadeDetector, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	log.WithFields(logrus.Fields{
		"min_size":          opts.MinSize,
		"quality_threshold": opts.QualityThreshold,
	}).Debug("Pigo face detector initialized")
	return &CascadeDetector{classifier: classifier, opts: opts, log: log}, nil
}

// Detect implements FaceDetector
func (d *CascadeDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if d == nil || d.classifier == nil {
		return nil, ErrNoClassifier
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := evenWidth(img)
	bounds := src.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()
	if cols <= 0 || rows <= 0 {
		return nil, nil
	}

	params := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     d.opts.MaxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)

	faces := d.convert(dets, float64(cols), float64(rows))
	d.log.WithFields(logrus.Fields{
		"raw":   len(dets),
		"faces": len(faces),
	}).Debug("Cascade face detection finished")
	return faces, nil
}

func (d *CascadeDetector) convert(dets []pigo.Detection, w, h float64) []types.Face {
	faces := make([]types.Face, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.opts.QualityThreshold {
			continue
		}
		radius := float64(det.Scale) / 2
		cx, cy := float64(det.Col), float64(det.Row)
		faces = append(faces, types.Face{
			X:          cx,
			Y:          cy,
			Confidence: clamp(float64(det.Q)/100, 0, 1),
			Bounds: normalizeBox(types.Box{
				X: (cx - radius) / w,
				Y: (cy - radius) / h,
				W: 2 * radius / w,
				H: 2 * radius / h,
			}),
		})
	}
	return limitFaces(faces, d.opts.MaxFaces)
}

// evenWidth drops the last column of odd-width images; the scan stride
// assumes an even row length.
func evenWidth(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx()&1 == 0 {
		return imaging.Clone(img)
	}
	return imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X-1, b.Max.Y))
}
