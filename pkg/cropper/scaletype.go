package cropper

import (
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

// ScaleType names how an image is fitted into a frame when no crop applies
type ScaleType int

const (
	Center ScaleType = iota
	CenterCrop
	CenterInside
	FitCenter
	FitStart
	FitEnd
	FitXY
	Matrix
	None
)

var scaleTypeNames = [...]string{
	Center:       "center",
	CenterCrop:   "center_crop",
	CenterInside: "center_inside",
	FitCenter:    "fit_center",
	FitStart:     "fit_start",
	FitEnd:       "fit_end",
	FitXY:        "fit_xy",
	Matrix:       "matrix",
	None:         "none",
}

func (s ScaleType) String() string {
	if s < 0 || int(s) >= len(scaleTypeNames) {
		return fmt.Sprintf("ScaleType(%d)", int(s))
	}
	return scaleTypeNames[s]
}

// ParseScaleType accepts the names printed by String, case-insensitively
func ParseScaleType(name string) (ScaleType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range scaleTypeNames {
		if n == key {
			return ScaleType(i), nil
		}
	}
	return FitCenter, fmt.Errorf("unknown scale type %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (s ScaleType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *ScaleType) UnmarshalText(text []byte) error {
	v, err := ParseScaleType(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// OriginalMatrix returns the non-cropping placement for scaleType. current is
// the host's own matrix, returned verbatim for the Matrix scale type. Frame and
// image must be valid; callers check before dividing.
func OriginalMatrix(scaleType ScaleType, frame, image types.Size, current matrix.Matrix) matrix.Matrix {
	fitH := frame.Width / image.Width
	fitV := frame.Height / image.Height
	minScale := math.Min(fitH, fitV)

	switch scaleType {
	case Center:
		return centered(frame, image)

	case CenterCrop:
		maxScale := math.Max(fitH, fitV)
		return matrix.NewScale(maxScale, maxScale).PostTranslate(
			(frame.Width-image.Width*maxScale)/2,
			(frame.Height-image.Height*maxScale)/2)

	case CenterInside:
		// Only shrinks: an image that would need upscaling stays at its own size.
		if math.Max(fitH, fitV) < 1 {
			return centered(frame, image)
		}
		fallthrough

	case FitCenter:
		return matrix.NewScale(minScale, minScale).PostTranslate(
			(frame.Width-image.Width*minScale)/2,
			(frame.Height-image.Height*minScale)/2)

	case FitStart:
		return matrix.NewScale(minScale, minScale)

	case FitEnd:
		return matrix.NewScale(minScale, minScale).PostTranslate(
			frame.Width-image.Width*minScale,
			frame.Height-image.Height*minScale)

	case FitXY:
		return matrix.NewScale(fitH, fitV)

	case Matrix:
		return current
	}
	return matrix.Identity()
}

func centered(frame, image types.Size) matrix.Matrix {
	return matrix.NewTranslate((frame.Width-image.Width)/2, (frame.Height-image.Height)/2)
}
