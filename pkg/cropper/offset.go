package cropper

import (
	"math"

	"github.com/menta2k/cropmatrix/pkg/types"
)

// Where the chosen face midpoint lands in the frame, as a fraction of each axis.
const (
	facePositionRatioX = 0.5
	facePositionRatioY = 0.5
)

// Offsets are the fractions of the available over-scan used when no face
// drives the crop. 0.5 centers the image on that axis.
type Offsets struct {
	X float64
	Y float64
}

// DefaultOffsets centers the crop
var DefaultOffsets = Offsets{X: 0.5, Y: 0.5}

func (o Offsets) apply(maxOffsetX, maxOffsetY float64) (float64, float64) {
	return o.X * maxOffsetX, o.Y * maxOffsetY
}

// SelectFace returns the face with the highest confidence strictly above
// minConfidence. Ties keep the first face.
func SelectFace(faces []types.Face, minConfidence float64) (types.Face, bool) {
	var best types.Face
	found := false
	maxConfidence := minConfidence
	for _, face := range faces {
		if face.Confidence > maxConfidence {
			maxConfidence = face.Confidence
			best = face
			found = true
		}
	}
	return best, found
}

// FaceOffset returns how far the scaled image must shift left and up so the
// best face is centered in the frame. width and height are the scaled image
// size, maxOffset the scaled size minus the frame size. Offsets are clamped to
// [0, maxOffset] on axes with a non-negative maxOffset; a negative maxOffset
// leaves that axis unclamped. Without a qualifying face, or with unusable face
// geometry, the default offsets apply.
func FaceOffset(faces []types.Face, minConfidence, scaleFactor, width, height, maxOffsetX, maxOffsetY float64, def Offsets) (float64, float64) {
	best, ok := SelectFace(faces, minConfidence)
	if !ok {
		return def.apply(maxOffsetX, maxOffsetY)
	}

	midX, midY, ok := best.MidPoint()
	if !ok {
		return def.apply(maxOffsetX, maxOffsetY)
	}

	offsetX := midX*scaleFactor - (width-maxOffsetX)*facePositionRatioX
	offsetY := midY*scaleFactor - (height-maxOffsetY)*facePositionRatioY
	if math.IsNaN(offsetX) || math.IsNaN(offsetY) {
		return def.apply(maxOffsetX, maxOffsetY)
	}

	return clampOffset(offsetX, maxOffsetX), clampOffset(offsetY, maxOffsetY)
}

func clampOffset(offset, maxOffset float64) float64 {
	if maxOffset < 0 {
		return offset
	}
	return math.Min(math.Max(0, offset), maxOffset)
}
