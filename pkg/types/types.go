package types

import "math"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Size is a width/height pair in pixels, used for both frames and images
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewSize builds a Size from integer pixel dimensions
func NewSize(width, height int) Size {
	return Size{Width: float64(width), Height: float64(height)}
}

// Valid reports whether both dimensions can be used as divisors
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// IsSquare reports whether width equals height
func (s Size) IsSquare() bool {
	return s.Width == s.Height
}

// IsLandscape reports whether the size is strictly wider than tall
func (s Size) IsLandscape() bool {
	return s.Width > s.Height
}

// IsPortrait reports whether the size is strictly taller than wide
func (s Size) IsPortrait() bool {
	return s.Width < s.Height
}

// Face is a detected face: its midpoint in image pixels and a confidence in [0,1].
// Bounds is optional and only used for overlays.
type Face struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Bounds     Box     `json:"bounds"`
}

// MidPoint returns the face midpoint, or false when the geometry is unusable
func (f Face) MidPoint() (float64, float64, bool) {
	if !finite(f.X) || !finite(f.Y) {
		return 0, 0, false
	}
	return f.X, f.Y, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// FaceBox is a single face as reported by a vision model, normalized to [0,1]
type FaceBox struct {
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary   `json:"primary"`
	Faces       []FaceBox `json:"faces"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
}
