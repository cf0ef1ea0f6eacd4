package processing

import (
	"fmt"
	"image"
	"image/color"

	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

// FrameRenderer is an off-screen render target: it records the transform set
// on every tick and rasterizes the current image through it on demand.
type FrameRenderer struct {
	proc      *Processor
	img       image.Image
	frame     types.Size
	bg        color.Color
	transform matrix.Matrix
	frames    int
}

// NewFrameRenderer creates a renderer for a frame of the given size
func NewFrameRenderer(proc *Processor, frame types.Size, bg color.Color) *FrameRenderer {
	if bg == nil {
		bg = color.Black
	}
	return &FrameRenderer{proc: proc, frame: frame, bg: bg, transform: matrix.Identity()}
}

// SetImage replaces the image being displayed
func (r *FrameRenderer) SetImage(img image.Image) {
	r.img = img
}

// SetFrame changes the target size
func (r *FrameRenderer) SetFrame(frame types.Size) {
	r.frame = frame
}

// SetTransform records the matrix for the next snapshot
func (r *FrameRenderer) SetTransform(m matrix.Matrix) {
	r.transform = m
	r.frames++
}

// Transform returns the last matrix set
func (r *FrameRenderer) Transform() matrix.Matrix {
	return r.transform
}

// Frames counts SetTransform calls
func (r *FrameRenderer) Frames() int {
	return r.frames
}

// Snapshot rasterizes the current image with the current transform
func (r *FrameRenderer) Snapshot() (*image.NRGBA, error) {
	if r.img == nil {
		return nil, fmt.Errorf("no image to render")
	}
	return r.proc.Render(r.img, r.frame, r.transform, r.bg)
}
