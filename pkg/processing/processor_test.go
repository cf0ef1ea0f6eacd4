package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

var red = color.NRGBA{255, 0, 0, 255}

func createTestImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRenderPlacesImage(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(100, 50, red)

	// Fit-center into a square frame leaves bands above and below.
	out, err := p.Render(img, types.Size{Width: 100, Height: 100}, matrix.NewTranslate(0, 25), color.Black)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())
	assert.Equal(t, red, out.NRGBAAt(50, 50))
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, out.NRGBAAt(50, 5))
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, out.NRGBAAt(50, 95))
}

func TestRenderHonoursSourceOrigin(t *testing.T) {
	p := NewProcessor()
	full := createTestImage(40, 40, color.White)
	sub := full.SubImage(image.Rect(10, 10, 30, 30)).(*image.NRGBA)
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			sub.Set(x, y, red)
		}
	}

	out, err := p.Render(sub, types.Size{Width: 20, Height: 20}, matrix.Identity(), color.Black)
	require.NoError(t, err)
	assert.Equal(t, red, out.NRGBAAt(10, 10))
}

func TestRenderInvalidFrame(t *testing.T) {
	_, err := NewProcessor().Render(createTestImage(4, 4, red), types.Size{}, matrix.Identity(), color.Black)
	assert.Error(t, err)
}

func TestVisibleRect(t *testing.T) {
	// scale 2, shifted up 50: a 400x300 frame shows image rows 25..175
	r, ok := VisibleRect(types.Size{Width: 400, Height: 300}, matrix.NewScale(2, 2).PostTranslate(0, -50))
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 25, 200, 175), r)

	_, ok = VisibleRect(types.Size{Width: 400, Height: 300}, matrix.NewScale(0, 0))
	assert.False(t, ok)
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(400, 200, red)

	b64, ratio, err := p.PrepareImageForModel(img, "png", 100, 85)
	require.NoError(t, err)
	assert.Equal(t, 4.0, ratio)

	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())

	_, ratio, err = p.PrepareImageForModel(img, "jpg", 0, 85)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(8, 6, red)))

	img, err := NewProcessor().DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = NewProcessor().DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 200, color.White)
	faces := []types.Face{{X: 100, Y: 60, Confidence: 0.9, Bounds: types.Box{X: 0.4, Y: 0.2, W: 0.2, H: 0.2}}}

	out := p.CreateDebugOverlay(img, faces, types.Size{Width: 400, Height: 300}, matrix.NewScale(2, 2).PostTranslate(0, -50))
	nrgba, ok := out.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, nrgba.NRGBAAt(100, 60), "midpoint cross")
	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, nrgba.NRGBAAt(80, 40), "face box corner")
	assert.Equal(t, color.NRGBA{255, 204, 0, 255}, nrgba.NRGBAAt(5, 25), "visible frame edge")
	// source untouched
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, img.NRGBAAt(100, 60))
}

func TestFrameRenderer(t *testing.T) {
	r := NewFrameRenderer(NewProcessor(), types.Size{Width: 10, Height: 10}, nil)
	_, err := r.Snapshot()
	assert.Error(t, err)

	r.SetImage(createTestImage(10, 10, red))
	r.SetTransform(matrix.Identity())
	r.SetTransform(matrix.NewScale(2, 2))
	assert.Equal(t, 2, r.Frames())
	assert.Equal(t, matrix.NewScale(2, 2), r.Transform())

	out, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, red, out.NRGBAAt(5, 5))
}
