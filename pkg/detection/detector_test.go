package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cropmatrix/pkg/types"
)

type fakeVisionClient struct {
	result *types.AnalysisResult
	err    error
	prompt string
	model  string
}

func (f *fakeVisionClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "", f.err
}

func (f *fakeVisionClient) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	f.prompt, f.model = prompt, model
	return f.result, f.err
}

type countingDetector struct {
	calls atomic.Int32
	faces []types.Face
	err   error
}

func (d *countingDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	d.calls.Add(1)
	return d.faces, d.err
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestFacesFromResult(t *testing.T) {
	result := &types.AnalysisResult{
		Faces: []types.FaceBox{
			{Confidence: 0.4, Box: types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}},
			{Confidence: 0.9, Box: types.Box{X: 0.5, Y: 0.5, W: 0.2, H: 0.4}},
			{Confidence: 0.8, Box: types.Box{X: 0.3, Y: 0.3, W: 0, H: 0.1}},
			{Confidence: 1.7, Box: types.Box{X: 0.9, Y: 0.9, W: 0.5, H: 0.5}},
		},
	}

	faces := FacesFromResult(result, image.Rect(0, 0, 200, 100), 0)
	require.Len(t, faces, 3, "zero-width box is dropped")

	assert.Equal(t, 1.0, faces[0].Confidence, "confidence is clamped")
	assert.InDelta(t, 190, faces[0].X, 1e-9, "box is clipped to the image before taking the midpoint")
	assert.InDelta(t, 95, faces[0].Y, 1e-9)

	assert.Equal(t, 0.9, faces[1].Confidence)
	assert.InDelta(t, 120, faces[1].X, 1e-9)
	assert.InDelta(t, 70, faces[1].Y, 1e-9)

	assert.Equal(t, 0.4, faces[2].Confidence)
}

func TestFacesFromResultLimit(t *testing.T) {
	result := &types.AnalysisResult{}
	for i := 0; i < 6; i++ {
		result.Faces = append(result.Faces, types.FaceBox{
			Confidence: float64(i) / 10,
			Box:        types.Box{X: 0.1, Y: 0.1, W: 0.1, H: 0.1},
		})
	}
	faces := FacesFromResult(result, image.Rect(0, 0, 10, 10), 2)
	require.Len(t, faces, 2)
	assert.Equal(t, 0.5, faces[0].Confidence)
	assert.Equal(t, 0.4, faces[1].Confidence)

	assert.Nil(t, FacesFromResult(nil, image.Rect(0, 0, 10, 10), 2))
	assert.Nil(t, FacesFromResult(&types.AnalysisResult{}, image.Rect(0, 0, 10, 10), 2))
}

func TestVisionDetector(t *testing.T) {
	fake := &fakeVisionClient{result: &types.AnalysisResult{
		Faces: []types.FaceBox{{Confidence: 0.75, Box: types.Box{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}}},
	}}
	d := NewVisionDetector(fake, DefaultVisionOptions(), nil)

	faces, err := d.Detect(context.Background(), solid(40, 80, color.NRGBA{10, 20, 30, 255}))
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.InDelta(t, 20, faces[0].X, 1e-9)
	assert.InDelta(t, 50, faces[0].Y, 1e-9)
	assert.Equal(t, FacePrompt, fake.prompt)
	assert.Equal(t, DefaultVisionOptions().Model, fake.model)
}

func TestVisionDetectorError(t *testing.T) {
	boom := errors.New("boom")
	d := NewVisionDetector(&fakeVisionClient{err: boom}, DefaultVisionOptions(), nil)

	_, err := d.Detect(context.Background(), solid(4, 4, color.NRGBA{A: 255}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCascadeDetectorWithoutClassifier(t *testing.T) {
	var d *CascadeDetector
	_, err := d.Detect(context.Background(), solid(4, 4, color.NRGBA{A: 255}))
	assert.ErrorIs(t, err, ErrNoClassifier)
}

func TestCascadeConvert(t *testing.T) {
	d := &CascadeDetector{opts: DefaultCascadeOptions()}
	dets := []pigo.Detection{
		{Row: 50, Col: 100, Scale: 40, Q: 30},
		{Row: 10, Col: 10, Scale: 10, Q: 2},
		{Row: 80, Col: 20, Scale: 20, Q: 250},
	}

	faces := d.convert(dets, 200, 100)
	require.Len(t, faces, 2, "detections under the quality threshold are dropped")

	assert.Equal(t, 1.0, faces[0].Confidence)
	assert.Equal(t, 20.0, faces[0].X)
	assert.Equal(t, 80.0, faces[0].Y)

	assert.InDelta(t, 0.3, faces[1].Confidence, 1e-6)
	assert.Equal(t, types.Box{X: 0.4, Y: 0.3, W: 0.2, H: 0.4}, faces[1].Bounds)
}

func TestEvenWidth(t *testing.T) {
	assert.Equal(t, image.Rect(0, 0, 6, 3), evenWidth(solid(7, 3, color.NRGBA{A: 255})).Bounds())
	assert.Equal(t, image.Rect(0, 0, 8, 3), evenWidth(solid(8, 3, color.NRGBA{A: 255})).Bounds())
}
