package view

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cropmatrix/pkg/animation"
	"github.com/menta2k/cropmatrix/pkg/cropper"
	"github.com/menta2k/cropmatrix/pkg/detection"
	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func assertMatrix(t *testing.T, want, got matrix.Matrix) {
	t.Helper()
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}

type recordingRenderer struct {
	calls int
	last  matrix.Matrix
}

func (r *recordingRenderer) SetTransform(m matrix.Matrix) {
	r.calls++
	r.last = m
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type stubDetector struct {
	calls atomic.Int32
	faces []types.Face
	err   error
}

func (d *stubDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	d.calls.Add(1)
	return d.faces, d.err
}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func blank(w, h int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, w, h))
}

var (
	// 400x300 frame around a 200x200 image: max scale 2, over-scan (0, 100).
	frame = types.Size{Width: 400, Height: 300}
	// a face high in the image pulls the crop to the top edge
	topFace = types.Face{X: 100, Y: 30, Confidence: 0.9}
)

func newController(t *testing.T, r Renderer, opts Options) (*Controller, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1000, 0)}
	opts.Clock = clock.Now
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	c := NewController(r, opts)
	t.Cleanup(c.Close)
	return c, clock
}

func TestControllerInitialFrame(t *testing.T) {
	r := &recordingRenderer{}
	c, _ := newController(t, r, Options{})

	assertMatrix(t, matrix.Identity(), c.Frame())
	assert.Equal(t, 1, r.calls)
}

func TestControllerFallsBackToScaleType(t *testing.T) {
	r := &recordingRenderer{}
	c, _ := newController(t, r, Options{ScaleType: cropper.FitCenter})

	c.ContentChanged(blank(200, 100))
	c.ViewportResized(types.Size{Width: 320, Height: 480})
	c.Frame()

	assertMatrix(t, matrix.NewScale(1.6, 1.6).PostTranslate(0, 160), r.last)
	assert.Equal(t, 1, r.calls)
}

func TestControllerSupersedesPendingWork(t *testing.T) {
	c, _ := newController(t, &recordingRenderer{}, Options{})

	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)
	c.SetScaleType(cropper.CenterCrop)

	job, ok := c.Scheduler().Pending()
	require.True(t, ok)
	assert.Equal(t, "scale_type", job.Name)

	assert.True(t, c.Scheduler().RunPending())
	assert.False(t, c.Scheduler().RunPending())
}

func TestControllerSettersOnlyRecomputeOnChange(t *testing.T) {
	c, _ := newController(t, &recordingRenderer{}, Options{})
	sched := c.Scheduler()
	pending := func() bool {
		_, ok := sched.Pending()
		sched.Cancel()
		return ok
	}

	c.SetMinConfidence(0)
	c.SetMaxFaces(cropper.DefaultConfig().MaxFaces)
	c.SetScale(nil)
	c.SetTranslate(0, 0)
	c.ResetOffsets()
	c.SetInterpolator(nil)
	c.SetScaleType(cropper.Center)
	assert.False(t, pending(), "unchanged values do not schedule work")

	c.SetOffsets(0.5, 0.5)
	assert.True(t, pending())
	c.SetOffsets(-0.5, 0.5)
	assert.False(t, pending(), "offsets are normalized before comparing")

	c.SetScale(cropper.Float(1.5))
	assert.True(t, pending())
	c.SetScale(cropper.Float(1.5))
	assert.False(t, pending())

	c.SetInterpolator(animation.Linear)
	assert.True(t, pending())
	c.SetInterpolator(animation.Linear)
	assert.False(t, pending())

	c.SetFaces(nil)
	assert.True(t, pending(), "faces always recompute")
}

func TestControllerDegenerateViewportKeepsTransform(t *testing.T) {
	r := &recordingRenderer{}
	c, _ := newController(t, r, Options{ScaleType: cropper.FitCenter})

	c.ContentChanged(blank(200, 100))
	c.ViewportResized(types.Size{Width: 320, Height: 480})
	want := c.Frame()

	c.ViewportResized(types.Size{})
	assertMatrix(t, want, c.Frame())

	c.ViewportResized(types.Size{Width: 200, Height: 100})
	assertMatrix(t, matrix.Identity(), c.Frame())
}

func TestControllerClearContent(t *testing.T) {
	r := &recordingRenderer{}
	c, _ := newController(t, r, Options{ScaleType: cropper.FitCenter})

	c.ContentChanged(blank(200, 100))
	c.ViewportResized(types.Size{Width: 320, Height: 480})
	c.Frame()

	c.ContentChanged(nil)
	assertMatrix(t, matrix.Identity(), r.last)
	assertMatrix(t, matrix.Identity(), c.Frame())
}

func TestControllerSyncDetection(t *testing.T) {
	det := &stubDetector{faces: []types.Face{topFace}}
	cfg := cropper.DefaultConfig()
	cfg.AutoFaceDetection = true

	c, _ := newController(t, &recordingRenderer{}, Options{
		Config:        &cfg,
		Detector:      det,
		SyncDetection: true,
	})
	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)

	assertMatrix(t, matrix.NewScale(2, 2), c.Frame())
	assert.Equal(t, int32(1), det.calls.Load())
	assert.Equal(t, []types.Face{topFace}, c.Faces())
}

func TestControllerDetectorErrorMeansNoFaces(t *testing.T) {
	det := &stubDetector{err: errors.New("model offline")}
	cfg := cropper.DefaultConfig()
	cfg.AutoFaceDetection = true

	c, _ := newController(t, &recordingRenderer{}, Options{
		Config:        &cfg,
		Detector:      det,
		SyncDetection: true,
	})
	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)

	assertMatrix(t, matrix.NewScale(2, 2).PostTranslate(0, -50), c.Frame())
}

func TestControllerDetectionFlagsGateAspect(t *testing.T) {
	det := &stubDetector{faces: []types.Face{topFace}}
	cfg := cropper.DefaultConfig()
	cfg.AutoFaceDetection = true
	cfg.DetectionFlags = cropper.FlagPortrait

	c, _ := newController(t, &recordingRenderer{}, Options{
		Config:        &cfg,
		Detector:      det,
		SyncDetection: true,
	})
	c.ContentChanged(blank(200, 100))
	c.ViewportResized(frame)
	c.Frame()
	assert.Equal(t, int32(0), det.calls.Load())

	c.SetDetectionFlags(cropper.FlagPortrait | cropper.FlagLandscape)
	c.Frame()
	assert.Equal(t, int32(1), det.calls.Load())
}

func TestControllerAsyncDetection(t *testing.T) {
	det := &stubDetector{faces: []types.Face{topFace}}
	cfg := cropper.DefaultConfig()
	cfg.AutoFaceDetection = true

	c, _ := newController(t, &recordingRenderer{}, Options{Config: &cfg, Detector: det})
	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)
	c.Frame()

	want := matrix.NewScale(2, 2)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-c.Scheduler().Wake():
			if c.Frame().ApproxEqual(want, 1e-9) {
				assert.Equal(t, []types.Face{topFace}, c.Faces())
				return
			}
		case <-deadline:
			t.Fatal("detected faces never reached the render loop")
		}
	}
}

func TestControllerUsesCachedFacesWithoutAutoDetection(t *testing.T) {
	inner := &stubDetector{faces: []types.Face{topFace}}
	cached := detection.NewCachedDetector(inner, nil)
	img := blank(200, 200)
	_, err := cached.Detect(context.Background(), img)
	require.NoError(t, err)

	c, _ := newController(t, &recordingRenderer{}, Options{Detector: cached})
	c.ContentChanged(img)

	assert.Equal(t, []types.Face{topFace}, c.Faces())
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestControllerAnimates(t *testing.T) {
	cfg := cropper.DefaultConfig()
	cfg.TranslateY = 0.5
	cfg.AnimationDuration = time.Second
	cfg.Interpolator = animation.Linear

	c, clock := newController(t, &recordingRenderer{}, Options{Config: &cfg, ScaleType: cropper.FitCenter})
	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)

	assertMatrix(t, matrix.NewScale(1.5, 1.5).PostTranslate(50, 0), c.Frame())
	assert.True(t, c.Animating())

	clock.Advance(500 * time.Millisecond)
	assertMatrix(t, matrix.NewScale(1.75, 1.75).PostTranslate(25, 0), c.Frame())

	clock.Advance(500 * time.Millisecond)
	assertMatrix(t, matrix.NewScale(2, 2), c.Frame())
	assert.False(t, c.Animating())

	clock.Advance(time.Hour)
	assertMatrix(t, matrix.NewScale(2, 2), c.Frame())
}

func TestControllerAnimationWithoutInterpolatorShowsEnd(t *testing.T) {
	det := &stubDetector{faces: []types.Face{topFace}}
	cfg := cropper.DefaultConfig()
	cfg.AutoFaceDetection = true
	cfg.AnimationDuration = time.Second

	c, clock := newController(t, &recordingRenderer{}, Options{
		Config:        &cfg,
		ScaleType:     cropper.FitCenter,
		Detector:      det,
		SyncDetection: true,
	})
	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)

	assertMatrix(t, matrix.NewScale(2, 2), c.Frame())
	assert.True(t, c.Animating())

	clock.Advance(500 * time.Millisecond)
	assertMatrix(t, matrix.NewScale(2, 2), c.Frame())

	clock.Advance(500 * time.Millisecond)
	assertMatrix(t, matrix.NewScale(2, 2), c.Frame())
	assert.False(t, c.Animating())
}

func TestControllerCyclicAnimation(t *testing.T) {
	cfg := cropper.DefaultConfig()
	cfg.TranslateY = 0.5
	cfg.AnimationDuration = time.Second
	cfg.Cyclic = true
	cfg.Interpolator = animation.Linear

	c, clock := newController(t, &recordingRenderer{}, Options{Config: &cfg, ScaleType: cropper.FitCenter})
	c.ContentChanged(blank(200, 200))
	c.ViewportResized(frame)
	c.Frame()

	clock.Advance(250 * time.Millisecond)
	quarter := c.Frame()

	clock.Advance(3 * time.Second)
	assertMatrix(t, quarter, c.Frame())
	assert.True(t, c.Animating())
}
