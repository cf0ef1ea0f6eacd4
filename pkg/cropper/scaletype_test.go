package cropper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

func TestOriginalMatrixFitCenterScenario(t *testing.T) {
	frame := types.Size{Width: 320, Height: 480}
	img := types.Size{Width: 200, Height: 100}

	got := OriginalMatrix(FitCenter, frame, img, matrix.Identity())
	assertMatrix(t, matrix.NewScale(1.6, 1.6).PostTranslate(0, 160), got)
}

func TestOriginalMatrixFitXYSquare(t *testing.T) {
	for _, side := range []float64{1, 37, 512, 4096} {
		s := types.Size{Width: side, Height: side}
		assert.Equal(t, matrix.Identity(), OriginalMatrix(FitXY, s, s, matrix.Identity()))
	}
}

func TestOriginalMatrixAspectMatch(t *testing.T) {
	for _, tc := range []struct{ frame, img types.Size }{
		{types.Size{Width: 320, Height: 480}, types.Size{Width: 160, Height: 240}},
		{types.Size{Width: 100, Height: 50}, types.Size{Width: 400, Height: 200}},
		{types.Size{Width: 300, Height: 300}, types.Size{Width: 300, Height: 300}},
	} {
		crop := OriginalMatrix(CenterCrop, tc.frame, tc.img, matrix.Identity())
		fit := OriginalMatrix(FitCenter, tc.frame, tc.img, matrix.Identity())
		assertMatrix(t, fit, crop)
	}
}

func TestOriginalMatrixPerType(t *testing.T) {
	frame := types.Size{Width: 320, Height: 480}
	img := types.Size{Width: 200, Height: 100}
	host := matrix.Matrix{2, 0, 5, 0, 3, 7}

	for _, tc := range []struct {
		scaleType ScaleType
		want      matrix.Matrix
	}{
		{Center, matrix.NewTranslate(60, 190)},
		{CenterCrop, matrix.NewScale(4.8, 4.8).PostTranslate((320-960)/2.0, 0)},
		{CenterInside, matrix.NewScale(1.6, 1.6).PostTranslate(0, 160)},
		{FitCenter, matrix.NewScale(1.6, 1.6).PostTranslate(0, 160)},
		{FitStart, matrix.NewScale(1.6, 1.6)},
		{FitEnd, matrix.NewScale(1.6, 1.6).PostTranslate(0, 320)},
		{FitXY, matrix.NewScale(1.6, 4.8)},
		{Matrix, host},
		{None, matrix.Identity()},
	} {
		got := OriginalMatrix(tc.scaleType, frame, img, host)
		assertMatrix(t, tc.want, got)
	}
}

func TestOriginalMatrixCenterInsideThreshold(t *testing.T) {
	frame := types.Size{Width: 320, Height: 480}

	// Both fit factors below 1: stays unscaled and centered.
	big := types.Size{Width: 1000, Height: 2000}
	assertMatrix(t, matrix.NewTranslate(-340, -760), OriginalMatrix(CenterInside, frame, big, matrix.Identity()))

	// Only one factor below 1: behaves like FitCenter.
	wide := types.Size{Width: 400, Height: 100}
	assertMatrix(t,
		OriginalMatrix(FitCenter, frame, wide, matrix.Identity()),
		OriginalMatrix(CenterInside, frame, wide, matrix.Identity()))
	assertMatrix(t, matrix.NewScale(0.8, 0.8).PostTranslate(0, 200), OriginalMatrix(CenterInside, frame, wide, matrix.Identity()))
}

func TestScaleTypeText(t *testing.T) {
	for st := Center; st <= None; st++ {
		parsed, err := ParseScaleType(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	parsed, err := ParseScaleType(" Center_Crop ")
	require.NoError(t, err)
	assert.Equal(t, CenterCrop, parsed)

	_, err = ParseScaleType("stretch")
	assert.Error(t, err)

	var payload struct {
		ScaleType ScaleType `json:"scale_type"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"scale_type":"fit_end"}`), &payload))
	assert.Equal(t, FitEnd, payload.ScaleType)
}
