// Package client defines the vision-model backends used to locate faces and
// the lenient JSON parsing shared by them.
package client

import (
	"context"

	"github.com/menta2k/cropmatrix/pkg/types"
)

// VisionClient sends an image and a prompt to a vision model
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
