package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/cropmatrix/pkg/types"
)

// Default viewport sizes to compute crops for
var defaultFrames = []types.Size{
	types.NewSize(1080, 1920),
	types.NewSize(1200, 630),
	types.NewSize(1080, 1080),
	types.NewSize(400, 250),
}

// parseFrames reads a comma separated list such as "1080x1920,1200x630"
func parseFrames(s string) ([]types.Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultFrames, nil
	}

	var frames []types.Size
	for _, part := range strings.Split(s, ",") {
		w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(part)), "x")
		if !ok {
			return nil, fmt.Errorf("invalid frame %q, want WIDTHxHEIGHT", part)
		}
		width, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid frame width %q: %w", w, err)
		}
		height, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("invalid frame height %q: %w", h, err)
		}
		size := types.NewSize(width, height)
		if !size.Valid() {
			return nil, fmt.Errorf("frame %q must have positive sides", part)
		}
		frames = append(frames, size)
	}
	return frames, nil
}

func frameLabel(size types.Size) string {
	return fmt.Sprintf("%.0fx%.0f", size.Width, size.Height)
}
