package cropper

import (
	"fmt"
	"strings"

	"github.com/menta2k/cropmatrix/pkg/types"
)

// Flags is a bitmask controlling when detection runs and when the crop matrix
// is applied.
type Flags uint8

const (
	// FlagLandscape activates for images wider than tall
	FlagLandscape Flags = 1 << iota
	// FlagPortrait activates for images taller than wide
	FlagPortrait
	// FlagSquare activates for images with equal sides
	FlagSquare
	// FlagNoFace shows the original placement when no face qualifies
	FlagNoFace
	// FlagIfFace keeps the face-centered crop as-is when a face qualifies
	FlagIfFace

	aspectMask = FlagLandscape | FlagPortrait | FlagSquare
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagLandscape, "landscape"},
	{FlagPortrait, "portrait"},
	{FlagSquare, "square"},
	{FlagNoFace, "no_face"},
	{FlagIfFace, "if_face"},
}

// Has reports whether every bit of other is set
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// AllowsAspect reports whether the aspect bits activate for an image of the
// given size. No aspect bit set means always active.
func (f Flags) AllowsAspect(image types.Size) bool {
	if f&aspectMask == 0 {
		return true
	}
	// Square first: the other two use strict comparisons.
	if image.IsSquare() {
		return f.Has(FlagSquare)
	}
	if image.IsLandscape() {
		return f.Has(FlagLandscape)
	}
	if image.IsPortrait() {
		return f.Has(FlagPortrait)
	}
	return false
}

type faceRule int

const (
	faceAny faceRule = iota
	faceNoFaceOnly
	faceIfFaceOnly
)

// Both or neither face bit means no face gating.
func (f Flags) faceRule() faceRule {
	noFace, ifFace := f.Has(FlagNoFace), f.Has(FlagIfFace)
	switch {
	case noFace && !ifFace:
		return faceNoFaceOnly
	case ifFace && !noFace:
		return faceIfFaceOnly
	}
	return faceAny
}

func (f Flags) String() string {
	if f == 0 {
		return ""
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlags reads a "|" or "," separated list such as "landscape|if_face"
func ParseFlags(s string) (Flags, error) {
	var f Flags
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})
	for _, field := range fields {
		key := strings.ToLower(field)
		found := false
		for _, fn := range flagNames {
			if fn.name == key {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", field)
		}
	}
	return f, nil
}

// MarshalText implements encoding.TextMarshaler
func (f Flags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Flags) UnmarshalText(text []byte) error {
	v, err := ParseFlags(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
