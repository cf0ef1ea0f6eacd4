package animation

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Interpolator warps the time axis: it maps the elapsed fraction in [0,1)
// to the blend fraction used between the start and end coefficients.
type Interpolator func(fraction float64) float64

// Step never advances, so the start transform is held for the whole
// duration and the end transform appears when it elapses.
func Step(float64) float64 {
	return 0
}

// Linear blends at a constant rate
func Linear(fraction float64) float64 {
	return fraction
}

// AccelerateDecelerate starts and ends slowly, speeding up in the middle
func AccelerateDecelerate(fraction float64) float64 {
	return math.Cos((fraction+1)*math.Pi)/2 + 0.5
}

// Accelerate starts slowly and speeds up. A factor of 1 gives a parabola.
func Accelerate(factor float64) Interpolator {
	return func(fraction float64) float64 {
		if factor == 1 {
			return fraction * fraction
		}
		return math.Pow(fraction, 2*factor)
	}
}

// Decelerate starts fast and slows down. A factor of 1 gives an upside-down parabola.
func Decelerate(factor float64) Interpolator {
	return func(fraction float64) float64 {
		if factor == 1 {
			return 1 - (1-fraction)*(1-fraction)
		}
		return 1 - math.Pow(1-fraction, 2*factor)
	}
}

var named = map[string]Interpolator{
	"step":                  Step,
	"linear":                Linear,
	"accelerate_decelerate": AccelerateDecelerate,
	"accelerate":            Accelerate(1),
	"decelerate":            Decelerate(1),
}

// Lookup returns the interpolator registered under name. An empty name
// resolves to nil, which makes an Animator jump to the end matrix.
func Lookup(name string) (Interpolator, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, nil
	}
	if fn, ok := named[key]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown interpolator %q (known: %s)", name, strings.Join(Names(), ", "))
}

// Names lists the interpolators accepted by Lookup
func Names() []string {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
