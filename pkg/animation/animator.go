// Package animation interpolates between two affine transforms over time.
//
// An Animator is owned by a single render loop. Start and Tick must be
// called from that loop; nothing here is safe for concurrent use.
package animation

import (
	"time"

	"github.com/menta2k/cropmatrix/pkg/matrix"
)

// State of an Animator
type State int

const (
	// Idle means no animation was started; Tick returns the committed matrix.
	Idle State = iota
	// Running means Tick interpolates between start and end.
	Running
	// Settled means a non-cyclic animation finished and is frozen on its end matrix.
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// Animator is a time-driven state machine blending a start matrix into an end matrix.
type Animator struct {
	interpolator Interpolator

	state     State
	current   matrix.Matrix
	start     matrix.Matrix
	end       matrix.Matrix
	startTime time.Time
	duration  time.Duration
	cyclic    bool
}

// New creates an idle Animator showing the identity transform. With a nil
// interpolator every animation jumps straight to its end matrix.
func New(interpolator Interpolator) *Animator {
	a := &Animator{current: matrix.Identity()}
	a.SetInterpolator(interpolator)
	return a
}

// SetInterpolator replaces the time warp used by subsequent ticks. nil
// disables blending.
func (a *Animator) SetInterpolator(interpolator Interpolator) {
	a.interpolator = interpolator
}

// Set commits m without animating and returns the Animator to Idle
func (a *Animator) Set(m matrix.Matrix) {
	a.state = Idle
	a.current = m
}

// Start commits start as the visible transform and begins blending toward
// end. A non-positive duration commits end immediately. Without an
// interpolator end is committed at once but the run still lasts duration.
func (a *Animator) Start(start, end matrix.Matrix, duration time.Duration, cyclic bool, now time.Time) {
	if duration <= 0 {
		a.start, a.end = end, end
		a.current = end
		a.state = Settled
		return
	}
	a.start = start
	a.end = end
	a.current = start
	if a.interpolator == nil {
		a.current = end
	}
	a.startTime = now
	a.duration = duration
	a.cyclic = cyclic
	a.state = Running
}

// Tick returns the transform to draw at now. A cyclic run that overshoots
// its period keeps the remainder of the overshoot instead of snapping to end.
func (a *Animator) Tick(now time.Time) matrix.Matrix {
	if a.state != Running || now.Before(a.startTime) {
		return a.current
	}

	elapsed := now.Sub(a.startTime)
	if elapsed < a.duration {
		a.current = a.blend(elapsed)
		return a.current
	}

	if !a.cyclic {
		a.state = Settled
		a.current = a.end
		return a.current
	}

	// Re-anchor on whole periods so the phase does not drift with tick jitter.
	periods := elapsed / a.duration
	a.startTime = a.startTime.Add(periods * a.duration)
	if rem := elapsed - periods*a.duration; rem > 0 {
		a.current = a.blend(rem)
	} else {
		a.current = a.end
	}
	return a.current
}

func (a *Animator) blend(elapsed time.Duration) matrix.Matrix {
	if a.interpolator == nil {
		return a.end
	}
	fraction := float64(elapsed) / float64(a.duration)
	return a.start.Lerp(a.end, a.interpolator(fraction))
}

// State reports the current state
func (a *Animator) State() State {
	return a.state
}

// Current returns the last committed or computed matrix
func (a *Animator) Current() matrix.Matrix {
	return a.current
}

// StartTime returns when the current period began
func (a *Animator) StartTime() time.Time {
	return a.startTime
}

// Endpoints returns the start and end matrices of the last animation
func (a *Animator) Endpoints() (matrix.Matrix, matrix.Matrix) {
	return a.start, a.end
}
