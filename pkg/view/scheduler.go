package view

import (
	"sync"

	"github.com/google/uuid"
)

// Job is a unit of work marshalled onto the render goroutine
type Job struct {
	ID   uuid.UUID
	Name string
	Run  func()
}

// Scheduler holds at most one pending job. Scheduling replaces whatever is
// pending, so a burst of notifications collapses into a single recompute.
type Scheduler struct {
	mu      sync.Mutex
	pending *Job
	wake    chan struct{}
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{wake: make(chan struct{}, 1)}
}

// Schedule replaces the pending job with fn and returns the new job's ID.
// It is safe to call from any goroutine.
func (s *Scheduler) Schedule(name string, fn func()) uuid.UUID {
	job := &Job{ID: uuid.New(), Name: name, Run: fn}

	s.mu.Lock()
	s.pending = job
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job.ID
}

// Wake is signalled whenever a job is scheduled, for hosts that block
// between frames.
func (s *Scheduler) Wake() <-chan struct{} {
	return s.wake
}

// Pending returns the pending job, if any, without running it
func (s *Scheduler) Pending() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Job{}, false
	}
	return *s.pending, true
}

// Cancel drops the pending job
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// RunPending runs the pending job on the calling goroutine. It reports
// whether a job ran.
func (s *Scheduler) RunPending() bool {
	s.mu.Lock()
	job := s.pending
	s.pending = nil
	s.mu.Unlock()

	if job == nil {
		return false
	}
	job.Run()
	return true
}
