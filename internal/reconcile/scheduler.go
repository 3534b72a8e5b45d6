package reconcile

import (
	"sync"
	"time"
)

// Scheduler runs a per-course task after a fixed delay on its own goroutine.
// Scheduling a course that already has a pending task restarts its delay, so
// bursts of loads collapse into one pass.
//
// Thread-safety: Scheduler is safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	delay  time.Duration
	run    func(course string)
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that calls run(course) delay after each
// Schedule.
func NewScheduler(delay time.Duration, run func(course string)) *Scheduler {
	return &Scheduler{
		delay:  delay,
		run:    run,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arranges a run for course. Returns false after Close.
func (s *Scheduler) Schedule(course string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if t, ok := s.timers[course]; ok && t.Stop() {
		s.wg.Done()
	}

	s.wg.Add(1)
	var t *time.Timer
	// The callback takes s.mu before reading t, and Schedule holds s.mu
	// until t is assigned.
	t = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		if s.timers[course] == t {
			delete(s.timers, course)
		}
		closed := s.closed
		s.mu.Unlock()

		if !closed {
			s.run(course)
		}
	})
	s.timers[course] = t
	return true
}

// Pending returns the number of courses waiting for a run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels pending runs and waits for running ones to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	for course, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, course)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
