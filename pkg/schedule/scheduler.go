// Package schedule runs delayed tasks grouped by key. All tasks under a
// key can be cancelled at once, which is how a call session drops its
// pending hangup and door-open timers on teardown.
package schedule

import (
	"sync"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
)

// Scheduler is a delay queue keyed by an owner id (the session id).
type Scheduler struct {
	clock clock.Clock

	mu     sync.Mutex
	nextID uint64
	tasks  map[string]map[uint64]*clock.Timer
	closed bool
}

// New creates a scheduler driven by clk.
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clock: clk,
		tasks: make(map[string]map[uint64]*clock.Timer),
	}
}

// After runs fn once d has elapsed unless the key is cancelled first.
// The returned function cancels just this task.
func (s *Scheduler) After(key string, d time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.nextID++
	id := s.nextID
	group := s.tasks[key]
	if group == nil {
		group = make(map[uint64]*clock.Timer)
		s.tasks[key] = group
	}
	group[id] = nil
	s.mu.Unlock()

	timer := s.clock.AfterFunc(d, func() {
		if s.take(key, id) {
			fn()
		}
	})

	s.mu.Lock()
	if g, ok := s.tasks[key]; ok {
		if _, pending := g[id]; pending {
			g[id] = timer
		}
	}
	s.mu.Unlock()

	return func() {
		if s.take(key, id) && timer != nil {
			timer.Stop()
		}
	}
}

// take removes a pending task and reports whether it was still pending.
func (s *Scheduler) take(key string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.tasks[key]
	if !ok {
		return false
	}
	if _, ok := group[id]; !ok {
		return false
	}
	delete(group, id)
	if len(group) == 0 {
		delete(s.tasks, key)
	}
	return true
}

// Cancel drops every pending task for key and returns how many were dropped.
func (s *Scheduler) Cancel(key string) int {
	s.mu.Lock()
	group := s.tasks[key]
	delete(s.tasks, key)
	s.mu.Unlock()

	for _, t := range group {
		if t != nil {
			t.Stop()
		}
	}
	return len(group)
}

// Pending returns the number of tasks waiting under key.
func (s *Scheduler) Pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks[key])
}

// Close cancels everything and rejects further tasks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	all := s.tasks
	s.tasks = make(map[string]map[uint64]*clock.Timer)
	s.mu.Unlock()

	for _, group := range all {
		for _, t := range group {
			if t != nil {
				t.Stop()
			}
		}
	}
}
