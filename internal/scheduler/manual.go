// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler that never runs anything on its own. Tick runs every
// live repeating task once; RunPending runs queued one-shot tasks. It lets
// tests step ping cycles deterministically.
type Manual struct {
	mu        sync.Mutex
	repeating []*manualTask
	pending   []*manualTask
}

type manualTask struct {
	mu       sync.Mutex
	task     func()
	canceled bool
}

func (m *manualTask) Cancel() {
	m.mu.Lock()
	m.canceled = true
	m.mu.Unlock()
}

func (m *manualTask) live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.canceled
}

// NewManual creates an empty Manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

// ScheduleRepeating implements Scheduler. The interval is ignored.
func (s *Manual) ScheduleRepeating(_ time.Duration, task func()) Handle {
	t := &manualTask{task: task}
	s.mu.Lock()
	s.repeating = append(s.repeating, t)
	s.mu.Unlock()
	return t
}

// ScheduleOnce implements Scheduler. The delay is ignored.
func (s *Manual) ScheduleOnce(_ time.Duration, task func()) Handle {
	t := &manualTask{task: task}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	return t
}

// Tick runs each live repeating task once.
func (s *Manual) Tick() {
	s.mu.Lock()
	tasks := make([]*manualTask, 0, len(s.repeating))
	live := s.repeating[:0]
	for _, t := range s.repeating {
		if t.live() {
			tasks = append(tasks, t)
			live = append(live, t)
		}
	}
	s.repeating = live
	s.mu.Unlock()

	for _, t := range tasks {
		if t.live() {
			t.task()
		}
	}
}

// RunPending runs queued one-shot tasks until the queue is empty, including
// tasks queued by the tasks themselves. It returns how many ran.
func (s *Manual) RunPending() int {
	ran := 0
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return ran
		}
		t := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if t.live() {
			t.task()
			ran++
		}
	}
}

// Pending returns the number of queued, uncanceled one-shot tasks.
func (s *Manual) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if t.live() {
			n++
		}
	}
	return n
}

// Repeating returns the number of live repeating tasks.
func (s *Manual) Repeating() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.repeating {
		if t.live() {
			n++
		}
	}
	return n
}
