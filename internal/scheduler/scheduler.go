// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package scheduler runs the periodic ping tasks of connection supervisors
// and the one-shot reconnect tasks they dispatch.
//
// Ticker is the process-wide implementation. It is a suture.Service: it is
// started with the process tree and, when the tree shuts down, cancels every
// outstanding task and waits for running ones to return. Manual is a
// deterministic implementation for tests that only runs tasks when told to.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/opclink/internal/logging"
)

// Handle cancels a scheduled task. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Scheduler dispatches tasks on its own goroutines.
type Scheduler interface {
	// ScheduleRepeating runs task every interval until the handle is canceled.
	ScheduleRepeating(interval time.Duration, task func()) Handle

	// ScheduleOnce runs task once after delay unless the handle is canceled
	// first.
	ScheduleOnce(delay time.Duration, task func()) Handle
}

type noopHandle struct{}

func (noopHandle) Cancel() {}

// taskHandle is shared by repeating and one-shot Ticker tasks.
type taskHandle struct {
	once sync.Once
	done chan struct{}
}

func newTaskHandle() *taskHandle {
	return &taskHandle{done: make(chan struct{})}
}

func (h *taskHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}

// Ticker is a goroutine-per-task scheduler.
type Ticker struct {
	mu      sync.Mutex
	handles map[*taskHandle]struct{}
	closed  bool
	wg      sync.WaitGroup
	name    string
}

// NewTicker creates a running Ticker.
func NewTicker() *Ticker {
	return &Ticker{
		handles: make(map[*taskHandle]struct{}),
		name:    "scheduler",
	}
}

// track registers h, or reports false once the ticker is closed.
func (t *Ticker) track(h *taskHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.handles[h] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *Ticker) untrack(h *taskHandle) {
	t.mu.Lock()
	delete(t.handles, h)
	t.mu.Unlock()
	t.wg.Done()
}

// ScheduleRepeating implements Scheduler.
func (t *Ticker) ScheduleRepeating(interval time.Duration, task func()) Handle {
	if interval <= 0 {
		interval = time.Second
	}
	h := newTaskHandle()
	if !t.track(h) {
		return noopHandle{}
	}
	go func() {
		defer t.untrack(h)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-tk.C:
				// A cancel racing the tick wins.
				select {
				case <-h.done:
					return
				default:
				}
				runTask(task)
			}
		}
	}()
	return h
}

// ScheduleOnce implements Scheduler.
func (t *Ticker) ScheduleOnce(delay time.Duration, task func()) Handle {
	h := newTaskHandle()
	if !t.track(h) {
		return noopHandle{}
	}
	go func() {
		defer t.untrack(h)
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-h.done:
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-h.done:
				return
			default:
			}
		}
		runTask(task)
	}()
	return h
}

func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("panic", fmt.Sprint(r)).Msg("Scheduled task panicked")
		}
	}()
	task()
}

// Close cancels every task and waits for running tasks to return. Later
// Schedule calls return handles that do nothing.
func (t *Ticker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.wg.Wait()
		return
	}
	t.closed = true
	for h := range t.handles {
		h.Cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Active returns the number of tasks that have not finished yet.
func (t *Ticker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// Serve implements suture.Service. It blocks until ctx is canceled and then
// drains the scheduler.
func (t *Ticker) Serve(ctx context.Context) error {
	<-ctx.Done()
	t.Close()
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (t *Ticker) String() string {
	return t.name
}
