package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// fakeScheduler is a manual AfterFunc: callbacks run only when fired.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTimer{s: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns the number of timers neither stopped nor fired.
func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// FireNext runs the oldest pending timer and reports whether there was one.
func (s *fakeScheduler) FireNext() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// Delays returns the delay of every timer scheduled so far.
func (s *fakeScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

// Timers returns every timer scheduled so far.
func (s *fakeScheduler) Timers() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*fakeTimer(nil), s.timers...)
}

var errDialRefused = errors.New("connection refused")

// failingDialer counts dials per scope and always fails.
type failingDialer struct {
	mu    sync.Mutex
	dials map[string]int
}

func newFailingDialer() *failingDialer {
	return &failingDialer{dials: make(map[string]int)}
}

func (d *failingDialer) Dial(_ context.Context, scope string) (*websocket.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials[scope]++
	return nil, errDialRefused
}

func (d *failingDialer) Dials(scope string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dials[scope]
}

// recorder collects values passed to callbacks from other goroutines.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
