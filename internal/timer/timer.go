// Package timer implements the single-process alarm wheel spec.md §4.10
// describes: a sorted list of expiring callbacks, the soonest of which
// drives the next wake-up.
//
// The original design blocks SIGALRM around list mutation and skips
// blocking when already inside the handler. Go has no analogue of
// per-process alarm(2)/SIGALRM, and a goroutine-based runtime makes one
// unnecessary: this realization uses a mutex-guarded min-heap plus a single
// time.Timer re-armed to the heap's minimum after every mutation, with
// firing done on the timer's own goroutine. That goroutine never re-enters
// the mutation lock it already holds while firing, which is the Go
// equivalent of "skip blocking if already inside the handler." Per-pid
// alarm ownership has no analogue either: each OS process spawned by
// internal/workerpool gets its own independent Wheel, so "alarms inherited
// from the parent are dropped on fork" is true by construction — nothing
// is inherited, because nothing is shared across the exec-based spawn.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Alarm is a scheduled callback. Owners hold the returned Alarm to Cancel
// it before it fires.
type Alarm struct {
	expiry time.Time
	cb     func()
	index  int // heap index, maintained by container/heap
	fired  bool
	cancelled bool
}

// Wheel is a single process's alarm wheel. The zero value is ready to use.
type Wheel struct {
	mu    sync.Mutex
	heap  alarmHeap
	timer *time.Timer
}

// New returns an empty Wheel.
func New() *Wheel { return &Wheel{} }

// Add schedules cb to fire after d, returning an Alarm the caller may
// Cancel. Matches spec.md's add(seconds, cb, arg) with arg folded into the
// closure, which is more idiomatic Go than a void* parameter.
func (w *Wheel) Add(d time.Duration, cb func()) *Alarm {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := &Alarm{expiry: time.Now().Add(d), cb: cb}
	heap.Push(&w.heap, a)
	w.rearmLocked()
	return a
}

// Cancel removes a from the wheel if it has not already fired.
func (w *Wheel) Cancel(a *Alarm) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a.fired || a.cancelled || a.index < 0 {
		return
	}
	a.cancelled = true
	heap.Remove(&w.heap, a.index)
	w.rearmLocked()
}

// rearmLocked re-arms the underlying time.Timer to fire at the current
// heap minimum, matching spec.md's "the topmost expiry is rearmed."
func (w *Wheel) rearmLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.heap.Len() == 0 {
		return
	}
	delay := time.Until(w.heap[0].expiry)
	if delay < 0 {
		delay = 0
	}
	w.timer = time.AfterFunc(delay, w.fire)
}

// fire runs on the timer's own goroutine: it pops every alarm whose expiry
// has passed, in expiry order, invoking each callback outside the lock so
// a callback that itself calls Add/Cancel cannot deadlock.
func (w *Wheel) fire() {
	var due []*Alarm
	w.mu.Lock()
	now := time.Now()
	for w.heap.Len() > 0 && !w.heap[0].expiry.After(now) {
		a := heap.Pop(&w.heap).(*Alarm)
		a.fired = true
		due = append(due, a)
	}
	w.rearmLocked()
	w.mu.Unlock()

	for _, a := range due {
		a.cb()
	}
}

type alarmHeap []*Alarm

func (h alarmHeap) Len() int { return len(h) }
func (h alarmHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }
func (h alarmHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *alarmHeap) Push(x any) {
	a := x.(*Alarm)
	a.index = len(*h)
	*h = append(*h, a)
}
func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*h = old[:n-1]
	return a
}
