package xiio

import (
	"container/heap"
	"time"
)

// timerEntry is a scheduled wakeup: resume task no earlier than deadline.
// Cancellation removes entries lazily: the entry is tombstoned in place and
// skipped when it surfaces at the top of the heap, keeping removal O(1) and
// pop O(log n) amortized.
type timerEntry struct {
	deadline time.Time
	task     *Task
	seq      uint64 // insertion order, breaks deadline ties FIFO
	removed  bool   // tombstone
}

// timerHeap is a min-heap of timer entries keyed by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// scheduleTimer registers a wakeup for t at deadline. At most one timer
// entry exists per task.
func (l *Loop) scheduleTimer(t *Task, deadline time.Time) *timerEntry {
	l.timerSeq++
	e := &timerEntry{deadline: deadline, seq: l.timerSeq, task: t}
	heap.Push(&l.timers, e)
	l.metrics.addTimerScheduled()
	return e
}

// cancelTimer tombstones a live entry. The task reference is dropped so a
// long-dated tombstone does not pin the task.
func (l *Loop) cancelTimer(e *timerEntry) {
	e.removed = true
	e.task = nil
}

// pruneTimers discards tombstones that have surfaced at the top of the heap.
func (l *Loop) pruneTimers() {
	for len(l.timers) > 0 && l.timers[0].removed {
		heap.Pop(&l.timers)
	}
}

// hasTimers reports whether any live timer entry remains.
func (l *Loop) hasTimers() bool {
	l.pruneTimers()
	return len(l.timers) > 0
}

// nextDeadline returns the earliest live deadline, if any.
func (l *Loop) nextDeadline() (time.Time, bool) {
	l.pruneTimers()
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	return l.timers[0].deadline, true
}

// expireTimers wakes every task whose deadline is at or before now, in heap
// order (earliest first, FIFO on ties).
func (l *Loop) expireTimers(now time.Time) {
	for {
		l.pruneTimers()
		if len(l.timers) == 0 || l.timers[0].deadline.After(now) {
			return
		}
		e := heap.Pop(&l.timers).(*timerEntry)
		t := e.task
		t.timer = nil
		t.pending = nil
		l.metrics.addTimerFired()
		l.logWake(t, "timer")
		l.enqueue(t, injection{})
	}
}
