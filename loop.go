package xiio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// teardownPasses bounds the forced-cancellation drain performed when a run
// ends with live tasks remaining (deadlock, or a failure that outran its
// children). Each pass delivers one cancellation per surviving task, so the
// bound is only reachable by a cleanup path that re-suspends pathologically.
const teardownPasses = 64

// readyEntry is one slot of the ready queue: a task plus the injection
// recorded at the time the task was made ready.
type readyEntry struct {
	task *Task
	in   injection
}

// Loop is the scheduler: it owns the ready queue, the timer heap, and the
// I/O watch set, and drives tasks one cooperative step at a time. Loop
// state is touched by one goroutine at a time: the goroutine that called
// Run, or the task goroutine it is currently stepping, which reaches it
// through suspension primitives, TaskGroup.Spawn and Task.Cancel.
type Loop struct {
	logger  *logiface.Logger[logiface.Event]
	metrics *Metrics

	ready    []readyEntry
	deferred []*Task // tasks that yielded; requeued after the next poll

	timers   timerHeap
	timerSeq uint64

	poller poller

	tasks map[*Task]struct{} // live (non-terminal) tasks
	root  *Task

	id         uint64
	nextTaskID uint64
	running    bool
	done       bool
	tearing    bool
}

var loopIDCounter atomic.Uint64

// New creates a new loop. Most callers can use the package-level Run;
// the constructor form exists for hosts that want options.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		id:     loopIDCounter.Add(1),
		logger: cfg.logger,
		tasks:  make(map[*Task]struct{}),
	}
	if cfg.metricsEnabled {
		l.metrics = &Metrics{}
	}
	return l, nil
}

// Run bootstraps a fresh loop with fn as the root task, blocks the calling
// goroutine until the root terminates, and returns its result or failure.
func Run(fn TaskFunc) (any, error) {
	l, err := New()
	if err != nil {
		return nil, err
	}
	return l.Run(fn)
}

// Run drives the loop until the root task is terminal. It returns the
// root's result on success, the root's failure otherwise, ErrDeadlock if no
// progress is possible, and ErrReentrantRun when invoked from inside a
// running task. A loop runs at most once.
func (l *Loop) Run(fn TaskFunc) (any, error) {
	if _, ok := taskGoroutines.Load(getGoroutineID()); ok {
		return nil, ErrReentrantRun
	}
	if l.running {
		return nil, ErrLoopAlreadyRunning
	}
	if l.done {
		return nil, ErrLoopTerminated
	}
	l.running = true
	defer func() {
		l.running = false
		l.done = true
	}()

	root := l.newTask(fn, nil)
	l.root = root
	l.enqueue(root, injection{})
	l.logLoop("run started")

	err := l.runLoop()
	l.teardown()
	l.logLoop("run finished")
	if err != nil {
		return nil, err
	}
	if root.err != nil {
		return nil, root.err
	}
	return root.result, nil
}

// newTask allocates a task in the ready-to-start state and records it in
// the live set.
func (l *Loop) newTask(fn TaskFunc, group *TaskGroup) *Task {
	l.nextTaskID++
	t := &Task{
		loop:   l,
		fn:     fn,
		group:  group,
		resume: make(chan injection),
		report: make(chan stepOutcome),
		id:     l.nextTaskID,
		state:  StateReady,
	}
	l.tasks[t] = struct{}{}
	l.metrics.addTaskSpawned()
	return t
}

// runLoop is the main iteration: drain the ready queue, then block on the
// poller until the next deadline or I/O readiness, then dispatch wakeups.
func (l *Loop) runLoop() error {
	for !l.root.state.Terminal() {
		l.drainReady()
		if l.root.state.Terminal() {
			break
		}
		if len(l.ready) == 0 && len(l.deferred) == 0 && !l.hasTimers() && l.poller.empty() {
			l.logLoop("deadlock detected")
			return ErrDeadlock
		}
		if err := l.pollOnce(); err != nil {
			return err
		}
	}
	return nil
}

// drainReady steps tasks in FIFO order until the queue is empty. Tasks made
// ready during the drain (spawns, immediate joins, cancellations) are
// processed in the same drain.
func (l *Loop) drainReady() {
	for len(l.ready) > 0 {
		e := l.ready[0]
		l.ready = l.ready[1:]
		t := e.task
		t.queued = false
		if t.state.Terminal() {
			continue
		}
		t.state = StateRunning
		l.metrics.addStep()
		out := t.step(e.in)
		if out.request != nil {
			l.register(t, out.request)
		} else {
			l.finish(t, out.value, out.err)
		}
	}
}

// register parks t on the wakeup request its step returned.
func (l *Loop) register(t *Task, req *wakeRequest) {
	t.state = StateWaiting
	t.pending = req
	switch req.kind {
	case wakeYield:
		// Requeued behind everything made ready by the next poll.
		l.deferred = append(l.deferred, t)
	case wakeTimer:
		t.timer = l.scheduleTimer(t, req.deadline)
	case wakeIO:
		w := &ioWatch{task: t, fd: req.fd, dir: req.dir, maxBytes: req.maxBytes}
		if err := l.poller.add(w); err != nil {
			// Registration failed (bad descriptor): surface at the
			// suspension point rather than wedging the task.
			t.pending = nil
			l.enqueue(t, injection{err: fmt.Errorf("xiio: watch fd %d: %w", req.fd, err)})
		}
	case wakeGroup:
		g := req.group
		if len(g.children) == 0 {
			t.pending = nil
			l.enqueue(t, injection{})
		} else {
			g.parentWaiting = true
		}
	case wakeTask:
		target := req.target
		if target.state.Terminal() {
			t.pending = nil
			l.enqueue(t, injection{value: target.result, err: target.err})
		} else {
			target.joinWaiters = append(target.joinWaiters, t)
		}
	}
}

// finish records a terminal outcome, wakes joiners, and notifies the owning
// group.
func (l *Loop) finish(t *Task, v any, err error) {
	t.result = v
	t.err = err
	if err != nil {
		t.state = StateFailed
		if IsCancelled(err) {
			l.metrics.addTaskCancelled()
		} else {
			l.metrics.addTaskFailed()
		}
	} else {
		t.state = StateDone
		l.metrics.addTaskCompleted()
	}
	t.pending = nil
	t.cancelPending = false
	delete(l.tasks, t)
	l.logFinish(t)

	for _, w := range t.joinWaiters {
		if w.state.Terminal() {
			continue
		}
		w.pending = nil
		l.enqueue(w, injection{value: t.result, err: t.err})
	}
	t.joinWaiters = nil

	if t.group != nil {
		t.group.childDone(t)
	}
}

// pollOnce blocks until the next timer deadline or I/O readiness, then
// enqueues wakeups in the contract order: I/O-ready tasks first (poller
// report order), then expired timers (heap order), then yields deferred
// from the drain that just completed.
func (l *Loop) pollOnce() error {
	timeoutMs := -1
	if len(l.deferred) > 0 {
		timeoutMs = 0
	} else if deadline, ok := l.nextDeadline(); ok {
		d := time.Until(deadline)
		if d <= 0 {
			timeoutMs = 0
		} else {
			// Round up so the poll never returns before the deadline.
			timeoutMs = int((d + time.Millisecond - 1) / time.Millisecond)
		}
	}

	l.metrics.addPoll()
	ready, err := l.poller.wait(timeoutMs)
	if err != nil {
		return fmt.Errorf("xiio: poll: %w", err)
	}
	for _, w := range ready {
		l.completeIO(w)
	}

	l.expireTimers(time.Now())

	for _, t := range l.deferred {
		if t.state.Terminal() {
			continue
		}
		t.pending = nil
		l.enqueue(t, injection{})
	}
	l.deferred = l.deferred[:0]
	return nil
}

// completeIO performs the single non-blocking read for a ready watch and
// wakes the task with the bytes read. The loop performs the read so the
// injected value is the operation's payload; an empty slice means EOF.
// Spurious readiness re-arms the watch instead of waking the task.
func (l *Loop) completeIO(w *ioWatch) {
	l.poller.remove(w)
	t := w.task
	if t.state.Terminal() {
		return
	}

	buf := make([]byte, w.maxBytes)
	n, err := unix.Read(w.fd, buf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		// Spurious readiness: put the watch back and keep waiting.
		if rearm := l.poller.add(w); rearm != nil {
			err = rearm
		} else {
			return
		}
	}
	t.pending = nil
	l.metrics.addIOWakeup()
	l.logWake(t, "io")
	if err != nil {
		l.enqueue(t, injection{err: fmt.Errorf("xiio: read fd %d: %w", w.fd, err)})
		return
	}
	if n < 0 {
		n = 0
	}
	l.enqueue(t, injection{value: buf[:n:n]})
}

// enqueue appends t to the ready queue with the given injection. A task
// appears in the queue at most once.
func (l *Loop) enqueue(t *Task, in injection) {
	if t.state.Terminal() || t.queued {
		return
	}
	t.state = StateReady
	t.queued = true
	l.ready = append(l.ready, readyEntry{task: t, in: in})
}

// enqueueFront is enqueue at the head of the queue, used for cancellation
// so delivery is prompt.
func (l *Loop) enqueueFront(t *Task, in injection) {
	if t.state.Terminal() || t.queued {
		return
	}
	t.state = StateReady
	t.queued = true
	l.ready = append([]readyEntry{{task: t, in: in}}, l.ready...)
}

// requestCancel implements the task contract's request_cancel: mark the
// task, unregister its current wakeup, and make it ready to observe the
// cancellation.
func (l *Loop) requestCancel(t *Task) {
	if t == nil || t.state.Terminal() || t.cancelPending {
		return
	}
	t.cancelPending = true
	l.metrics.addCancelRequest()
	l.logCancel(t)
	if l.tearing {
		// The teardown drain delivers cancellation itself.
		return
	}
	switch t.state {
	case StateWaiting:
		l.unregister(t)
		t.pending = nil
		l.enqueueFront(t, injection{err: ErrCancelled})
	case StateReady:
		l.requeueCancelled(t)
	case StateRunning:
		// Delivered by suspend at the task's next suspension point.
	}
}

// requeueCancelled rewrites a queued task's recorded injection to the
// cancellation failure and moves it to the head of the queue.
func (l *Loop) requeueCancelled(t *Task) {
	for i := range l.ready {
		if l.ready[i].task == t {
			l.ready = append(l.ready[:i], l.ready[i+1:]...)
			l.ready = append([]readyEntry{{task: t, in: injection{err: ErrCancelled}}}, l.ready...)
			return
		}
	}
}

// unregister removes a waiting task from whichever wakeup source currently
// references it.
func (l *Loop) unregister(t *Task) {
	req := t.pending
	if req == nil {
		return
	}
	switch req.kind {
	case wakeYield:
		for i, d := range l.deferred {
			if d == t {
				l.deferred = append(l.deferred[:i], l.deferred[i+1:]...)
				break
			}
		}
	case wakeTimer:
		if t.timer != nil {
			l.cancelTimer(t.timer)
			t.timer = nil
		}
	case wakeIO:
		l.poller.removeTask(t)
	case wakeGroup:
		req.group.parentWaiting = false
	case wakeTask:
		target := req.target
		for i, w := range target.joinWaiters {
			if w == t {
				target.joinWaiters = append(target.joinWaiters[:i], target.joinWaiters[i+1:]...)
				break
			}
		}
	}
}

// teardown cancels and drains every task still live when the run ends, so
// no task goroutine leaks. Failures surfaced here are discarded: the run's
// outcome is already decided.
func (l *Loop) teardown() {
	if len(l.tasks) == 0 {
		return
	}
	l.tearing = true
	l.ready = nil
	l.deferred = nil

	for pass := 0; pass < teardownPasses && len(l.tasks) > 0; pass++ {
		live := make([]*Task, 0, len(l.tasks))
		for t := range l.tasks {
			live = append(live, t)
		}
		for _, t := range live {
			if t.state.Terminal() {
				continue
			}
			l.unregister(t)
			t.pending = nil
			t.state = StateRunning
			out := t.step(injection{err: ErrCancelled})
			if out.request != nil {
				// Cleanup suspended again; the next pass cancels again.
				t.state = StateWaiting
				t.pending = out.request
				t.cancelPending = false
			} else {
				l.finish(t, out.value, out.err)
			}
		}
		l.ready = nil
		l.deferred = nil
	}
	if len(l.tasks) > 0 {
		l.logLoop("teardown abandoned live tasks")
	}
	l.tearing = false
}

// Metrics returns a snapshot of the loop's runtime counters. The zero
// snapshot is returned when metrics collection is disabled.
func (l *Loop) Metrics() MetricsSnapshot {
	return l.metrics.snapshot()
}
