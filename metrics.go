package xiio

import "sync/atomic"

// Metrics tracks runtime counters for the loop. Collection is optional and
// attached via WithMetrics; a nil receiver makes every recording helper a
// no-op, so the hot path carries no conditionals at call sites.
//
// Counters use atomics so that Loop.Metrics() may be read from outside the
// loop goroutine (e.g. a monitoring goroutine) while a run is in progress.
type Metrics struct {
	steps          atomic.Uint64
	polls          atomic.Uint64
	tasksSpawned   atomic.Uint64
	tasksCompleted atomic.Uint64
	tasksFailed    atomic.Uint64
	tasksCancelled atomic.Uint64
	timersSet      atomic.Uint64
	timersFired    atomic.Uint64
	ioWakeups      atomic.Uint64
	cancelRequests atomic.Uint64
}

func (m *Metrics) addStep() {
	if m != nil {
		m.steps.Add(1)
	}
}

func (m *Metrics) addPoll() {
	if m != nil {
		m.polls.Add(1)
	}
}

func (m *Metrics) addTaskSpawned() {
	if m != nil {
		m.tasksSpawned.Add(1)
	}
}

func (m *Metrics) addTaskCompleted() {
	if m != nil {
		m.tasksCompleted.Add(1)
	}
}

func (m *Metrics) addTaskFailed() {
	if m != nil {
		m.tasksFailed.Add(1)
	}
}

func (m *Metrics) addTaskCancelled() {
	if m != nil {
		m.tasksCancelled.Add(1)
	}
}

func (m *Metrics) addTimerScheduled() {
	if m != nil {
		m.timersSet.Add(1)
	}
}

func (m *Metrics) addTimerFired() {
	if m != nil {
		m.timersFired.Add(1)
	}
}

func (m *Metrics) addIOWakeup() {
	if m != nil {
		m.ioWakeups.Add(1)
	}
}

func (m *Metrics) addCancelRequest() {
	if m != nil {
		m.cancelRequests.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of the loop's counters.
type MetricsSnapshot struct {
	Steps          uint64
	Polls          uint64
	TasksSpawned   uint64
	TasksCompleted uint64
	TasksFailed    uint64
	TasksCancelled uint64
	TimersSet      uint64
	TimersFired    uint64
	IOWakeups      uint64
	CancelRequests uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Steps:          m.steps.Load(),
		Polls:          m.polls.Load(),
		TasksSpawned:   m.tasksSpawned.Load(),
		TasksCompleted: m.tasksCompleted.Load(),
		TasksFailed:    m.tasksFailed.Load(),
		TasksCancelled: m.tasksCancelled.Load(),
		TimersSet:      m.timersSet.Load(),
		TimersFired:    m.timersFired.Load(),
		IOWakeups:      m.ioWakeups.Load(),
		CancelRequests: m.cancelRequests.Load(),
	}
}
