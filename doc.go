// Package xiio implements a minimal cooperative asynchronous runtime: an
// event loop that multiplexes many logical tasks onto a single
// operating-system thread, suspending them at well-defined points (timers
// and I/O readiness) and resuming them when the world is ready.
//
// # Architecture
//
// The runtime is built around a [Loop] that owns a FIFO ready queue, a
// minimum-keyed timer heap, and a set of file-descriptor readiness watches.
// Each [Task] wraps a user function in a stackful green thread with a
// single-step contract: the scheduler advances a task by one step, and the
// task either completes, fails, or suspends with a wakeup request (yield,
// timer deadline, descriptor readiness, group join, or task join). Wakeup
// requests feed the timer heap and the readiness poller, which feed back
// into the ready queue as time advances and descriptors become ready.
//
// Structured concurrency is provided by [TaskGroup]: a scoped owner of child
// tasks with cancellation fan-out, first-failure capture, and join-on-exit.
// [Task.Gather] is a convenience built strictly on the group contract.
//
// # Execution Model
//
// Scheduling is single-threaded and cooperative. Exactly one task executes
// at any instant; there is no parallelism and no data races within user
// code, so user tasks never need locks. Suspension points are explicit:
// only [Task.Sleep], [Task.Read], [Task.YieldNow], [Task.Await],
// [Task.Group], and anything built on them may suspend. Any operation that
// blocks the thread stalls the entire loop by design.
//
// Ordering within one loop iteration is part of the contract: tasks woken
// by I/O readiness run first (in the order reported by the poller), then
// expired timers (earliest deadline first, FIFO on ties), then tasks that
// yielded during the previous iteration. Cancellation wakeups go to the
// head of the queue so delivery is prompt.
//
// # Cancellation
//
// Cancellation is a signal, not a trap. [Task.Cancel] marks the target, and
// the target observes [ErrCancelled] as the error result of its next
// suspension point. A task that never suspends again runs to completion
// without observing cancellation. After delivery, further suspension points
// in the cleanup path behave normally unless cancellation is requested
// again.
//
// # Usage
//
//	result, err := xiio.Run(func(t *xiio.Task) (any, error) {
//	    return t.Gather(
//	        func(t *xiio.Task) (any, error) {
//	            if err := t.Sleep(50 * time.Millisecond); err != nil {
//	                return nil, err
//	            }
//	            return "a", nil
//	        },
//	        func(t *xiio.Task) (any, error) {
//	            if err := t.Sleep(10 * time.Millisecond); err != nil {
//	                return nil, err
//	            }
//	            return "b", nil
//	        },
//	    )
//	})
//
// # Error Types
//
// Failure kinds are exposed as sentinel errors matched with [errors.Is]
// ([ErrCancelled], [ErrDeadlock], [ErrGroupClosed], [ErrReentrantRun],
// [ErrOutsideTask]) plus [PanicError], which wraps panics recovered from
// task functions and supports [errors.Unwrap] when the panic value is an
// error.
package xiio
