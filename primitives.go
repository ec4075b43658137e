package xiio

import "time"

// YieldNow returns control to the scheduler once. The task is requeued
// behind every task made ready in the next iteration, so a yielding task
// cannot starve others. On cancellation it returns ErrCancelled.
func (t *Task) YieldNow() error {
	_, err := t.suspend(wakeRequest{kind: wakeYield})
	return err
}

// Sleep suspends the task for at least d. Negative durations are treated
// as zero; even a zero sleep is a suspension point. On cancellation it
// returns ErrCancelled without waiting out the deadline.
func (t *Task) Sleep(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	_, err := t.suspend(wakeRequest{kind: wakeTimer, deadline: time.Now().Add(d)})
	return err
}

// Read suspends the task until fd is readable, then performs a single
// non-blocking read of up to n bytes and returns them. The loop switches fd
// to non-blocking mode on registration; the caller keeps fd open until the
// operation resumes or is cancelled. The result may be shorter than n, and
// is empty on EOF. On cancellation it returns ErrCancelled without reading.
func (t *Task) Read(fd, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeRead
	}
	v, err := t.suspend(wakeRequest{kind: wakeIO, fd: fd, dir: ioRead, maxBytes: n})
	if err != nil {
		return nil, err
	}
	b, _ := v.([]byte)
	return b, nil
}

// Await suspends the task until target reaches a terminal state and
// returns target's result. If target failed (including by cancellation),
// that failure is raised here. Awaiting an already-terminal task is requeued
// at once and resumes within the same drain with its recorded outcome.
func (t *Task) Await(target *Task) (any, error) {
	if err := t.enter(); err != nil {
		return nil, err
	}
	if target == nil || target.loop != t.loop {
		return nil, ErrForeignTask
	}
	if target == t {
		return nil, ErrAwaitSelf
	}
	return t.suspend(wakeRequest{kind: wakeTask, target: target})
}

// Gather runs every fn as a child of a fresh task group and returns their
// results in input order. If any child fails, the remaining children are
// cancelled and the first failure is returned. Gather of nothing returns an
// empty slice after the scope's immediate join.
func (t *Task) Gather(fns ...TaskFunc) ([]any, error) {
	results := make([]any, len(fns))
	err := t.Group(func(g *TaskGroup) error {
		for i, fn := range fns {
			if _, err := g.Spawn(func(ct *Task) (any, error) {
				v, err := fn(ct)
				if err != nil {
					return nil, err
				}
				results[i] = v
				return v, nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
