//go:build unix

package xiio

import (
	"golang.org/x/sys/unix"
)

// ioWatch pairs a registered descriptor with the task awaiting readiness.
// At most one watch exists per (fd, direction) per task; this follows from
// the single outstanding wakeup per task.
type ioWatch struct {
	task     *Task
	fd       int
	maxBytes int
	dir      ioDirection
}

// poller is a thin abstraction over poll(2): given the current watch set
// and a timeout, it reports the subset of descriptors that became ready or
// that the timeout elapsed. Watches are level-triggered: a descriptor that
// is already ready at registration is returned by the next wait, so
// wakeups cannot be lost.
//
// The poller is owned exclusively by the loop goroutine; no locking is
// needed. The descriptor set is rebuilt on every wait, which keeps
// registration and removal trivial and is cheap at the watch counts a
// single-threaded loop sustains.
type poller struct {
	watches []*ioWatch // insertion order; wait reports ready watches in this order
	pollBuf []unix.PollFd
}

// empty reports whether no descriptor is being watched.
func (p *poller) empty() bool {
	return len(p.watches) == 0
}

// add registers a watch and switches the descriptor to non-blocking mode,
// so the completion read performed on readiness can never stall the loop.
func (p *poller) add(w *ioWatch) error {
	if err := unix.SetNonblock(w.fd, true); err != nil {
		return err
	}
	p.watches = append(p.watches, w)
	return nil
}

// remove unregisters a watch. The poller is reprogrammed implicitly, since
// the descriptor set is rebuilt on the next wait.
func (p *poller) remove(w *ioWatch) {
	for i, other := range p.watches {
		if other == w {
			p.watches = append(p.watches[:i], p.watches[i+1:]...)
			return
		}
	}
}

// removeTask unregisters the watch owned by t, if any.
func (p *poller) removeTask(t *Task) {
	for i, w := range p.watches {
		if w.task == t {
			p.watches = append(p.watches[:i], p.watches[i+1:]...)
			return
		}
	}
}

// wait blocks until at least one watched descriptor is ready or the timeout
// elapses, and returns the ready watches in registration order. A timeout
// of -1 blocks indefinitely; 0 polls without blocking. An interrupted wait
// returns no watches and no error, and the caller re-iterates.
func (p *poller) wait(timeoutMs int) ([]*ioWatch, error) {
	if len(p.watches) == 0 && timeoutMs < 0 {
		// Nothing to wait on and nothing to bound the wait; the loop's
		// deadlock check prevents this, but never block forever here.
		return nil, nil
	}

	p.pollBuf = p.pollBuf[:0]
	for _, w := range p.watches {
		events := int16(unix.POLLIN)
		if w.dir == ioWrite {
			events = int16(unix.POLLOUT)
		}
		p.pollBuf = append(p.pollBuf, unix.PollFd{Fd: int32(w.fd), Events: events})
	}

	n, err := unix.Poll(p.pollBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var ready []*ioWatch
	for i, w := range p.watches {
		if p.pollBuf[i].Revents&readyMask(w.dir) != 0 {
			ready = append(ready, w)
		}
	}
	return ready, nil
}

// readyMask returns the revents bits that count as ready for a direction.
// Error and hangup conditions count as ready so the completion read can
// observe EOF or the error instead of the task waiting forever.
func readyMask(dir ioDirection) int16 {
	if dir == ioWrite {
		return int16(unix.POLLOUT | unix.POLLERR | unix.POLLHUP)
	}
	return int16(unix.POLLIN | unix.POLLERR | unix.POLLHUP)
}
