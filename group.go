package xiio

// TaskGroup is a scoped owner of child tasks providing structured
// concurrency: the parent cannot leave the scope while children are live,
// the first non-cancellation failure from any child (or from the scope body
// itself) cancels every other live child, and that first failure is what
// the scope ultimately reports. Later failures from children that are
// already cleaning up are discarded.
//
// A TaskGroup is only valid inside the Task.Group scope that created it.
type TaskGroup struct {
	loop     *Loop
	parent   *Task
	children map[*Task]struct{}

	firstFailure error

	cancelling    bool
	joining       bool
	closed        bool
	parentWaiting bool // parent is suspended on this group's join
}

// Group opens a task group bound to t, runs body with it, and joins all
// children before returning, whether body succeeded, failed, or panicked.
//
// The returned error is the group's first failure: a non-cancellation error
// from body or from any child. If the scope observed only a cancellation,
// that cancellation is returned. Children spawned by body do not start
// until t next suspends; the join at scope exit is such a point.
func (t *Task) Group(body func(g *TaskGroup) error) error {
	if err := t.enter(); err != nil {
		return err
	}
	g := &TaskGroup{
		loop:     t.loop,
		parent:   t,
		children: make(map[*Task]struct{}),
	}

	var bodyErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				bodyErr = &PanicError{Value: r}
			}
		}()
		bodyErr = body(g)
	}()

	g.joining = true
	if bodyErr != nil && !IsCancelled(bodyErr) && g.firstFailure == nil {
		g.firstFailure = bodyErr
		g.cancelChildren()
	}

	// Join: suspend until the child set is empty. A cancellation delivered
	// at the join fans out to the children and is re-raised after they
	// finish, unless a real failure takes precedence.
	var cancelErr error
	for len(g.children) > 0 {
		if _, err := t.suspend(wakeRequest{kind: wakeGroup, group: g}); err != nil {
			if IsCancelled(err) {
				cancelErr = err
				g.cancelChildren()
			} else if g.firstFailure == nil {
				g.firstFailure = err
			}
		}
	}
	g.closed = true

	switch {
	case g.firstFailure != nil:
		return g.firstFailure
	case cancelErr != nil:
		return cancelErr
	default:
		return bodyErr
	}
}

// Spawn creates a child task running fn, adds it to the group, and enqueues
// it. The child does not start executing until the parent next suspends.
// Spawning is permitted while the group is cancelling, but not after the
// parent body has exited the scope.
func (g *TaskGroup) Spawn(fn TaskFunc) (*Task, error) {
	if g.joining || g.closed {
		return nil, ErrGroupClosed
	}
	child := g.loop.newTask(fn, g)
	g.children[child] = struct{}{}
	g.loop.enqueue(child, injection{})
	g.loop.logSpawn(child)
	return child, nil
}

// Cancelling reports whether fan-out cancellation has begun. Once true it
// remains true until all children are done.
func (g *TaskGroup) Cancelling() bool { return g.cancelling }

// childDone is called by the loop when a child reaches a terminal state:
// the child leaves the group, a first non-cancellation failure starts the
// fan-out, and an emptied group wakes a joining parent.
func (g *TaskGroup) childDone(child *Task) {
	delete(g.children, child)

	if child.err != nil && !IsCancelled(child.err) {
		if g.firstFailure == nil {
			g.firstFailure = child.err
			g.fanOut()
		}
		// Subsequent failures are discarded: only the first one survives.
	}

	if len(g.children) == 0 && g.parentWaiting {
		g.parentWaiting = false
		g.parent.pending = nil
		g.loop.enqueue(g.parent, injection{})
	}
}

// fanOut propagates the first failure: every other live child is cancelled,
// and if the parent body has not yet reached the scope boundary, the parent
// is cancelled too, so the failure is raised there in place of the ordinary
// join.
func (g *TaskGroup) fanOut() {
	g.cancelChildren()
	if !g.joining {
		g.loop.requestCancel(g.parent)
	}
}

// cancelChildren requests cancellation of every live child. Cancellation is
// cooperative: children may still suspend on further wakeups during their
// cleanup, and the group does not force termination.
func (g *TaskGroup) cancelChildren() {
	g.cancelling = true
	for child := range g.children {
		g.loop.requestCancel(child)
	}
}
