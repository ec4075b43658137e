package xiio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RootResult(t *testing.T) {
	v, err := Run(func(t *Task) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestRun_RootFailure(t *testing.T) {
	boom := errors.New("boom")
	v, err := Run(func(t *Task) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Nil(t, v)
}

func TestRun_RootPanicBecomesPanicError(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		panic("kaboom")
	})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kaboom", pe.Value)
}

func TestRun_PanicErrorUnwrapsErrorValues(t *testing.T) {
	cause := errors.New("cause")
	_, err := Run(func(t *Task) (any, error) {
		panic(cause)
	})
	require.ErrorIs(t, err, cause)
}

// TestRun_Reentrant verifies that calling Run from inside a running task is
// rejected as misuse rather than nesting a second loop on the same thread.
func TestRun_Reentrant(t *testing.T) {
	v, err := Run(func(t *Task) (any, error) {
		_, err := Run(func(t *Task) (any, error) { return nil, nil })
		return nil, err
	})
	require.ErrorIs(t, err, ErrReentrantRun)
	require.Nil(t, v)
}

func TestLoop_RunTwice(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	_, err = l.Run(func(t *Task) (any, error) { return nil, nil })
	require.NoError(t, err)

	_, err = l.Run(func(t *Task) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrLoopTerminated)
}

// TestRun_DeadlockDetection covers the no-progress case: two siblings that
// await each other can never resume, and nothing else is scheduled.
func TestRun_DeadlockDetection(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		return nil, t.Group(func(g *TaskGroup) error {
			var t1, t2 *Task
			t1, _ = g.Spawn(func(ct *Task) (any, error) {
				return ct.Await(t2)
			})
			t2, _ = g.Spawn(func(ct *Task) (any, error) {
				return ct.Await(t1)
			})
			return nil
		})
	})
	require.ErrorIs(t, err, ErrDeadlock)
}

// TestRun_TeardownDrainsLiveTasks verifies that a deadlocked run still
// unwinds its live tasks: their cleanup code observes cancellation.
func TestRun_TeardownDrainsLiveTasks(t *testing.T) {
	var sawCancel bool
	_, err := Run(func(t *Task) (any, error) {
		return nil, t.Group(func(g *TaskGroup) error {
			var t1, t2 *Task
			t1, _ = g.Spawn(func(ct *Task) (any, error) {
				_, err := ct.Await(t2)
				if IsCancelled(err) {
					sawCancel = true
				}
				return nil, err
			})
			t2, _ = g.Spawn(func(ct *Task) (any, error) {
				return ct.Await(t1)
			})
			return nil
		})
	})
	require.ErrorIs(t, err, ErrDeadlock)
	require.True(t, sawCancel)
}

func TestLoop_MetricsDisabledByDefault(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	_, err = l.Run(func(t *Task) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, MetricsSnapshot{}, l.Metrics())
}
