package xiio

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestGather_SleepOrdering runs the slower child first and asserts the
// faster child's side effect lands first, with results in input order.
func TestGather_SleepOrdering(t *testing.T) {
	var log []string
	v, err := Run(func(t *Task) (any, error) {
		return t.Gather(
			func(t *Task) (any, error) {
				if err := t.Sleep(50 * time.Millisecond); err != nil {
					return nil, err
				}
				log = append(log, "A")
				return nil, nil
			},
			func(t *Task) (any, error) {
				if err := t.Sleep(10 * time.Millisecond); err != nil {
					return nil, err
				}
				log = append(log, "B")
				return nil, nil
			},
		)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, log)
	require.Equal(t, []any{nil, nil}, v)
}

func TestGather_ResultsInInputOrder(t *testing.T) {
	v, err := Run(func(t *Task) (any, error) {
		return t.Gather(
			func(t *Task) (any, error) {
				if err := t.Sleep(30 * time.Millisecond); err != nil {
					return nil, err
				}
				return "slow", nil
			},
			func(t *Task) (any, error) {
				return "immediate", nil
			},
			func(t *Task) (any, error) {
				if err := t.Sleep(5 * time.Millisecond); err != nil {
					return nil, err
				}
				return "fast", nil
			},
		)
	})
	require.NoError(t, err)
	require.Equal(t, []any{"slow", "immediate", "fast"}, v.([]any))
}

func TestGather_Empty(t *testing.T) {
	start := time.Now()
	v, err := Run(func(t *Task) (any, error) {
		return t.Gather()
	})
	require.NoError(t, err)
	require.Len(t, v.([]any), 0)
	require.Less(t, time.Since(start), time.Second)
}

func TestSleep_Monotonicity(t *testing.T) {
	const d = 30 * time.Millisecond
	start := time.Now()
	_, err := Run(func(t *Task) (any, error) {
		return nil, t.Sleep(d)
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), d)
}

func TestSleep_NegativeIsImmediate(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		return nil, t.Sleep(-time.Second)
	})
	require.NoError(t, err)
}

// TestYieldNow_Interleaving checks two ordering guarantees at once: tasks
// enqueued in the same iteration run in enqueue order on the next, and a
// yielding task is reordered behind tasks already ready.
func TestYieldNow_Interleaving(t *testing.T) {
	var log []string
	_, err := Run(func(t *Task) (any, error) {
		worker := func(name string) TaskFunc {
			return func(t *Task) (any, error) {
				for i := 0; i < 3; i++ {
					log = append(log, fmt.Sprintf("%s%d", name, i))
					if err := t.YieldNow(); err != nil {
						return nil, err
					}
				}
				return nil, nil
			}
		}
		return t.Gather(worker("a"), worker("b"), worker("c"))
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"a0", "b0", "c0",
		"a1", "b1", "c1",
		"a2", "b2", "c2",
	}, log)
}

func TestYieldNow_ResultIsNoOp(t *testing.T) {
	v, err := Run(func(t *Task) (any, error) {
		if err := t.YieldNow(); err != nil {
			return nil, err
		}
		return "after yield", nil
	})
	require.NoError(t, err)
	require.Equal(t, "after yield", v)
}

// TestRead_PipeReadiness covers the readiness-read contract against a real
// pipe: a full read, then a short read that leaves bytes buffered in the
// OS, then the remainder.
func TestRead_PipeReadiness(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	_, err := unix.Write(w, []byte("hello"))
	require.NoError(t, err)

	v, err := Run(func(t *Task) (any, error) {
		b, err := t.Read(r, 32)
		return b, err
	})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)

	_, err = unix.Write(w, []byte("hello"))
	require.NoError(t, err)

	v, err = Run(func(t *Task) (any, error) {
		he, err := t.Read(r, 2)
		if err != nil {
			return nil, err
		}
		llo, err := t.Read(r, 32)
		if err != nil {
			return nil, err
		}
		return [][]byte{he, llo}, nil
	})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("he"), []byte("llo")}, v)
}

// TestRead_BlocksUntilWritten verifies the reader suspends until a writer
// task makes the descriptor readable.
func TestRead_BlocksUntilWritten(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	v, err := Run(func(t *Task) (any, error) {
		var got []byte
		err := t.Group(func(g *TaskGroup) error {
			if _, err := g.Spawn(func(t *Task) (any, error) {
				b, err := t.Read(r, 16)
				got = b
				return nil, err
			}); err != nil {
				return err
			}
			_, err := g.Spawn(func(t *Task) (any, error) {
				if err := t.Sleep(20 * time.Millisecond); err != nil {
					return nil, err
				}
				_, err := unix.Write(w, []byte("later"))
				return nil, err
			})
			return err
		})
		return got, err
	})
	require.NoError(t, err)
	require.Equal(t, []byte("later"), v)
}

func TestRead_EOFIsEmpty(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	r, w := fds[0], fds[1]
	defer unix.Close(r)

	require.NoError(t, unix.Close(w))

	v, err := Run(func(t *Task) (any, error) {
		return t.Read(r, 8)
	})
	require.NoError(t, err)
	require.Len(t, v.([]byte), 0)
}

func TestRead_NegativeCount(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		return t.Read(0, -1)
	})
	require.ErrorIs(t, err, ErrNegativeRead)
}

// TestSleep_CancelledMidWait is the timeout pattern from the other side: a
// sibling failure interrupts a long sleep well before its deadline.
func TestSleep_CancelledMidWait(t *testing.T) {
	boom := fmt.Errorf("boom")
	start := time.Now()
	_, err := Run(func(t *Task) (any, error) {
		return t.Gather(
			func(t *Task) (any, error) {
				return nil, t.Sleep(time.Hour)
			},
			func(t *Task) (any, error) {
				if err := t.Sleep(10 * time.Millisecond); err != nil {
					return nil, err
				}
				return nil, boom
			},
		)
	})
	require.ErrorIs(t, err, boom)
	require.Less(t, time.Since(start), time.Second)
}
