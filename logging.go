package xiio

// Structured logging for loop diagnostics, built on logiface. The logger is
// optional (see WithLogger); every helper below is a no-op against a nil
// logger because logiface builders are nil-receiver safe. Events carry a
// category field so hosts can filter scheduler noise from task lifecycle.

// Log categories.
const (
	logCategoryLoop  = "loop"
	logCategoryTask  = "task"
	logCategoryTimer = "timer"
	logCategoryIO    = "io"
)

func (l *Loop) logLoop(msg string) {
	l.logger.Debug().
		Str("category", logCategoryLoop).
		Uint64("loop", l.id).
		Log(msg)
}

func (l *Loop) logSpawn(t *Task) {
	l.logger.Trace().
		Str("category", logCategoryTask).
		Uint64("loop", l.id).
		Uint64("task", t.id).
		Log("task spawned")
}

func (l *Loop) logFinish(t *Task) {
	b := l.logger.Trace().
		Str("category", logCategoryTask).
		Uint64("loop", l.id).
		Uint64("task", t.id).
		Stringer("state", t.state)
	if t.err != nil {
		b = b.Err(t.err)
	}
	b.Log("task finished")
}

func (l *Loop) logCancel(t *Task) {
	l.logger.Trace().
		Str("category", logCategoryTask).
		Uint64("loop", l.id).
		Uint64("task", t.id).
		Log("cancellation requested")
}

func (l *Loop) logWake(t *Task, source string) {
	category := logCategoryTimer
	if source == "io" {
		category = logCategoryIO
	}
	l.logger.Trace().
		Str("category", category).
		Uint64("loop", l.id).
		Uint64("task", t.id).
		Log("task woken")
}
