package tracing

import (
	"sync"
)

// TotalTimeTracer sums the time spent in tasks that pass its filter, for
// example every page-in of a run. Overlapping tasks, such as page-ins of
// different threads, each count in full, so the total can exceed the wall time
// of the run.
type TotalTimeTracer struct {
	timeTeller TimeTeller
	filter     TaskFilter

	lock     sync.Mutex
	started  map[string]float64
	total    float64
	longest  float64
	finished int
}

// NewTotalTimeTracer creates a TotalTimeTracer.
func NewTotalTimeTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *TotalTimeTracer {
	return &TotalTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		started:    make(map[string]float64),
	}
}

// TotalTime returns the summed duration of the finished tasks in seconds.
func (t *TotalTimeTracer) TotalTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.total
}

// Count returns how many tasks finished.
func (t *TotalTimeTracer) Count() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.finished
}

// Longest returns the duration of the slowest finished task in seconds.
func (t *TotalTimeTracer) Longest() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.longest
}

// StartTask remembers when a matching task started.
func (t *TotalTimeTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.started[task.ID] = now
	t.lock.Unlock()
}

// StepTask ignores steps.
func (t *TotalTimeTracer) StepTask(_ Task) {}

// EndTask adds the duration of a task that was started while attached.
func (t *TotalTimeTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.started[task.ID]
	if !ok {
		return
	}
	delete(t.started, task.ID)

	d := now - start
	t.total += d
	t.longest = max(t.longest, d)
	t.finished++
}
