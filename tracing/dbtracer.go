package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/vmcore/datarecording"
)

type taskTableEntry struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parent_id"`
	Kind      string  `json:"kind"`
	What      string  `json:"what"`
	Location  string  `json:"location"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type taskStepEntry struct {
	TaskID string  `json:"task_id"`
	What   string  `json:"what"`
	Time   float64 `json:"time"`
}

// Table names used by the DBTracer.
const (
	TaskTableName = "trace"
	StepTableName = "trace_step"
)

// DBTracer is a tracer that can store tasks into a database through a
// DataRecorder.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller TimeTeller
	backend    datarecording.DataRecorder

	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer. The recorder is flushed at exit.
func NewDBTracer(
	timeTeller TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TaskTableName, taskTableEntry{})
	dataRecorder.CreateTable(StepTableName, taskStepEntry{})

	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startingTaskMustBeValid(task)

	task.StartTime = t.timeTeller.CurrentTime()
	t.tracingTasks[task.ID] = task
}

func (t *DBTracer) startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Where == "" {
		panic("task location must be set")
	}
}

// StepTask records a step of a task.
func (t *DBTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tracingTasks[task.ID]; !ok {
		return
	}

	t.backend.InsertData(StepTableName, taskStepEntry{
		TaskID: task.ID,
		What:   task.Steps[0].What,
		Time:   t.timeTeller.CurrentTime(),
	})
}

// EndTask marks the end of a task.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}
	delete(t.tracingTasks, task.ID)

	t.backend.InsertData(TaskTableName, taskTableEntry{
		ID:        originalTask.ID,
		ParentID:  originalTask.ParentID,
		Kind:      originalTask.Kind,
		What:      originalTask.What,
		Location:  originalTask.Where,
		StartTime: originalTask.StartTime,
		EndTime:   t.timeTeller.CurrentTime(),
	})
}

// Terminate drops the tasks that never completed and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}
