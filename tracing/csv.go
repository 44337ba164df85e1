package tracing

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// A TraceWriter stores completed tasks.
type TraceWriter interface {
	Init()
	Write(task Task)
	Flush()
}

// CSVTraceWriter is a task tracer that can store the tasks into a CSV file.
type CSVTraceWriter struct {
	path string
	file *os.File

	lock       sync.Mutex
	tasks      []Task
	bufferSize int
}

// NewCSVTraceWriter creates a new CSVTraceWriter. The file is named path
// with a .csv suffix.
func NewCSVTraceWriter(path string) *CSVTraceWriter {
	return &CSVTraceWriter{
		path:       path,
		bufferSize: 1000,
	}
}

// Init creates the tracing csv file. It panics if the file already exists.
func (t *CSVTraceWriter) Init() {
	if t.path == "" {
		t.path = "vmsim_trace_" + xid.New().String()
	}

	filename := t.path + ".csv"
	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	file, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	t.file = file

	fmt.Fprintf(file, "ID, ParentID, Kind, What, Where, Start, End\n")

	atexit.Register(func() {
		t.Flush()
		err := t.file.Close()
		if err != nil {
			panic(err)
		}
	})
}

// Write writes a task to the CSV file.
func (t *CSVTraceWriter) Write(task Task) {
	t.lock.Lock()
	t.tasks = append(t.tasks, task)
	full := len(t.tasks) >= t.bufferSize
	t.lock.Unlock()

	if full {
		t.Flush()
	}
}

// Flush flushes the tasks to the CSV file.
func (t *CSVTraceWriter) Flush() {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, task := range t.tasks {
		fmt.Fprintf(t.file, "%s, %s, %s, %s, %s, %.10f, %.10f\n",
			task.ID,
			task.ParentID,
			task.Kind,
			task.What,
			task.Where,
			task.StartTime,
			task.EndTime,
		)
	}

	t.tasks = nil
}

// WriterTracer hands every completed task to a TraceWriter.
type WriterTracer struct {
	timeTeller TimeTeller
	writer     TraceWriter

	lock          sync.Mutex
	inflightTasks map[string]Task
}

// NewWriterTracer creates a WriterTracer and initializes the writer.
func NewWriterTracer(timeTeller TimeTeller, writer TraceWriter) *WriterTracer {
	writer.Init()

	return &WriterTracer{
		timeTeller:    timeTeller,
		writer:        writer,
		inflightTasks: make(map[string]Task),
	}
}

// StartTask records the start of a task.
func (t *WriterTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask records a step of a task.
func (t *WriterTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	step := task.Steps[0]
	step.Time = t.timeTeller.CurrentTime()
	originalTask.Steps = append(originalTask.Steps, step)
	t.inflightTasks[task.ID] = originalTask
}

// EndTask writes the completed task.
func (t *WriterTracer) EndTask(task Task) {
	t.lock.Lock()
	originalTask, ok := t.inflightTasks[task.ID]
	delete(t.inflightTasks, task.ID)
	t.lock.Unlock()

	if !ok {
		return
	}

	originalTask.EndTime = t.timeTeller.CurrentTime()
	t.writer.Write(originalTask)
}
