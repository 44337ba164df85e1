package tracing

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/tebeka/atexit"
)

// JSONTraceWriter writes tasks as a JSON array.
type JSONTraceWriter struct {
	w         io.Writer
	lock      sync.Mutex
	firstTask bool
	tasks     []Task
	finished  bool
}

// NewJSONTraceWriter creates a JSONTraceWriter that writes to w.
func NewJSONTraceWriter(w io.Writer) *JSONTraceWriter {
	return &JSONTraceWriter{
		w:         w,
		firstTask: true,
	}
}

// Init opens the JSON array. The array is closed at exit.
func (t *JSONTraceWriter) Init() {
	t.mustWrite([]byte("[\n"))

	atexit.Register(t.Finish)
}

// Write buffers a task.
func (t *JSONTraceWriter) Write(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tasks = append(t.tasks, task)
}

// Flush writes the buffered tasks.
func (t *JSONTraceWriter) Flush() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.flush()
}

func (t *JSONTraceWriter) flush() {
	for _, task := range t.tasks {
		if t.firstTask {
			t.firstTask = false
		} else {
			t.mustWrite([]byte(",\n"))
		}

		b, err := json.Marshal(task)
		if err != nil {
			panic(err)
		}

		t.mustWrite(b)
	}

	t.tasks = nil
}

// Finish writes the remaining tasks and closes the array. Calling it more
// than once has no effect.
func (t *JSONTraceWriter) Finish() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.finished {
		return
	}

	t.flush()
	t.mustWrite([]byte("\n]"))
	t.finished = true

	if c, ok := t.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			panic(err)
		}
	}
}

func (t *JSONTraceWriter) mustWrite(b []byte) {
	_, err := t.w.Write(b)
	if err != nil {
		panic(err)
	}
}
