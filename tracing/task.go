package tracing

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time float64 `json:"time"`
	What string  `json:"what"`
}

// A Task is a piece of work done by a domain, such as resolving a fault or
// evicting a page. Times are in seconds as told by a TimeTeller.
type Task struct {
	ID        string      `json:"id"`
	ParentID  string      `json:"parent_id"`
	Kind      string      `json:"kind"`
	What      string      `json:"what"`
	Where     string      `json:"where"`
	StartTime float64     `json:"start_time"`
	EndTime   float64     `json:"end_time"`
	Steps     []TaskStep  `json:"steps"`
	Detail    interface{} `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// KindFilter returns a filter that accepts tasks of one kind.
func KindFilter(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}
