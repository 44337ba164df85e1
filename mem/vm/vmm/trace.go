package vmm

import (
	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/sim/id"
	"github.com/sarchlab/vmcore/tracing"
)

// Kinds of the tasks the manager reports to tracers.
const (
	TaskKindFault   = "fault"
	TaskKindPageIn  = "page_in"
	TaskKindPageOut = "page_out"
)

// startTask reports the start of a task and returns its ID. Without hooks,
// nothing is reported and the ID is empty.
func (m *Manager) startTask(parentID, kind, what string) string {
	if m.NumHooks() == 0 {
		return ""
	}

	taskID := id.Generate()
	tracing.StartTask(taskID, parentID, m, kind, what, nil)

	return taskID
}

func (m *Manager) stepTask(taskID, what string) {
	if taskID == "" {
		return
	}

	tracing.AddTaskStep(taskID, m, what)
}

func (m *Manager) endTask(taskID string) {
	if taskID == "" {
		return
	}

	tracing.EndTask(taskID, m)
}

func accessKind(write bool) string {
	if write {
		return "write"
	}

	return "read"
}

func originKind(o vm.Origin) string {
	switch o.(type) {
	case vm.ZeroOrigin:
		return "zero"
	case vm.FileOrigin:
		return "file"
	case vm.MmapOrigin:
		return "mmap"
	default:
		return "swap"
	}
}
