// Package vmm resolves page faults. It owns the address spaces of all
// processes and decides what happens to the content of evicted pages.
package vmm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/mem/vm/frame"
	"github.com/sarchlab/vmcore/mem/vm/swap"
	"github.com/sarchlab/vmcore/sim/hooking"
)

// Outcome is the result of a page fault.
type Outcome int

// Possible outcomes of a page fault. Unresolved means the faulting process
// must be terminated.
const (
	Unresolved Outcome = iota
	Resolved
	StackGrown
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "Resolved"
	case StackGrown:
		return "StackGrown"
	default:
		return "Unresolved"
	}
}

// A Fault describes a page fault raised by the hardware.
type Fault struct {
	PID   vm.PID
	Addr  uint64
	Write bool

	// User is set if the fault was raised in user mode.
	User bool

	// StackPointer is the user stack pointer at the time of the fault. For
	// faults raised in kernel mode, it is the one saved on entry to the
	// kernel.
	StackPointer uint64
}

// Manager owns the address spaces of all processes and the frame registry
// they share.
type Manager struct {
	*hooking.HookableBase

	name    string
	config  Config
	memory  vm.PhysicalMemory
	pageDir vm.PageDirectory
	swap    *swap.Store
	frames  *frame.Registry
	stats   counters

	lock   sync.Mutex
	spaces map[vm.PID]*AddressSpace
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// Config returns the address space layout.
func (m *Manager) Config() Config {
	return m.config
}

// Frames returns the frame registry.
func (m *Manager) Frames() *frame.Registry {
	return m.frames
}

// Swap returns the swap store.
func (m *Manager) Swap() *swap.Store {
	return m.swap
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// NewAddressSpace creates an empty address space for a process.
func (m *Manager) NewAddressSpace(pid vm.PID) (*AddressSpace, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, found := m.spaces[pid]; found {
		return nil, fmt.Errorf("process %d: %w", pid, vm.ErrProcessExists)
	}

	as := &AddressSpace{
		manager: m,
		table:   vm.NewPageTable(pid),
	}
	m.spaces[pid] = as

	return as, nil
}

// AddressSpace returns the address space of a live process.
func (m *Manager) AddressSpace(pid vm.PID) (*AddressSpace, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	as, found := m.spaces[pid]
	if !found || as.dying {
		return nil, false
	}

	return as, true
}

// Alive tells if a process has an address space that is not being torn
// down.
func (m *Manager) Alive(pid vm.PID) bool {
	_, alive := m.AddressSpace(pid)
	return alive
}

// PIDs returns the live processes in ascending order.
func (m *Manager) PIDs() []vm.PID {
	m.lock.Lock()
	defer m.lock.Unlock()

	pids := make([]vm.PID, 0, len(m.spaces))
	for pid, as := range m.spaces {
		if !as.dying {
			pids = append(pids, pid)
		}
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

// space returns the address space of a process even while it is being torn
// down.
func (m *Manager) space(pid vm.PID) (*AddressSpace, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	as, found := m.spaces[pid]

	return as, found
}

// Teardown destroys the address space of a process. Every resident frame is
// released and every swap slot is discarded. Tearing down a process that has
// no address space is a no-op.
func (m *Manager) Teardown(pid vm.PID) {
	m.lock.Lock()
	as, found := m.spaces[pid]
	if !found || as.dying {
		m.lock.Unlock()
		return
	}
	as.dying = true
	m.lock.Unlock()

	as.teardown()
	m.frames.ReleaseProcess(pid)

	m.lock.Lock()
	delete(m.spaces, pid)
	m.lock.Unlock()
}

// OnPageFault resolves a page fault. Unresolved tells the caller to terminate
// the faulting process.
func (m *Manager) OnPageFault(f Fault) Outcome {
	m.stats.faults.Add(1)
	taskID := m.startTask("", TaskKindFault, accessKind(f.Write))

	outcome := m.handleFault(f, taskID)

	m.stats.countOutcome(outcome)
	m.stepTask(taskID, outcome.String())
	m.endTask(taskID)
	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosFault,
		Item:   f,
		Detail: outcome,
	})

	return outcome
}

func (m *Manager) handleFault(f Fault, taskID string) Outcome {
	if !m.config.InUserSpace(f.Addr) {
		return Unresolved
	}

	as, alive := m.AddressSpace(f.PID)
	if !alive {
		return Unresolved
	}

	entry, found := as.table.Lookup(f.Addr)
	if !found {
		if !m.isStackAccess(f) {
			return Unresolved
		}

		err := as.growStack(f.Addr, taskID)
		if err == nil {
			return StackGrown
		}

		// Another thread may have grown the stack over the same page.
		entry, found = as.table.Lookup(f.Addr)
		if !found {
			return Unresolved
		}
	}

	if f.Write && !entry.Writable {
		return Unresolved
	}

	if err := as.resolveEntry(entry, false, taskID); err != nil {
		return Unresolved
	}

	return Resolved
}

func (m *Manager) isStackAccess(f Fault) bool {
	if !m.config.InStackRange(f.Addr) {
		return false
	}

	return f.Addr+m.config.StackSlack >= f.StackPointer
}

// Evict preserves the content of a page whose frame is being reclaimed. It is
// called by the frame registry.
func (m *Manager) Evict(victim frame.Victim) error {
	m.stats.evictions.Add(1)

	as, found := m.space(victim.PID)
	if !found {
		return nil
	}

	entry, found := as.lockEntry(victim.VAddr)
	if !found {
		return nil
	}
	defer entry.Unlock()

	if !entry.Resident || entry.PAddr != victim.PAddr {
		return nil
	}

	taskID := m.startTask("", TaskKindPageOut, originKind(entry.Origin))
	defer m.endTask(taskID)

	action, err := m.pageOut(entry, m.Alive(victim.PID))
	if err != nil {
		m.stepTask(taskID, "failed")
		return err
	}

	m.stepTask(taskID, string(action))

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosPageOut,
		Item:   victim,
		Detail: action,
	})

	return nil
}
