package vmm

import (
	"fmt"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/sim/hooking"
)

// resolveLocked makes a page resident. The caller holds the entry lock. If
// pin is set, the frame stays pinned when this returns successfully. The
// page-in is traced as a subtask of parentID.
//
// A page that is resident but not mapped is being evicted. Its fault is
// reported as satisfied and the access faults again once the eviction is
// over.
func (m *Manager) resolveLocked(
	e *vm.PageEntry,
	pin bool,
	parentID string,
) error {
	if e.Resident {
		if pin {
			return m.frames.Pin(e.PAddr)
		}

		return nil
	}

	origin := e.Origin
	taskID := m.startTask(parentID, TaskKindPageIn, originKind(origin))
	defer m.endTask(taskID)

	pAddr, err := m.frames.Allocate(e.PID, e.VAddr)
	if err != nil {
		m.stepTask(taskID, "no_frame")
		return fmt.Errorf("process %d page 0x%x: %w", e.PID, e.VAddr, err)
	}

	m.stepTask(taskID, "allocated")

	if err := m.load(origin, m.memory.Bytes(pAddr)); err != nil {
		m.stepTask(taskID, "load_failed")
		m.frames.Release(pAddr)
		return fmt.Errorf("process %d page 0x%x: %w", e.PID, e.VAddr, err)
	}

	if err := m.pageDir.Map(e.PID, e.VAddr, pAddr, e.Writable); err != nil {
		m.stepTask(taskID, "map_failed")
		m.frames.Release(pAddr)
		return fmt.Errorf("process %d page 0x%x: %w: %w",
			e.PID, e.VAddr, vm.ErrMapFailed, err)
	}

	if o, swapped := origin.(vm.SwappedOrigin); swapped {
		m.swap.Discard(o.Slot)
		e.Origin = o.Prior
		e.Diverged = true
		m.stats.swapIns.Add(1)
	}

	e.Resident = true
	e.PAddr = pAddr
	m.stats.pageIns.Add(1)
	m.stepTask(taskID, "mapped")

	if !pin {
		if err := m.frames.Unpin(pAddr); err != nil {
			panic(err)
		}
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosPageIn,
		Item: vm.PageInfo{
			PID:      e.PID,
			VAddr:    e.VAddr,
			Writable: e.Writable,
			Origin:   e.Origin.String(),
			Diverged: e.Diverged,
			Resident: true,
			PAddr:    pAddr,
		},
		Detail: origin,
	})

	return nil
}

// load fills a frame with the content of a page. Slots of swapped pages are
// left in use.
func (m *Manager) load(origin vm.Origin, buf []byte) error {
	switch o := origin.(type) {
	case vm.ZeroOrigin:
		clear(buf)
	case vm.FileOrigin:
		return readPage(o.File, o.Offset, o.ReadBytes, buf)
	case vm.MmapOrigin:
		return readPage(o.File, o.Offset, o.Length, buf)
	case vm.SwappedOrigin:
		return m.swap.Read(o.Slot, buf)
	default:
		panic(fmt.Sprintf("unknown origin %T", origin))
	}

	return nil
}

// readPage reads n bytes of file at offset into the start of buf and zeroes
// the rest of buf. Reading fewer than n bytes is an error.
func readPage(file vm.File, offset int64, n uint64, buf []byte) error {
	if n > uint64(len(buf)) {
		return fmt.Errorf("%d bytes do not fit in a page: %w", n, vm.ErrShortRead)
	}

	read, err := file.ReadAt(buf[:n], offset)
	if uint64(read) < n {
		if err == nil {
			return fmt.Errorf("read %d of %d bytes at %d: %w",
				read, n, offset, vm.ErrShortRead)
		}

		return fmt.Errorf("read %d of %d bytes at %d: %w: %w",
			read, n, offset, vm.ErrShortRead, err)
	}

	clear(buf[n:])

	return nil
}
