package vmm

import (
	"fmt"
	"log"

	"github.com/sarchlab/vmcore/mem/vm"
)

// pageOut deals with the content of a page whose mapping the frame registry
// has just removed. The caller holds the entry lock. Clean pages that can be
// loaded again from their origin are dropped, dirty mapped files are written
// back and everything else goes to swap. Pages of dying processes are dropped,
// except dirty mapped-file pages, which still reach their file. On failure,
// the page stays resident and mapped.
func (m *Manager) pageOut(e *vm.PageEntry, alive bool) (PageOutAction, error) {
	dirty := m.pageDir.IsDirty(e.PID, e.VAddr)
	action := m.choosePageOut(e, dirty, alive)

	var err error
	switch action {
	case PageOutWriteBack:
		err = m.writeBack(e)
	case PageOutSwap:
		var slot int
		slot, err = m.swap.SwapOut(m.memory.Bytes(e.PAddr))
		if err == nil {
			e.Origin = vm.SwappedOrigin{Slot: slot, Prior: e.Origin}
		}
	}

	if err != nil {
		m.restoreMapping(e, dirty)
		return "", fmt.Errorf("page out process %d page 0x%x: %w",
			e.PID, e.VAddr, err)
	}

	switch action {
	case PageOutWriteBack:
		m.stats.writeBacks.Add(1)
	case PageOutSwap:
		m.stats.swapOuts.Add(1)
	default:
		m.stats.discards.Add(1)
	}

	e.Resident = false
	e.PAddr = 0

	return action, nil
}

func (m *Manager) choosePageOut(
	e *vm.PageEntry,
	dirty, alive bool,
) PageOutAction {
	if _, mapped := e.Origin.(vm.MmapOrigin); mapped {
		if dirty {
			return PageOutWriteBack
		}

		return PageOutDiscard
	}

	if !alive {
		return PageOutDiscard
	}

	switch e.Origin.(type) {
	case vm.ZeroOrigin, vm.FileOrigin:
		if !dirty && !e.Diverged {
			return PageOutDiscard
		}
	}

	return PageOutSwap
}

func (m *Manager) restoreMapping(e *vm.PageEntry, dirty bool) {
	err := m.pageDir.Map(e.PID, e.VAddr, e.PAddr, e.Writable)
	if err != nil {
		log.Panicf("cannot restore mapping of process %d page 0x%x: %v",
			e.PID, e.VAddr, err)
	}

	if dirty {
		m.pageDir.SetDirty(e.PID, e.VAddr, true)
	}
}

// writeBack writes the content of a resident mapped-file page to its file.
func (m *Manager) writeBack(e *vm.PageEntry) error {
	o, ok := e.Origin.(vm.MmapOrigin)
	if !ok {
		return nil
	}

	content := m.memory.Bytes(e.PAddr)[:o.Length]
	if _, err := o.File.WriteAt(content, o.Offset); err != nil {
		return fmt.Errorf("write back to offset %d: %w", o.Offset, err)
	}

	return nil
}

func (m *Manager) writeBackIfDirty(e *vm.PageEntry) error {
	if _, ok := e.Origin.(vm.MmapOrigin); !ok {
		return nil
	}

	if !m.pageDir.IsDirty(e.PID, e.VAddr) {
		return nil
	}

	if err := m.writeBack(e); err != nil {
		return err
	}

	m.stats.writeBacks.Add(1)

	return nil
}
