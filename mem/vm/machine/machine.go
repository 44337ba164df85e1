package machine

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/mem/vm/vmm"
)

// ErrAccessViolation means a user access faulted and the fault could not be
// resolved. The process must be terminated.
var ErrAccessViolation = errors.New("access violation")

// A Kernel resolves the faults raised by a Machine.
type Kernel interface {
	OnPageFault(f vmm.Fault) vmm.Outcome
	AddressSpace(pid vm.PID) (*vmm.AddressSpace, bool)
}

// Machine performs memory accesses through a PageDirectory the way a
// processor does.
type Machine struct {
	pageDir *PageDirectory
	memory  *PhysicalMemory
	kernel  Kernel
}

// New creates a machine.
func New(pageDir *PageDirectory, memory *PhysicalMemory, kernel Kernel) *Machine {
	return &Machine{
		pageDir: pageDir,
		memory:  memory,
		kernel:  kernel,
	}
}

// Read reads user memory of process pid at vAddr into buf. sp is the user
// stack pointer.
func (m *Machine) Read(pid vm.PID, vAddr uint64, buf []byte, sp uint64) error {
	return m.access(pid, vAddr, buf, sp, false)
}

// Write writes data into user memory of process pid at vAddr. sp is the user
// stack pointer.
func (m *Machine) Write(pid vm.PID, vAddr uint64, data []byte, sp uint64) error {
	return m.access(pid, vAddr, data, sp, true)
}

func (m *Machine) access(
	pid vm.PID,
	vAddr uint64,
	buf []byte,
	sp uint64,
	write bool,
) error {
	for len(buf) > 0 {
		offset := vm.PageOffset(vAddr)
		n := min(uint64(len(buf)), vm.PageSize-offset)
		chunk := buf[:n]

		for !m.pageDir.translate(pid, vAddr, write, m.copier(offset, chunk, write)) {
			outcome := m.kernel.OnPageFault(vmm.Fault{
				PID:          pid,
				Addr:         vAddr,
				Write:        write,
				User:         true,
				StackPointer: sp,
			})

			if outcome == vmm.Unresolved {
				return fmt.Errorf("process %d address 0x%x: %w",
					pid, vAddr, ErrAccessViolation)
			}

			runtime.Gosched()
		}

		vAddr += n
		buf = buf[n:]
	}

	return nil
}

func (m *Machine) copier(offset uint64, buf []byte, write bool) func(uint64) {
	return func(pAddr uint64) {
		frame := m.memory.Bytes(pAddr)[offset:]
		if write {
			copy(frame, buf)
		} else {
			copy(buf, frame)
		}
	}
}

// CopyOut copies data from the kernel into user memory, the way a system
// call fills a user buffer. The user pages are pinned for the duration of
// the copy and never fault.
func (m *Machine) CopyOut(pid vm.PID, vAddr uint64, data []byte) error {
	return m.kernelAccess(pid, vAddr, data, true)
}

// CopyIn copies user memory into buf, the way a system call reads a user
// buffer.
func (m *Machine) CopyIn(pid vm.PID, vAddr uint64, buf []byte) error {
	return m.kernelAccess(pid, vAddr, buf, false)
}

func (m *Machine) kernelAccess(
	pid vm.PID,
	vAddr uint64,
	buf []byte,
	write bool,
) error {
	as, alive := m.kernel.AddressSpace(pid)
	if !alive {
		return fmt.Errorf("process %d: %w", pid, vm.ErrProcessGone)
	}

	length := uint64(len(buf))
	if err := as.PinRange(vAddr, length, write); err != nil {
		return err
	}
	defer as.UnpinRange(vAddr, length)

	for len(buf) > 0 {
		offset := vm.PageOffset(vAddr)
		n := min(uint64(len(buf)), vm.PageSize-offset)

		if !m.pageDir.translate(pid, vAddr, write, m.copier(offset, buf[:n], write)) {
			panic(fmt.Sprintf("pinned page 0x%x of process %d is not mapped",
				vm.PageAlign(vAddr), pid))
		}

		vAddr += n
		buf = buf[n:]
	}

	return nil
}
