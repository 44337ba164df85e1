// Package machine provides software versions of the hardware the virtual
// memory core runs on: a page directory, physical memory and a processor
// that performs user accesses and raises page faults.
package machine

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
)

type pte struct {
	pAddr    uint64
	writable bool
	present  bool
	accessed bool
	dirty    bool
}

type pteKey struct {
	pid   vm.PID
	vAddr uint64
}

// PageDirectory is a flat mapping table shared by all processes. Like an
// x86 page table entry, an entry keeps its accessed and dirty bits when it
// is unmapped.
type PageDirectory struct {
	lock       sync.Mutex
	entries    map[pteKey]*pte
	capacity   int
	numPresent int
}

// NewPageDirectory creates a page directory that holds at most capacity
// mappings. A capacity of 0 means no limit.
func NewPageDirectory(capacity int) *PageDirectory {
	return &PageDirectory{
		entries:  make(map[pteKey]*pte),
		capacity: capacity,
	}
}

func mustBeAligned(vAddr uint64) {
	if !vm.IsPageAligned(vAddr) {
		panic(fmt.Sprintf("address 0x%x is not page aligned", vAddr))
	}
}

func (d *PageDirectory) entry(pid vm.PID, vAddr uint64) *pte {
	mustBeAligned(vAddr)
	return d.entries[pteKey{pid, vAddr}]
}

// Mapping returns the frame vAddr is mapped to.
func (d *PageDirectory) Mapping(pid vm.PID, vAddr uint64) (uint64, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()

	e := d.entry(pid, vAddr)
	if e == nil || !e.present {
		return 0, false
	}

	return e.pAddr, true
}

// Map installs a mapping.
func (d *PageDirectory) Map(pid vm.PID, vAddr, pAddr uint64, writable bool) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	e := d.entry(pid, vAddr)
	if e != nil && e.present {
		return fmt.Errorf("process %d page 0x%x is already mapped", pid, vAddr)
	}

	if d.capacity > 0 && d.numPresent >= d.capacity {
		return fmt.Errorf("page directory holds %d mappings", d.numPresent)
	}

	d.entries[pteKey{pid, vAddr}] = &pte{
		pAddr:    pAddr,
		writable: writable,
		present:  true,
	}
	d.numPresent++

	return nil
}

// Unmap removes the mapping of vAddr.
func (d *PageDirectory) Unmap(pid vm.PID, vAddr uint64) {
	d.lock.Lock()
	defer d.lock.Unlock()

	e := d.entry(pid, vAddr)
	if e == nil || !e.present {
		return
	}

	e.present = false
	d.numPresent--
}

// IsAccessed returns the accessed bit of a page.
func (d *PageDirectory) IsAccessed(pid vm.PID, vAddr uint64) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	e := d.entry(pid, vAddr)

	return e != nil && e.accessed
}

// SetAccessed sets the accessed bit of a page.
func (d *PageDirectory) SetAccessed(pid vm.PID, vAddr uint64, accessed bool) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if e := d.entry(pid, vAddr); e != nil {
		e.accessed = accessed
	}
}

// IsDirty returns the dirty bit of a page.
func (d *PageDirectory) IsDirty(pid vm.PID, vAddr uint64) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	e := d.entry(pid, vAddr)

	return e != nil && e.dirty
}

// SetDirty sets the dirty bit of a page.
func (d *PageDirectory) SetDirty(pid vm.PID, vAddr uint64, dirty bool) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if e := d.entry(pid, vAddr); e != nil {
		e.dirty = dirty
	}
}

// Len returns the number of installed mappings.
func (d *PageDirectory) Len() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.numPresent
}

// translate looks up vAddr the way the MMU does. If the page is mapped with
// sufficient rights, it sets the accessed bit, and the dirty bit for writes,
// and calls access with the frame while the table is locked. Unmapping waits
// for in-flight accesses.
func (d *PageDirectory) translate(
	pid vm.PID,
	vAddr uint64,
	write bool,
	access func(pAddr uint64),
) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	e := d.entry(pid, vm.PageAlign(vAddr))
	if e == nil || !e.present || (write && !e.writable) {
		return false
	}

	e.accessed = true
	if write {
		e.dirty = true
	}

	access(e.pAddr)

	return true
}
