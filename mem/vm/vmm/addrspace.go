package vmm

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
)

// MapID identifies a memory-mapped file within an address space.
type MapID int

// Mapping describes a memory-mapped file.
type Mapping struct {
	ID     MapID  `json:"id"`
	VAddr  uint64 `json:"vaddr"`
	Length uint64 `json:"length"`
}

// An AddressSpace is the set of pages of one process.
type AddressSpace struct {
	manager *Manager
	table   vm.PageTable

	// dying is guarded by the manager lock.
	dying bool

	lock      sync.Mutex
	mappings  map[MapID]Mapping
	nextMapID MapID
}

// PID returns the owning process.
func (as *AddressSpace) PID() vm.PID {
	return as.table.PID()
}

// Pages returns a copy of every page entry in registration order.
func (as *AddressSpace) Pages() []vm.PageInfo {
	entries := as.table.Entries()

	pages := make([]vm.PageInfo, 0, len(entries))
	for _, e := range entries {
		pages = append(pages, e.Info())
	}

	return pages
}

// Page returns a copy of the page entry that covers vAddr.
func (as *AddressSpace) Page(vAddr uint64) (vm.PageInfo, bool) {
	e, found := as.table.Lookup(vAddr)
	if !found {
		return vm.PageInfo{}, false
	}

	return e.Info(), true
}

// Mappings returns the memory-mapped files.
func (as *AddressSpace) Mappings() []Mapping {
	as.lock.Lock()
	defer as.lock.Unlock()

	mappings := make([]Mapping, 0, len(as.mappings))
	for id := MapID(0); id < as.nextMapID; id++ {
		if m, found := as.mappings[id]; found {
			mappings = append(mappings, m)
		}
	}

	return mappings
}

func (as *AddressSpace) checkRange(vAddr, length uint64) error {
	cfg := as.manager.config

	if !vm.IsPageAligned(vAddr) {
		return fmt.Errorf("0x%x is not page aligned: %w", vAddr, vm.ErrInvalidAddress)
	}

	if vAddr < cfg.MinUserAddr || length > cfg.UserTop-vAddr {
		return fmt.Errorf("[0x%x, +0x%x) is outside user space: %w",
			vAddr, length, vm.ErrInvalidAddress)
	}

	return nil
}

// insertAll inserts entries. If one of them cannot be inserted, the ones
// already inserted are taken out again.
func (as *AddressSpace) insertAll(entries []*vm.PageEntry) error {
	for i, e := range entries {
		err := as.table.Insert(e)
		if err == nil {
			continue
		}

		for _, inserted := range entries[:i] {
			as.table.Remove(inserted.VAddr)
		}

		return err
	}

	return nil
}

// RegisterSegment lays out a segment of an executable. The segment starts at
// offset in file and is mapped at vAddr. Its first readBytes bytes come from
// the file and the following zeroBytes bytes are zero. Pages that take no
// bytes from the file are zero pages.
func (as *AddressSpace) RegisterSegment(
	file vm.File,
	offset int64,
	vAddr uint64,
	readBytes, zeroBytes uint64,
	writable bool,
) error {
	size := readBytes + zeroBytes
	if size%vm.PageSize != 0 || offset%int64(vm.PageSize) != 0 {
		return fmt.Errorf("segment at 0x%x is not page sized: %w",
			vAddr, vm.ErrInvalidAddress)
	}

	if err := as.checkRange(vAddr, size); err != nil {
		return err
	}

	pid := as.PID()
	entries := make([]*vm.PageEntry, 0, size/vm.PageSize)
	for page := uint64(0); page < size; page += vm.PageSize {
		pageRead := min(readBytes, vm.PageSize)
		readBytes -= pageRead

		var origin vm.Origin = vm.ZeroOrigin{}
		if pageRead > 0 {
			origin = vm.FileOrigin{
				File:      file,
				Offset:    offset + int64(page),
				ReadBytes: pageRead,
				ZeroBytes: vm.PageSize - pageRead,
			}
		}

		entries = append(entries,
			vm.NewPageEntry(pid, vAddr+page, writable, origin))
	}

	return as.insertAll(entries)
}

// RegisterMapping maps the first length bytes of file at vAddr. The pages
// are loaded lazily and dirty pages are written back to the file.
func (as *AddressSpace) RegisterMapping(
	file vm.File,
	vAddr, length uint64,
) (MapID, error) {
	if length == 0 {
		return 0, fmt.Errorf("empty mapping at 0x%x: %w", vAddr, vm.ErrInvalidAddress)
	}

	size := vm.NumPages(length) * vm.PageSize
	if err := as.checkRange(vAddr, size); err != nil {
		return 0, err
	}

	pid := as.PID()
	entries := make([]*vm.PageEntry, 0, size/vm.PageSize)
	for page := uint64(0); page < size; page += vm.PageSize {
		origin := vm.MmapOrigin{
			File:   file,
			Offset: int64(page),
			Length: min(length-page, vm.PageSize),
		}

		entries = append(entries, vm.NewPageEntry(pid, vAddr+page, true, origin))
	}

	if err := as.insertAll(entries); err != nil {
		return 0, err
	}

	as.lock.Lock()
	defer as.lock.Unlock()

	if as.mappings == nil {
		as.mappings = make(map[MapID]Mapping)
	}

	id := as.nextMapID
	as.nextMapID++
	as.mappings[id] = Mapping{ID: id, VAddr: vAddr, Length: length}

	return id, nil
}

// Unmap removes a memory-mapped file. Dirty resident pages are written back
// to the file first.
func (as *AddressSpace) Unmap(id MapID) error {
	as.lock.Lock()
	m, found := as.mappings[id]
	delete(as.mappings, id)
	as.lock.Unlock()

	if !found {
		return fmt.Errorf("mapping %d: %w", id, vm.ErrNoPage)
	}

	var errs []error
	for page := uint64(0); page < m.Length; page += vm.PageSize {
		e, found := as.lockEntry(m.VAddr + page)
		if !found {
			continue
		}

		errs = append(errs, as.removeLocked(e, true))
		e.Unlock()
	}

	return errors.Join(errs...)
}

// lockEntry returns the locked entry of the page that covers vAddr. An entry
// removed while waiting for its lock is not returned.
func (as *AddressSpace) lockEntry(vAddr uint64) (*vm.PageEntry, bool) {
	e, found := as.table.Lookup(vAddr)
	if !found {
		return nil, false
	}

	e.Lock()

	current, found := as.table.Lookup(vAddr)
	if !found || current != e {
		e.Unlock()
		return nil, false
	}

	return e, true
}

// Resolve makes the page that covers vAddr resident.
func (as *AddressSpace) Resolve(vAddr uint64) error {
	e, found := as.table.Lookup(vAddr)
	if !found {
		return fmt.Errorf("process %d address 0x%x: %w", as.PID(), vAddr, vm.ErrNoPage)
	}

	return as.resolveEntry(e, false, "")
}

func (as *AddressSpace) resolveEntry(
	e *vm.PageEntry,
	pin bool,
	taskID string,
) error {
	locked, found := as.lockEntry(e.VAddr)
	if !found || locked != e {
		if found {
			locked.Unlock()
		}

		return fmt.Errorf("process %d page 0x%x: %w", as.PID(), e.VAddr, vm.ErrNoPage)
	}
	defer e.Unlock()

	if as.gone() {
		return fmt.Errorf("process %d page 0x%x: %w", as.PID(), e.VAddr, vm.ErrProcessGone)
	}

	return as.manager.resolveLocked(e, pin, taskID)
}

// gone tells if the address space is being torn down. Teardown snapshots the
// page table only after marking the space, so a page that is in the table and
// locked when gone returns false is still released by the teardown.
func (as *AddressSpace) gone() bool {
	as.manager.lock.Lock()
	defer as.manager.lock.Unlock()

	return as.dying
}

// GrowStack adds a zero page that covers addr and makes it resident. addr
// must lie in the stack region. If the page cannot be made resident, it is
// not added.
func (as *AddressSpace) GrowStack(addr uint64) error {
	return as.growStack(addr, "")
}

func (as *AddressSpace) growStack(addr uint64, taskID string) error {
	if !as.manager.config.InStackRange(addr) {
		return fmt.Errorf("0x%x is outside the stack: %w", addr, vm.ErrInvalidAddress)
	}

	e := vm.NewPageEntry(as.PID(), vm.PageAlign(addr), true, vm.ZeroOrigin{})
	e.Lock()
	defer e.Unlock()

	if err := as.table.Insert(e); err != nil {
		return err
	}

	if as.gone() {
		as.table.Remove(e.VAddr)
		return fmt.Errorf("process %d stack page 0x%x: %w",
			as.PID(), e.VAddr, vm.ErrProcessGone)
	}

	if err := as.manager.resolveLocked(e, false, taskID); err != nil {
		as.table.Remove(e.VAddr)
		return err
	}

	return nil
}

// Remove drops the page that covers vAddr. Its frame is released without
// preserving the content and its swap slot is discarded.
func (as *AddressSpace) Remove(vAddr uint64) error {
	e, found := as.lockEntry(vAddr)
	if !found {
		return fmt.Errorf("process %d address 0x%x: %w", as.PID(), vAddr, vm.ErrNoPage)
	}
	defer e.Unlock()

	return as.removeLocked(e, false)
}

func (as *AddressSpace) removeLocked(e *vm.PageEntry, writeBack bool) error {
	m := as.manager

	var err error
	if writeBack && e.Resident {
		err = m.writeBackIfDirty(e)
	}

	as.table.Remove(e.VAddr)

	if e.Resident {
		m.frames.Release(e.PAddr)
		e.Resident = false
		e.PAddr = 0
	}

	if o, swapped := e.Origin.(vm.SwappedOrigin); swapped {
		m.swap.Discard(o.Slot)
	}

	return err
}

// Teardown destroys the address space. See Manager.Teardown.
func (as *AddressSpace) Teardown() {
	as.manager.Teardown(as.PID())
}

func (as *AddressSpace) teardown() {
	for _, entry := range as.table.Entries() {
		e, found := as.lockEntry(entry.VAddr)
		if !found {
			continue
		}

		// A process that exits unmaps its files, which writes them back.
		// Nobody is left to report a failure to.
		_ = as.removeLocked(e, true)
		e.Unlock()
	}

	as.lock.Lock()
	as.mappings = nil
	as.lock.Unlock()
}

// PinRange makes every page in [vAddr, vAddr+length) resident and pins it,
// so that the kernel can access the range without faulting. If write is set,
// every page must be writable. On failure, nothing stays pinned.
func (as *AddressSpace) PinRange(vAddr, length uint64, write bool) error {
	if length == 0 {
		return nil
	}

	start := vm.PageAlign(vAddr)
	end := vm.PageAlign(vAddr+length-1) + vm.PageSize

	for page := start; page < end; page += vm.PageSize {
		err := as.pinPage(page, write)
		if err != nil {
			as.unpinPages(start, page)
			return err
		}
	}

	return nil
}

func (as *AddressSpace) pinPage(page uint64, write bool) error {
	for {
		e, found := as.table.Lookup(page)
		if !found {
			return fmt.Errorf("process %d page 0x%x: %w", as.PID(), page, vm.ErrNoPage)
		}

		if write && !e.Writable {
			return fmt.Errorf("process %d page 0x%x is read-only: %w",
				as.PID(), page, vm.ErrInvalidAddress)
		}

		err := as.resolveEntry(e, true, "")
		if !errors.Is(err, vm.ErrFrameBusy) {
			return err
		}

		// The frame is being evicted. Once the eviction finishes, the page
		// is no longer resident and can be loaded again.
		runtime.Gosched()
	}
}

// UnpinRange undoes PinRange.
func (as *AddressSpace) UnpinRange(vAddr, length uint64) {
	if length == 0 {
		return
	}

	as.unpinPages(vm.PageAlign(vAddr), vm.PageAlign(vAddr+length-1)+vm.PageSize)
}

func (as *AddressSpace) unpinPages(start, end uint64) {
	for page := start; page < end; page += vm.PageSize {
		e, found := as.lockEntry(page)
		if !found {
			continue
		}

		if e.Resident {
			_ = as.manager.frames.Unpin(e.PAddr)
		}

		e.Unlock()
	}
}
