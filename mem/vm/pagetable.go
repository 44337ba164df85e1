package vm

import (
	"container/list"
	"fmt"
	"sync"
)

// A PageEntry records where the content of one virtual page comes from and
// which frame currently holds it. VAddr and PID never change. The other fields
// are guarded by the entry's own lock, which is held for the whole time the
// page is materialized, evicted or removed.
type PageEntry struct {
	sync.Mutex

	PID      PID
	VAddr    uint64
	Writable bool
	Origin   Origin

	// Diverged is set once the content has been preserved in swap. A
	// diverged page no longer matches what its origin would produce and must
	// be preserved whenever it is evicted.
	Diverged bool

	Resident bool
	PAddr    uint64
}

// NewPageEntry creates a non-resident page entry.
func NewPageEntry(
	pid PID,
	vAddr uint64,
	writable bool,
	origin Origin,
) *PageEntry {
	return &PageEntry{
		PID:      pid,
		VAddr:    vAddr,
		Writable: writable,
		Origin:   origin,
	}
}

// PageInfo is a point-in-time copy of a PageEntry.
type PageInfo struct {
	PID      PID    `json:"pid"`
	VAddr    uint64 `json:"vaddr"`
	Writable bool   `json:"writable"`
	Origin   string `json:"origin"`
	Diverged bool   `json:"diverged"`
	Resident bool   `json:"resident"`
	PAddr    uint64 `json:"paddr"`
}

// Info returns a copy of the entry taken under the entry lock.
func (e *PageEntry) Info() PageInfo {
	e.Lock()
	defer e.Unlock()

	return PageInfo{
		PID:      e.PID,
		VAddr:    e.VAddr,
		Writable: e.Writable,
		Origin:   e.Origin.String(),
		Diverged: e.Diverged,
		Resident: e.Resident,
		PAddr:    e.PAddr,
	}
}

// A PageTable holds the page entries of one process.
type PageTable interface {
	// PID returns the process that owns the table.
	PID() PID

	// Lookup returns the entry of the page that contains vAddr.
	Lookup(vAddr uint64) (*PageEntry, bool)

	// Insert adds an entry. It fails with ErrPageExists if the page is
	// already tracked.
	Insert(entry *PageEntry) error

	// Remove drops the entry of the page that contains vAddr and returns it.
	Remove(vAddr uint64) (*PageEntry, bool)

	// Entries returns all entries in insertion order.
	Entries() []*PageEntry

	// Len returns the number of entries.
	Len() int
}

// NewPageTable creates an empty PageTable for a process.
func NewPageTable(pid PID) PageTable {
	return &pageTableImpl{
		pid:          pid,
		entries:      list.New(),
		entriesTable: make(map[uint64]*list.Element),
	}
}

// pageTableImpl keeps entries in a list for ordered iteration and in a map for
// lookups by page address. The lock only protects the structure; entries are
// locked individually.
type pageTableImpl struct {
	sync.Mutex
	pid          PID
	entries      *list.List
	entriesTable map[uint64]*list.Element
}

func (t *pageTableImpl) PID() PID {
	return t.pid
}

func (t *pageTableImpl) Lookup(vAddr uint64) (*PageEntry, bool) {
	t.Lock()
	defer t.Unlock()

	elem, found := t.entriesTable[PageAlign(vAddr)]
	if !found {
		return nil, false
	}

	return elem.Value.(*PageEntry), true
}

func (t *pageTableImpl) Insert(entry *PageEntry) error {
	if !IsPageAligned(entry.VAddr) {
		return fmt.Errorf("page 0x%x: %w", entry.VAddr, ErrInvalidAddress)
	}

	if entry.PID != t.pid {
		return fmt.Errorf("page 0x%x of process %d inserted into table of %d: %w",
			entry.VAddr, entry.PID, t.pid, ErrInvalidAddress)
	}

	t.Lock()
	defer t.Unlock()

	if _, found := t.entriesTable[entry.VAddr]; found {
		return fmt.Errorf("page 0x%x: %w", entry.VAddr, ErrPageExists)
	}

	elem := t.entries.PushBack(entry)
	t.entriesTable[entry.VAddr] = elem

	return nil
}

func (t *pageTableImpl) Remove(vAddr uint64) (*PageEntry, bool) {
	t.Lock()
	defer t.Unlock()

	vAddr = PageAlign(vAddr)

	elem, found := t.entriesTable[vAddr]
	if !found {
		return nil, false
	}

	t.entries.Remove(elem)
	delete(t.entriesTable, vAddr)

	return elem.Value.(*PageEntry), true
}

func (t *pageTableImpl) Entries() []*PageEntry {
	t.Lock()
	defer t.Unlock()

	entries := make([]*PageEntry, 0, t.entries.Len())
	for e := t.entries.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(*PageEntry))
	}

	return entries
}

func (t *pageTableImpl) Len() int {
	t.Lock()
	defer t.Unlock()

	return t.entries.Len()
}
