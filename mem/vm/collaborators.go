package vm

import "io"

// PageDirectory is the hardware virtual-to-physical mapping table. All
// addresses passed to it must be page aligned.
type PageDirectory interface {
	// Mapping returns the physical address vAddr is mapped to.
	Mapping(pid PID, vAddr uint64) (pAddr uint64, ok bool)

	// Map installs a mapping with clear accessed and dirty bits. It fails if
	// vAddr is already mapped or the table cannot hold more mappings.
	Map(pid PID, vAddr, pAddr uint64, writable bool) error

	// Unmap removes the mapping of vAddr, if any. The accessed and dirty bits
	// of the page stay readable until the page is mapped again.
	Unmap(pid PID, vAddr uint64)

	IsAccessed(pid PID, vAddr uint64) bool
	SetAccessed(pid PID, vAddr uint64, accessed bool)
	IsDirty(pid PID, vAddr uint64) bool
	SetDirty(pid PID, vAddr uint64, dirty bool)
}

// PhysicalMemory hands out raw frames.
type PhysicalMemory interface {
	// Acquire returns a free frame. ok is false when memory is exhausted.
	Acquire() (pAddr uint64, ok bool)

	// Release returns a frame to the free pool.
	Release(pAddr uint64)

	// Bytes returns the kernel view of the content of a frame. The returned
	// slice is PageSize long and aliases the frame.
	Bytes(pAddr uint64) []byte
}

// File is the backing file of a FileOrigin or MmapOrigin page.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// ProcessRegistry tells if a process still exists.
type ProcessRegistry interface {
	Alive(pid PID) bool
}
