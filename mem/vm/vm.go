// Package vm defines the virtual memory core: page geometry, the origin of a
// page's content, the per-process page table and the interfaces of the
// hardware and storage collaborators the core calls into.
package vm

// PID stands for Process ID.
type PID uint32

// Page geometry. Frames and pages have the same size.
const (
	Log2PageSize = 12
	PageSize     = uint64(1) << Log2PageSize
	PageMask     = PageSize - 1
)

// PageAlign rounds addr down to the start of its page.
func PageAlign(addr uint64) uint64 {
	return addr &^ PageMask
}

// IsPageAligned tells if addr is the first byte of a page.
func IsPageAligned(addr uint64) bool {
	return addr&PageMask == 0
}

// PageOffset returns the offset of addr within its page.
func PageOffset(addr uint64) uint64 {
	return addr & PageMask
}

// NumPages returns the number of pages needed to hold length bytes.
func NumPages(length uint64) uint64 {
	return (length + PageMask) >> Log2PageSize
}
