package vm

import "fmt"

// An Origin describes how the content of a page is materialized when the page
// is faulted in. It is one of ZeroOrigin, FileOrigin, MmapOrigin and
// SwappedOrigin.
type Origin interface {
	fmt.Stringer
	isOrigin()
}

// ZeroOrigin is an anonymous page filled with zeroes on first access.
type ZeroOrigin struct{}

func (ZeroOrigin) isOrigin() {}

func (ZeroOrigin) String() string {
	return "zero"
}

// FileOrigin is a page lazily loaded from an executable image. ReadBytes bytes
// are read from File at Offset and the remaining ZeroBytes are zeroed.
type FileOrigin struct {
	File      File
	Offset    int64
	ReadBytes uint64
	ZeroBytes uint64
}

func (FileOrigin) isOrigin() {}

func (o FileOrigin) String() string {
	return fmt.Sprintf("file@%d+%d", o.Offset, o.ReadBytes)
}

// MmapOrigin is a page of a memory-mapped file. Length bytes are read from
// File at Offset and the rest of the page is zeroed. Dirty pages are written
// back to File rather than to swap.
type MmapOrigin struct {
	File   File
	Offset int64
	Length uint64
}

func (MmapOrigin) isOrigin() {}

func (o MmapOrigin) String() string {
	return fmt.Sprintf("mmap@%d+%d", o.Offset, o.Length)
}

// SwappedOrigin is a page whose content only lives in swap slot Slot. Prior is
// the origin the page had before it was swapped out and is restored when the
// page is swapped back in.
type SwappedOrigin struct {
	Slot  int
	Prior Origin
}

func (SwappedOrigin) isOrigin() {}

func (o SwappedOrigin) String() string {
	return fmt.Sprintf("swap#%d", o.Slot)
}

// IsSwapped tells if the origin is a SwappedOrigin.
func IsSwapped(o Origin) bool {
	_, ok := o.(SwappedOrigin)
	return ok
}
