package swap

import (
	"fmt"
	"os"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
)

// A Device is the block storage behind a Store. Every slot holds exactly one
// page.
type Device interface {
	// NumSlots returns the number of page-sized slots.
	NumSlots() int

	// ReadSlot fills buf with the content of a slot.
	ReadSlot(slot int, buf []byte) error

	// WriteSlot stores buf into a slot.
	WriteSlot(slot int, buf []byte) error
}

func checkSlotIO(d Device, slot int, buf []byte) error {
	if slot < 0 || slot >= d.NumSlots() {
		return fmt.Errorf("slot %d out of range [0, %d)", slot, d.NumSlots())
	}

	if uint64(len(buf)) != vm.PageSize {
		return fmt.Errorf("slot buffer is %d bytes, want %d", len(buf), vm.PageSize)
	}

	return nil
}

// MemoryDevice keeps swap slots in memory.
type MemoryDevice struct {
	lock  sync.Mutex
	slots [][]byte
}

// NewMemoryDevice creates a MemoryDevice with numSlots slots.
func NewMemoryDevice(numSlots int) *MemoryDevice {
	return &MemoryDevice{slots: make([][]byte, numSlots)}
}

// NumSlots returns the number of slots.
func (d *MemoryDevice) NumSlots() int {
	return len(d.slots)
}

// ReadSlot copies a slot into buf. A slot never written reads as zeroes.
func (d *MemoryDevice) ReadSlot(slot int, buf []byte) error {
	if err := checkSlotIO(d, slot, buf); err != nil {
		return err
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.slots[slot] == nil {
		clear(buf)
		return nil
	}

	copy(buf, d.slots[slot])

	return nil
}

// WriteSlot copies buf into a slot.
func (d *MemoryDevice) WriteSlot(slot int, buf []byte) error {
	if err := checkSlotIO(d, slot, buf); err != nil {
		return err
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.slots[slot] == nil {
		d.slots[slot] = make([]byte, vm.PageSize)
	}

	copy(d.slots[slot], buf)

	return nil
}

// FileDevice keeps swap slots in a file. Slot i lives at offset i*PageSize.
type FileDevice struct {
	file     *os.File
	numSlots int
}

// NewFileDevice creates or truncates the file at path and sizes it to hold
// numSlots slots.
func NewFileDevice(path string, numSlots int) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open swap file: %w", err)
	}

	err = file.Truncate(int64(numSlots) * int64(vm.PageSize))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("size swap file: %w", err)
	}

	return &FileDevice{file: file, numSlots: numSlots}, nil
}

// NumSlots returns the number of slots.
func (d *FileDevice) NumSlots() int {
	return d.numSlots
}

// ReadSlot reads a slot from the file.
func (d *FileDevice) ReadSlot(slot int, buf []byte) error {
	if err := checkSlotIO(d, slot, buf); err != nil {
		return err
	}

	n, err := d.file.ReadAt(buf, int64(slot)*int64(vm.PageSize))
	if err != nil {
		return fmt.Errorf("read swap slot %d: %w", slot, err)
	}

	if n != len(buf) {
		return fmt.Errorf("read swap slot %d: %d bytes: %w", slot, n, vm.ErrShortRead)
	}

	return nil
}

// WriteSlot writes a slot to the file.
func (d *FileDevice) WriteSlot(slot int, buf []byte) error {
	if err := checkSlotIO(d, slot, buf); err != nil {
		return err
	}

	_, err := d.file.WriteAt(buf, int64(slot)*int64(vm.PageSize))
	if err != nil {
		return fmt.Errorf("write swap slot %d: %w", slot, err)
	}

	return nil
}

// Close closes the swap file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
