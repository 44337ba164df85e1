// Package swap keeps track of which swap slots hold evicted pages. The
// content itself is stored on a Device.
package swap

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sarchlab/vmcore/mem/vm"
)

// Store hands out swap slots and moves page content between frames and a
// Device. Slot bookkeeping is guarded by a lock that is not held during
// device I/O.
type Store struct {
	device Device

	lock      sync.Mutex
	used      []uint64
	checksums []uint64
	inUse     int
}

// NewStore creates a Store over a device.
func NewStore(device Device) *Store {
	n := device.NumSlots()

	return &Store{
		device:    device,
		used:      make([]uint64, (n+63)/64),
		checksums: make([]uint64, n),
	}
}

// Capacity returns the number of slots.
func (s *Store) Capacity() int {
	return s.device.NumSlots()
}

// InUse returns the number of slots holding a page.
func (s *Store) InUse() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.inUse
}

// SwapOut writes one page of data to a free slot and returns the slot.
func (s *Store) SwapOut(data []byte) (int, error) {
	slot, err := s.reserve()
	if err != nil {
		return 0, err
	}

	err = s.device.WriteSlot(slot, data)
	if err != nil {
		s.Discard(slot)
		return 0, fmt.Errorf("swap out: %w", err)
	}

	s.lock.Lock()
	s.checksums[slot] = xxhash.Sum64(data)
	s.lock.Unlock()

	return slot, nil
}

// SwapIn reads a slot into buf and frees the slot.
func (s *Store) SwapIn(slot int, buf []byte) error {
	if err := s.Read(slot, buf); err != nil {
		return err
	}

	s.Discard(slot)

	return nil
}

// Read copies a slot into buf without freeing it. If the content does not
// match what was written, it fails with vm.ErrSwapCorrupted.
func (s *Store) Read(slot int, buf []byte) error {
	s.lock.Lock()
	if !s.isUsed(slot) {
		s.lock.Unlock()
		return fmt.Errorf("swap in slot %d: not in use: %w",
			slot, vm.ErrSwapCorrupted)
	}
	sum := s.checksums[slot]
	s.lock.Unlock()

	err := s.device.ReadSlot(slot, buf)
	if err != nil {
		return fmt.Errorf("swap in: %w", err)
	}

	if xxhash.Sum64(buf) != sum {
		return fmt.Errorf("swap in slot %d: checksum mismatch: %w",
			slot, vm.ErrSwapCorrupted)
	}

	return nil
}

// Discard frees a slot. Discarding a free slot is a no-op.
func (s *Store) Discard(slot int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.isUsed(slot) {
		return
	}

	s.used[slot/64] &^= 1 << (slot % 64)
	s.checksums[slot] = 0
	s.inUse--
}

func (s *Store) reserve() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := s.device.NumSlots()
	for word, bitmap := range s.used {
		if bitmap == ^uint64(0) {
			continue
		}

		slot := word*64 + bits.TrailingZeros64(^bitmap)
		if slot >= n {
			break
		}

		s.used[word] |= 1 << (slot % 64)
		s.inUse++

		return slot, nil
	}

	return 0, fmt.Errorf("%d slots in use: %w", s.inUse, vm.ErrSwapFull)
}

func (s *Store) isUsed(slot int) bool {
	if slot < 0 || slot >= s.device.NumSlots() {
		return false
	}

	return s.used[slot/64]&(1<<(slot%64)) != 0
}
