package machine

import (
	"log"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
)

// PhysicalMemory is a contiguous range of frames starting at a base address.
// Free frames are kept on a free list and handed out lowest address first.
type PhysicalMemory struct {
	lock    sync.Mutex
	base    uint64
	storage []byte
	free    []uint64
	isFree  []bool
}

// NewPhysicalMemory creates numFrames frames starting at base. base must be
// page aligned.
func NewPhysicalMemory(base uint64, numFrames int) *PhysicalMemory {
	if !vm.IsPageAligned(base) {
		log.Panicf("physical memory base 0x%x is not page aligned", base)
	}

	m := &PhysicalMemory{
		base:    base,
		storage: make([]byte, uint64(numFrames)*vm.PageSize),
		free:    make([]uint64, 0, numFrames),
		isFree:  make([]bool, numFrames),
	}

	for i := numFrames - 1; i >= 0; i-- {
		m.free = append(m.free, base+uint64(i)*vm.PageSize)
		m.isFree[i] = true
	}

	return m
}

func (m *PhysicalMemory) index(pAddr uint64) int {
	if pAddr < m.base || !vm.IsPageAligned(pAddr) {
		log.Panicf("0x%x is not a frame", pAddr)
	}

	i := int((pAddr - m.base) >> vm.Log2PageSize)
	if i >= len(m.isFree) {
		log.Panicf("0x%x is not a frame", pAddr)
	}

	return i
}

// Acquire takes a free frame.
func (m *PhysicalMemory) Acquire() (uint64, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if len(m.free) == 0 {
		return 0, false
	}

	pAddr := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.isFree[m.index(pAddr)] = false

	return pAddr, true
}

// Release returns a frame to the free list. Releasing a free frame panics.
func (m *PhysicalMemory) Release(pAddr uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	i := m.index(pAddr)
	if m.isFree[i] {
		log.Panicf("frame 0x%x released twice", pAddr)
	}

	m.isFree[i] = true
	m.free = append(m.free, pAddr)
}

// Bytes returns the content of a frame.
func (m *PhysicalMemory) Bytes(pAddr uint64) []byte {
	offset := uint64(m.index(pAddr)) << vm.Log2PageSize
	return m.storage[offset : offset+vm.PageSize : offset+vm.PageSize]
}

// NumFrames returns the total number of frames.
func (m *PhysicalMemory) NumFrames() int {
	return len(m.isFree)
}

// NumFree returns the number of free frames.
func (m *PhysicalMemory) NumFree() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.free)
}
