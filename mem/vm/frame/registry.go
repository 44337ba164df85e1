// Package frame implements the kernel-wide frame registry. The registry knows
// which process and virtual page occupy every in-use physical frame and
// reclaims frames with a clock (second-chance) scan when physical memory runs
// out.
package frame

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/sim/hooking"
)

// FrameInfo is a point-in-time copy of a registered frame.
type FrameInfo struct {
	PAddr  uint64 `json:"paddr"`
	PID    vm.PID `json:"pid"`
	VAddr  uint64 `json:"vaddr"`
	Pinned bool   `json:"pinned"`
}

// A Victim is a frame selected by the eviction scan, together with the page
// that occupied it.
type Victim struct {
	PAddr uint64
	PID   vm.PID
	VAddr uint64
}

// An Evictor preserves the content of a page whose frame is being reclaimed.
// When Evict is called, the hardware mapping of the page has already been
// removed and the frame is pinned. If Evict returns an error, the page must
// be left resident and mapped, and the allocation that triggered the eviction
// fails.
type Evictor interface {
	Evict(victim Victim) error
}

type pageKey struct {
	pid   vm.PID
	vAddr uint64
}

type frameEntry struct {
	FrameInfo

	// evicting is set while the Evictor runs for this frame.
	evicting bool

	// orphaned is set when the frame was released while evicting. The
	// allocation that started the eviction keeps the frame.
	orphaned bool
}

func (e *frameEntry) key() pageKey {
	return pageKey{pid: e.PID, vAddr: e.VAddr}
}

// Registry is the frame table. All structural state, including the clock
// hand and the pin flags, is guarded by a single lock that is never held
// while page content is being read or written.
type Registry struct {
	*hooking.HookableBase

	name    string
	memory  vm.PhysicalMemory
	pageDir vm.PageDirectory

	lock    sync.Mutex
	evictor Evictor
	ring    []*frameEntry
	byPAddr map[uint64]*frameEntry
	byPage  map[pageKey]*frameEntry
	hand    int
}

// Name returns the name of the registry.
func (r *Registry) Name() string {
	return r.name
}

// SetEvictor sets the component that preserves evicted pages. Without an
// evictor, the content of evicted pages is dropped.
func (r *Registry) SetEvictor(e Evictor) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.evictor = e
}

// Allocate returns a frame for the page vAddr of process pid. The frame is
// registered under the page and pinned; the caller unpins it once the content
// is loaded and the mapping is installed. When physical memory is exhausted,
// a frame is reclaimed from another page with the clock scan. Allocate fails
// with vm.ErrOutOfFrames if every frame is pinned, if every unpinned frame
// stays in use throughout the scan, or if the victim cannot be preserved.
func (r *Registry) Allocate(pid vm.PID, vAddr uint64) (uint64, error) {
	if !vm.IsPageAligned(vAddr) {
		return 0, fmt.Errorf("allocate for 0x%x: %w", vAddr, vm.ErrInvalidAddress)
	}

	r.lock.Lock()

	if _, taken := r.byPage[pageKey{pid, vAddr}]; taken {
		r.lock.Unlock()
		return 0, fmt.Errorf("process %d page 0x%x already has a frame: %w",
			pid, vAddr, vm.ErrPageExists)
	}

	if pAddr, ok := r.memory.Acquire(); ok {
		e := r.insert(pAddr, pid, vAddr)
		r.lock.Unlock()

		r.InvokeHook(hooking.HookCtx{
			Domain: r,
			Pos:    HookPosAllocate,
			Item:   e,
		})

		return pAddr, nil
	}

	victim := r.selectVictim()
	if victim == nil {
		r.lock.Unlock()
		return 0, fmt.Errorf("process %d page 0x%x: no evictable frame among %d: %w",
			pid, vAddr, len(r.ring), vm.ErrOutOfFrames)
	}

	v := r.detach(victim)
	evictor := r.evictor
	r.lock.Unlock()

	var err error
	if evictor != nil {
		err = evictor.Evict(v)
	}

	return r.finishEviction(victim, v, pid, vAddr, err)
}

func (r *Registry) detach(victim *frameEntry) Victim {
	victim.Pinned = true
	victim.evicting = true
	r.pageDir.SetAccessed(victim.PID, victim.VAddr, false)
	r.pageDir.Unmap(victim.PID, victim.VAddr)

	return Victim{
		PAddr: victim.PAddr,
		PID:   victim.PID,
		VAddr: victim.VAddr,
	}
}

func (r *Registry) finishEviction(
	victim *frameEntry,
	v Victim,
	pid vm.PID,
	vAddr uint64,
	evictErr error,
) (uint64, error) {
	r.lock.Lock()

	victim.evicting = false

	if evictErr != nil && !victim.orphaned {
		victim.Pinned = false
		r.lock.Unlock()

		return 0, fmt.Errorf("evict process %d page 0x%x: %w: %w",
			v.PID, v.VAddr, vm.ErrOutOfFrames, evictErr)
	}

	if !victim.orphaned {
		delete(r.byPage, victim.key())
	}

	victim.orphaned = false
	victim.PID = pid
	victim.VAddr = vAddr
	victim.Pinned = true
	r.byPage[victim.key()] = victim
	e := victim.FrameInfo

	r.lock.Unlock()

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosEvict,
		Item:   v,
		Detail: e,
	})

	return e.PAddr, nil
}

func (r *Registry) insert(pAddr uint64, pid vm.PID, vAddr uint64) FrameInfo {
	if _, found := r.byPAddr[pAddr]; found {
		panic(fmt.Sprintf("frame 0x%x handed out twice", pAddr))
	}

	e := &frameEntry{
		FrameInfo: FrameInfo{
			PAddr:  pAddr,
			PID:    pid,
			VAddr:  vAddr,
			Pinned: true,
		},
	}

	r.ring = append(r.ring, e)
	r.byPAddr[pAddr] = e
	r.byPage[e.key()] = e

	return e.FrameInfo
}

// Release unregisters a frame, removes its hardware mapping if it is still
// installed and returns it to physical memory. Releasing an unknown frame is
// a no-op.
func (r *Registry) Release(pAddr uint64) {
	r.lock.Lock()

	e, found := r.byPAddr[pAddr]
	if !found {
		r.lock.Unlock()
		return
	}

	if e.evicting {
		if !e.orphaned {
			delete(r.byPage, e.key())
			e.orphaned = true
		}
		r.lock.Unlock()

		return
	}

	if mapped, ok := r.pageDir.Mapping(e.PID, e.VAddr); ok && mapped == pAddr {
		r.pageDir.Unmap(e.PID, e.VAddr)
	}

	r.remove(e)
	r.memory.Release(pAddr)
	entry := e.FrameInfo

	r.lock.Unlock()

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosRelease,
		Item:   entry,
	})
}

// ReleaseProcess releases every frame owned by pid.
func (r *Registry) ReleaseProcess(pid vm.PID) {
	r.lock.Lock()
	var owned []uint64
	for _, e := range r.ring {
		if e.PID == pid && !e.orphaned {
			owned = append(owned, e.PAddr)
		}
	}
	r.lock.Unlock()

	for _, pAddr := range owned {
		r.Release(pAddr)
	}
}

func (r *Registry) remove(e *frameEntry) {
	index := -1
	for i, candidate := range r.ring {
		if candidate == e {
			index = i
			break
		}
	}

	if index < 0 {
		panic("frame entry is not in the ring")
	}

	r.ring = append(r.ring[:index], r.ring[index+1:]...)
	if index < r.hand {
		r.hand--
	}
	if r.hand >= len(r.ring) {
		r.hand = 0
	}

	delete(r.byPAddr, e.PAddr)
	delete(r.byPage, e.key())
}

// Pin makes a frame ineligible for eviction. It fails with vm.ErrFrameBusy if
// the frame is already being evicted.
func (r *Registry) Pin(pAddr uint64) error {
	return r.setPinned(pAddr, true)
}

// Unpin makes a frame eligible for eviction again.
func (r *Registry) Unpin(pAddr uint64) error {
	return r.setPinned(pAddr, false)
}

func (r *Registry) setPinned(pAddr uint64, pinned bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, found := r.byPAddr[pAddr]
	if !found {
		return fmt.Errorf("frame 0x%x: %w", pAddr, vm.ErrNoFrame)
	}

	if e.evicting {
		if pinned {
			return fmt.Errorf("frame 0x%x: %w", pAddr, vm.ErrFrameBusy)
		}

		return nil
	}

	e.Pinned = pinned

	return nil
}

// Find returns the frame that holds the page vAddr of process pid.
func (r *Registry) Find(pid vm.PID, vAddr uint64) (FrameInfo, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, found := r.byPage[pageKey{pid, vm.PageAlign(vAddr)}]
	if !found {
		return FrameInfo{}, false
	}

	return e.FrameInfo, true
}

// Lookup returns the registry entry of a frame.
func (r *Registry) Lookup(pAddr uint64) (FrameInfo, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, found := r.byPAddr[pAddr]
	if !found {
		return FrameInfo{}, false
	}

	return e.FrameInfo, true
}

// Entries returns all registered frames in clock order.
func (r *Registry) Entries() []FrameInfo {
	r.lock.Lock()
	defer r.lock.Unlock()

	entries := make([]FrameInfo, 0, len(r.ring))
	for _, e := range r.ring {
		entries = append(entries, e.FrameInfo)
	}

	return entries
}

// Len returns the number of registered frames.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.ring)
}

// Hand returns the position of the clock hand in clock order.
func (r *Registry) Hand() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.hand
}
