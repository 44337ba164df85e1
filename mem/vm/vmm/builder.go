package vmm

import (
	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/mem/vm/frame"
	"github.com/sarchlab/vmcore/mem/vm/swap"
	"github.com/sarchlab/vmcore/sim/hooking"
)

// A Builder can build Managers.
type Builder struct {
	config       Config
	memory       vm.PhysicalMemory
	pageDir      vm.PageDirectory
	swap         *swap.Store
	numSwapSlots int
}

// MakeBuilder creates a new builder with the default layout and an in-memory
// swap device of 1024 slots.
func MakeBuilder() Builder {
	return Builder{
		config:       DefaultConfig(),
		numSwapSlots: 1024,
	}
}

// WithConfig sets the address space layout.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithPhysicalMemory sets the allocator frames are taken from.
func (b Builder) WithPhysicalMemory(memory vm.PhysicalMemory) Builder {
	b.memory = memory
	return b
}

// WithPageDirectory sets the hardware mapping table.
func (b Builder) WithPageDirectory(pageDir vm.PageDirectory) Builder {
	b.pageDir = pageDir
	return b
}

// WithSwap sets the swap store evicted pages are written to.
func (b Builder) WithSwap(store *swap.Store) Builder {
	b.swap = store
	return b
}

// WithNumSwapSlots sets the size of the in-memory swap device used when no
// swap store is given.
func (b Builder) WithNumSwapSlots(n int) Builder {
	b.numSwapSlots = n
	return b
}

// Build creates a Manager together with its frame registry.
func (b Builder) Build(name string) *Manager {
	if b.memory == nil {
		panic("vmm requires physical memory")
	}

	if b.pageDir == nil {
		panic("vmm requires a page directory")
	}

	if b.config.MaxStackSize > b.config.UserTop {
		panic("stack is larger than user space")
	}

	store := b.swap
	if store == nil {
		store = swap.NewStore(swap.NewMemoryDevice(b.numSwapSlots))
	}

	m := &Manager{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		config:       b.config,
		memory:       b.memory,
		pageDir:      b.pageDir,
		swap:         store,
		spaces:       make(map[vm.PID]*AddressSpace),
	}

	m.frames = frame.MakeBuilder().
		WithPhysicalMemory(b.memory).
		WithPageDirectory(b.pageDir).
		WithEvictor(m).
		Build(name + ".Frames")

	return m
}
