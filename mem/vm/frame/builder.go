package frame

import (
	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/sim/hooking"
)

// A Builder can build frame registries.
type Builder struct {
	memory  vm.PhysicalMemory
	pageDir vm.PageDirectory
	evictor Evictor
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithPhysicalMemory sets the allocator the registry takes frames from.
func (b Builder) WithPhysicalMemory(memory vm.PhysicalMemory) Builder {
	b.memory = memory
	return b
}

// WithPageDirectory sets the hardware mapping table that the registry
// queries for accessed bits and clears mappings in.
func (b Builder) WithPageDirectory(pageDir vm.PageDirectory) Builder {
	b.pageDir = pageDir
	return b
}

// WithEvictor sets the component that preserves evicted pages.
func (b Builder) WithEvictor(evictor Evictor) Builder {
	b.evictor = evictor
	return b
}

// Build creates a registry with the given name.
func (b Builder) Build(name string) *Registry {
	if b.memory == nil {
		panic("frame registry requires physical memory")
	}

	if b.pageDir == nil {
		panic("frame registry requires a page directory")
	}

	return &Registry{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		memory:       b.memory,
		pageDir:      b.pageDir,
		evictor:      b.evictor,
		byPAddr:      make(map[uint64]*frameEntry),
		byPage:       make(map[pageKey]*frameEntry),
	}
}
