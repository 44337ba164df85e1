package vmm

import "sync/atomic"

// Stats counts the work done by a Manager.
type Stats struct {
	Faults       uint64 `json:"faults"`
	Resolved     uint64 `json:"resolved"`
	StackGrowths uint64 `json:"stack_growths"`
	Unresolved   uint64 `json:"unresolved"`
	PageIns      uint64 `json:"page_ins"`
	Evictions    uint64 `json:"evictions"`
	SwapOuts     uint64 `json:"swap_outs"`
	SwapIns      uint64 `json:"swap_ins"`
	WriteBacks   uint64 `json:"write_backs"`
	Discards     uint64 `json:"discards"`
}

type counters struct {
	faults       atomic.Uint64
	resolved     atomic.Uint64
	stackGrowths atomic.Uint64
	unresolved   atomic.Uint64
	pageIns      atomic.Uint64
	evictions    atomic.Uint64
	swapOuts     atomic.Uint64
	swapIns      atomic.Uint64
	writeBacks   atomic.Uint64
	discards     atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Faults:       c.faults.Load(),
		Resolved:     c.resolved.Load(),
		StackGrowths: c.stackGrowths.Load(),
		Unresolved:   c.unresolved.Load(),
		PageIns:      c.pageIns.Load(),
		Evictions:    c.evictions.Load(),
		SwapOuts:     c.swapOuts.Load(),
		SwapIns:      c.swapIns.Load(),
		WriteBacks:   c.writeBacks.Load(),
		Discards:     c.discards.Load(),
	}
}

func (c *counters) countOutcome(o Outcome) {
	switch o {
	case Resolved:
		c.resolved.Add(1)
	case StackGrown:
		c.stackGrowths.Add(1)
	default:
		c.unresolved.Add(1)
	}
}
