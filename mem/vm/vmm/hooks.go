package vmm

import "github.com/sarchlab/vmcore/sim/hooking"

// Hook positions of the Manager.
//
// HookPosFault is invoked after every fault. The item is the Fault and the
// detail is the Outcome.
//
// HookPosPageIn is invoked after a page is materialized. The item is the
// PageInfo of the page and the detail is the origin it was loaded from.
//
// HookPosPageOut is invoked after an evicted page is dealt with. The item is
// the frame.Victim and the detail is the PageOutAction.
var (
	HookPosFault   = &hooking.HookPos{Name: "Fault"}
	HookPosPageIn  = &hooking.HookPos{Name: "PageIn"}
	HookPosPageOut = &hooking.HookPos{Name: "PageOut"}
)

// PageOutAction tells what happened to the content of an evicted page.
type PageOutAction string

// Ways to deal with an evicted page.
const (
	PageOutDiscard   PageOutAction = "discard"
	PageOutSwap      PageOutAction = "swap"
	PageOutWriteBack PageOutAction = "writeback"
)
