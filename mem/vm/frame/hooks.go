package frame

import "github.com/sarchlab/vmcore/sim/hooking"

// Hook positions of the registry. The item of HookPosAllocate and
// HookPosRelease is the FrameInfo. The item of HookPosEvict is the Victim and
// the detail is the FrameInfo after the frame changed hands.
var (
	HookPosAllocate = &hooking.HookPos{Name: "FrameAllocate"}
	HookPosEvict    = &hooking.HookPos{Name: "FrameEvict"}
	HookPosRelease  = &hooking.HookPos{Name: "FrameRelease"}
)
