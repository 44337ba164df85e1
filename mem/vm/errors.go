package vm

import "errors"

// Errors reported by the virtual memory core. Callers match them with
// errors.Is; the returned errors usually wrap them with more context.
var (
	// ErrOutOfFrames means no frame could be obtained, even after a full
	// eviction scan.
	ErrOutOfFrames = errors.New("out of frames")

	// ErrNoFrame means the frame is not registered.
	ErrNoFrame = errors.New("frame not registered")

	// ErrFrameBusy means the frame is being evicted and cannot be pinned.
	ErrFrameBusy = errors.New("frame is being evicted")

	// ErrPageExists means a page entry already covers the address.
	ErrPageExists = errors.New("page already exists")

	// ErrNoPage means no page entry covers the address.
	ErrNoPage = errors.New("no such page")

	// ErrInvalidAddress means the address cannot be used for the operation,
	// for example it is outside user space or outside the stack bound.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrShortRead means a backing file returned fewer bytes than recorded.
	ErrShortRead = errors.New("short read from backing file")

	// ErrMapFailed means the hardware mapping could not be installed.
	ErrMapFailed = errors.New("cannot install mapping")

	// ErrSwapFull means every swap slot is in use.
	ErrSwapFull = errors.New("swap is full")

	// ErrSwapCorrupted means a swap slot does not hold what was written.
	ErrSwapCorrupted = errors.New("swap slot corrupted")

	// ErrProcessGone means the process no longer has an address space.
	ErrProcessGone = errors.New("process does not exist")

	// ErrProcessExists means the process already has an address space.
	ErrProcessExists = errors.New("process already exists")
)
