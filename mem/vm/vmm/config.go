package vmm

// Default address space layout.
const (
	// UserTop is the first address above user space. The stack grows down
	// from here.
	UserTop uint64 = 0xC0000000

	// MaxStackSize bounds how far the stack may grow below UserTop.
	MaxStackSize uint64 = 8 << 20

	// StackSlack is how far below the stack pointer an access still counts
	// as a stack access. PUSHA writes 32 bytes below the stack pointer
	// before moving it.
	StackSlack uint64 = 32

	// MinUserAddr is the lowest address a fault is ever resolved at.
	MinUserAddr uint64 = 0x08048000
)

// Config holds the address space layout used by a Manager.
type Config struct {
	UserTop      uint64 `json:"user_top"`
	MaxStackSize uint64 `json:"max_stack_size"`
	StackSlack   uint64 `json:"stack_slack"`
	MinUserAddr  uint64 `json:"min_user_addr"`
}

// DefaultConfig returns the default layout.
func DefaultConfig() Config {
	return Config{
		UserTop:      UserTop,
		MaxStackSize: MaxStackSize,
		StackSlack:   StackSlack,
		MinUserAddr:  MinUserAddr,
	}
}

// StackLimit returns the lowest address the stack may grow to.
func (c Config) StackLimit() uint64 {
	return c.UserTop - c.MaxStackSize
}

// InStackRange tells if addr lies in the region the stack may occupy.
func (c Config) InStackRange(addr uint64) bool {
	return addr >= c.StackLimit() && addr < c.UserTop
}

// InUserSpace tells if addr may ever be resolved by a fault.
func (c Config) InUserSpace(addr uint64) bool {
	return addr >= c.MinUserAddr && addr < c.UserTop
}
