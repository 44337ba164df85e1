// Package workload runs simulated user processes against a virtual memory
// manager and checks that every byte they read back is the byte they wrote.
package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/mem/vm/machine"
	"github.com/sarchlab/vmcore/mem/vm/vmm"
)

// CodeBase is where the code segment of every process starts.
const CodeBase uint64 = 0x08048000

// Config describes the processes to run.
type Config struct {
	Processes  int    `json:"processes"`
	Threads    int    `json:"threads"`
	Iterations int    `json:"iterations"`
	CodePages  int    `json:"code_pages"`
	DataPages  int    `json:"data_pages"`
	MmapPages  int    `json:"mmap_pages"`
	StackPages int    `json:"stack_pages"`
	Seed       uint64 `json:"seed"`
}

// DefaultConfig returns a small workload.
func DefaultConfig() Config {
	return Config{
		Processes:  4,
		Threads:    2,
		Iterations: 1000,
		CodePages:  8,
		DataPages:  8,
		MmapPages:  8,
		StackPages: 4,
		Seed:       1,
	}
}

// Validate checks that the layout fits in user space.
func (c Config) Validate() error {
	switch {
	case c.Processes <= 0, c.Threads <= 0, c.Iterations < 0:
		return errors.New("processes and threads must be positive")
	case c.Threads*chunkSize > int(vm.PageSize):
		return errors.New("too many threads to share a page")
	case c.CodePages <= 0, c.DataPages <= 0, c.MmapPages <= 0, c.StackPages <= 0:
		return errors.New("every segment needs at least one page")
	case uint64(c.Threads*c.StackPages)*vm.PageSize > vmm.MaxStackSize:
		return errors.New("stacks do not fit under the stack limit")
	}

	return nil
}

// Pages returns the number of pages a process touches.
func (c Config) Pages() int {
	return c.CodePages + c.DataPages + c.MmapPages + c.Threads*c.StackPages
}

// A Progress is told about every finished access.
type Progress interface {
	IncrementFinished(amount uint64)
}

// A Runner runs workloads.
type Runner struct {
	config   Config
	manager  *vmm.Manager
	machine  *machine.Machine
	progress Progress
}

// NewRunner creates a Runner.
func NewRunner(
	config Config,
	manager *vmm.Manager,
	m *machine.Machine,
	progress Progress,
) *Runner {
	return &Runner{
		config:   config,
		manager:  manager,
		machine:  m,
		progress: progress,
	}
}

// Run runs every process to completion and tears it down. It returns the
// first violation each process ran into.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	errs := make([]error, r.config.Processes)

	var wg sync.WaitGroup
	for i := 0; i < r.config.Processes; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			pid := vm.PID(i + 1)
			errs[i] = r.runProcess(ctx, pid)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("process %d: %w", pid, errs[i])
			}
		}(i)
	}

	wg.Wait()

	return errors.Join(errs...)
}

type process struct {
	pid      vm.PID
	code     []byte
	dataBase uint64
	mmapBase uint64
	mmap     *machine.MemFile
	mapID    vmm.MapID
	as       *vmm.AddressSpace
}

func (r *Runner) runProcess(ctx context.Context, pid vm.PID) error {
	p, err := r.setUp(pid)
	if err != nil {
		return err
	}
	defer r.manager.Teardown(pid)

	mmapContent := make([]map[int][]byte, r.config.Threads)

	errs := make([]error, r.config.Threads)

	var wg sync.WaitGroup
	for t := 0; t < r.config.Threads; t++ {
		wg.Add(1)

		go func(t int) {
			defer wg.Done()

			th := &thread{
				runner:  r,
				process: p,
				index:   t,
				rng:     rand.New(rand.NewPCG(r.config.Seed, uint64(pid)<<16|uint64(t))),
			}
			errs[t] = th.run(ctx)
			mmapContent[t] = th.lastMmap
		}(t)
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := p.as.Unmap(p.mapID); err != nil {
		return err
	}

	return r.checkMmapFile(p, mmapContent)
}

func (r *Runner) setUp(pid vm.PID) (*process, error) {
	as, err := r.manager.NewAddressSpace(pid)
	if err != nil {
		return nil, err
	}

	c := r.config
	p := &process{
		pid:      pid,
		as:       as,
		code:     codeImage(pid, c.CodePages),
		dataBase: CodeBase + uint64(c.CodePages)*vm.PageSize,
		mmap:     machine.NewMemFile(make([]byte, c.MmapPages*int(vm.PageSize))),
	}
	p.mmapBase = p.dataBase + uint64(c.DataPages+1)*vm.PageSize

	codeFile := machine.NewMemFile(p.code)
	err = as.RegisterSegment(codeFile, 0, CodeBase, uint64(len(p.code)), 0, false)
	if err != nil {
		return nil, err
	}

	err = as.RegisterSegment(nil, 0, p.dataBase,
		0, uint64(c.DataPages)*vm.PageSize, true)
	if err != nil {
		return nil, err
	}

	p.mapID, err = as.RegisterMapping(p.mmap, p.mmapBase, uint64(p.mmap.Size()))
	if err != nil {
		return nil, err
	}

	slog.Debug("process set up", "pid", pid, "pages", len(as.Pages()))

	return p, nil
}

func (r *Runner) checkMmapFile(p *process, content []map[int][]byte) error {
	data := p.mmap.Bytes()
	for t, pages := range content {
		for page, want := range pages {
			off := mmapOffset(page, t)
			if !bytes.Equal(data[off:off+len(want)], want) {
				return fmt.Errorf("thread %d: mmap page %d was not written back",
					t, page)
			}
		}
	}

	return nil
}

// codeImage is the content of the code segment of a process.
func codeImage(pid vm.PID, pages int) []byte {
	image := make([]byte, pages*int(vm.PageSize))
	for i := range image {
		image[i] = byte(int(pid)*31 + i%253)
	}

	return image
}

// Each thread owns a chunk of every data and mmap page.
const chunkSize = 64

func mmapOffset(page, t int) int {
	return page*int(vm.PageSize) + t*chunkSize
}
