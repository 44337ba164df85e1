package workload

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/mem/vm/vmm"
)

type thread struct {
	runner  *Runner
	process *process
	index   int
	rng     *rand.Rand

	// data holds what the thread last wrote to its chunk of each data page.
	data     map[uint64][]byte
	stack    map[uint64][]byte
	lastMmap map[int][]byte
}

func (t *thread) run(ctx context.Context) error {
	t.data = make(map[uint64][]byte)
	t.stack = make(map[uint64][]byte)
	t.lastMmap = make(map[int][]byte)

	for i := 0; i < t.runner.config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.step(); err != nil {
			return fmt.Errorf("thread %d step %d: %w", t.index, i, err)
		}

		if t.runner.progress != nil {
			t.runner.progress.IncrementFinished(1)
		}
	}

	return nil
}

func (t *thread) step() error {
	switch t.rng.IntN(4) {
	case 0:
		return t.readCode()
	case 1:
		return t.touchData()
	case 2:
		return t.touchStack()
	default:
		return t.touchMmap()
	}
}

func (t *thread) sp() uint64 {
	return t.stackTop() - uint64(t.runner.config.StackPages)*vm.PageSize
}

func (t *thread) stackTop() uint64 {
	return vmm.UserTop - uint64(t.index*t.runner.config.StackPages)*vm.PageSize
}

func (t *thread) readCode() error {
	p := t.process
	off := t.rng.IntN(len(p.code) - chunkSize)
	buf := make([]byte, chunkSize)

	err := t.runner.machine.Read(p.pid, CodeBase+uint64(off), buf, t.sp())
	if err != nil {
		return err
	}

	if !bytes.Equal(buf, p.code[off:off+chunkSize]) {
		return fmt.Errorf("code at 0x%x is corrupted", CodeBase+uint64(off))
	}

	return nil
}

// touchData writes the thread's chunk of a data page, or checks that it
// still holds what was written last.
func (t *thread) touchData() error {
	page := t.rng.IntN(t.runner.config.DataPages)
	addr := t.process.dataBase + uint64(page)*vm.PageSize +
		uint64(t.index*chunkSize)

	return t.writeOrCheck(addr, t.data)
}

func (t *thread) touchStack() error {
	page := t.rng.IntN(t.runner.config.StackPages)
	addr := t.stackTop() - uint64(page+1)*vm.PageSize

	return t.writeOrCheck(addr, t.stack)
}

func (t *thread) writeOrCheck(addr uint64, written map[uint64][]byte) error {
	m := t.runner.machine
	pid := t.process.pid

	want, found := written[addr]
	if found && t.rng.IntN(2) == 0 {
		buf := make([]byte, chunkSize)
		if err := m.Read(pid, addr, buf, t.sp()); err != nil {
			return err
		}

		if !bytes.Equal(buf, want) {
			return fmt.Errorf("memory at 0x%x lost its content", addr)
		}

		return nil
	}

	data := t.fill()
	if err := m.Write(pid, addr, data, t.sp()); err != nil {
		return err
	}

	written[addr] = data

	return nil
}

// touchMmap writes the thread's chunk of a mapped page and reads it back.
func (t *thread) touchMmap() error {
	m := t.runner.machine
	pid := t.process.pid
	page := t.rng.IntN(t.runner.config.MmapPages)
	addr := t.process.mmapBase + uint64(mmapOffset(page, t.index))

	data := t.fill()
	if err := m.Write(pid, addr, data, t.sp()); err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	if err := m.Read(pid, addr, buf, t.sp()); err != nil {
		return err
	}

	if !bytes.Equal(buf, data) {
		return fmt.Errorf("mapped file at 0x%x lost its content", addr)
	}

	t.lastMmap[page] = data

	return nil
}

func (t *thread) fill() []byte {
	data := make([]byte, chunkSize)
	for i := range data {
		data[i] = byte(t.rng.Uint32())
	}

	return data
}
