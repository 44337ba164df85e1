package machine

import (
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmcore/mem/vm"
)

var _ = Describe("PhysicalMemory", func() {
	var memory *PhysicalMemory

	BeforeEach(func() {
		memory = NewPhysicalMemory(0x100000, 2)
	})

	It("should hand out frames lowest first", func() {
		a, ok := memory.Acquire()
		Expect(ok).To(BeTrue())
		b, ok := memory.Acquire()
		Expect(ok).To(BeTrue())
		_, ok = memory.Acquire()
		Expect(ok).To(BeFalse())

		Expect(a).To(Equal(uint64(0x100000)))
		Expect(b).To(Equal(uint64(0x101000)))
		Expect(memory.NumFree()).To(Equal(0))
	})

	It("should reuse released frames", func() {
		a, _ := memory.Acquire()
		memory.Release(a)

		b, ok := memory.Acquire()

		Expect(ok).To(BeTrue())
		Expect(b).To(Equal(a))
	})

	It("should panic on double release", func() {
		a, _ := memory.Acquire()
		memory.Release(a)

		Expect(func() { memory.Release(a) }).To(Panic())
	})

	It("should panic on addresses that are not frames", func() {
		Expect(func() { memory.Bytes(0x102000) }).To(Panic())
		Expect(func() { memory.Bytes(0x100010) }).To(Panic())
	})

	It("should expose frame content", func() {
		a, _ := memory.Acquire()
		b, _ := memory.Acquire()

		memory.Bytes(a)[0] = 1
		memory.Bytes(b)[0] = 2

		Expect(memory.Bytes(a)).To(HaveLen(int(vm.PageSize)))
		Expect(memory.Bytes(a)[0]).To(Equal(byte(1)))
		Expect(memory.Bytes(b)[0]).To(Equal(byte(2)))
		Expect(memory.NumFrames()).To(Equal(2))
	})
})

var _ = Describe("MemFile", func() {
	It("should read what it holds", func() {
		f := NewMemFile([]byte("hello world"))
		buf := make([]byte, 5)

		n, err := f.ReadAt(buf, 6)

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))
		Expect(string(buf)).To(Equal("world"))
	})

	It("should report short reads", func() {
		f := NewMemFile([]byte("hello"))
		buf := make([]byte, 8)

		n, err := f.ReadAt(buf, 2)

		Expect(n).To(Equal(3))
		Expect(err).To(MatchError(io.EOF))
	})

	It("should grow on writes past the end", func() {
		f := NewMemFile([]byte("ab"))

		_, err := f.WriteAt([]byte("cd"), 4)

		Expect(err).NotTo(HaveOccurred())
		Expect(f.Bytes()).To(Equal([]byte{'a', 'b', 0, 0, 'c', 'd'}))
		Expect(f.Size()).To(Equal(int64(6)))
	})

	It("should truncate", func() {
		f := NewMemFile([]byte("abcdef"))

		f.Truncate(3)

		Expect(f.Bytes()).To(Equal([]byte("abc")))
	})
})
