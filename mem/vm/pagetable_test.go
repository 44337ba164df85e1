package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PageTable", func() {
	var (
		table PageTable
	)

	BeforeEach(func() {
		table = NewPageTable(1)
	})

	It("should insert and find a page by any address inside it", func() {
		entry := NewPageEntry(1, 0x8048000, true, ZeroOrigin{})

		Expect(table.Insert(entry)).To(Succeed())

		found, ok := table.Lookup(0x8048abc)
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(entry))
	})

	It("should report absent pages", func() {
		_, ok := table.Lookup(0x1000)

		Expect(ok).To(BeFalse())
	})

	It("should refuse to overwrite an existing page", func() {
		Expect(table.Insert(NewPageEntry(1, 0x1000, true, ZeroOrigin{}))).
			To(Succeed())

		err := table.Insert(NewPageEntry(1, 0x1000, false, ZeroOrigin{}))

		Expect(err).To(MatchError(ErrPageExists))
		found, _ := table.Lookup(0x1000)
		Expect(found.Writable).To(BeTrue())
	})

	It("should refuse unaligned pages", func() {
		err := table.Insert(NewPageEntry(1, 0x1001, true, ZeroOrigin{}))

		Expect(err).To(MatchError(ErrInvalidAddress))
	})

	It("should refuse pages of another process", func() {
		err := table.Insert(NewPageEntry(2, 0x1000, true, ZeroOrigin{}))

		Expect(err).To(MatchError(ErrInvalidAddress))
	})

	It("should remove pages", func() {
		Expect(table.Insert(NewPageEntry(1, 0x1000, true, ZeroOrigin{}))).
			To(Succeed())

		removed, ok := table.Remove(0x1fff)
		Expect(ok).To(BeTrue())
		Expect(removed.VAddr).To(Equal(uint64(0x1000)))

		_, ok = table.Remove(0x1000)
		Expect(ok).To(BeFalse())
		Expect(table.Len()).To(Equal(0))
	})

	It("should list entries in insertion order", func() {
		for _, addr := range []uint64{0x3000, 0x1000, 0x2000} {
			Expect(table.Insert(NewPageEntry(1, addr, true, ZeroOrigin{}))).
				To(Succeed())
		}

		entries := table.Entries()

		Expect(entries).To(HaveLen(3))
		Expect(entries[0].VAddr).To(Equal(uint64(0x3000)))
		Expect(entries[1].VAddr).To(Equal(uint64(0x1000)))
		Expect(entries[2].VAddr).To(Equal(uint64(0x2000)))
	})
})

var _ = Describe("Page geometry", func() {
	It("should align addresses", func() {
		Expect(PageAlign(0x1234)).To(Equal(uint64(0x1000)))
		Expect(IsPageAligned(0x2000)).To(BeTrue())
		Expect(IsPageAligned(0x2001)).To(BeFalse())
		Expect(PageOffset(0x1234)).To(Equal(uint64(0x234)))
		Expect(NumPages(0)).To(Equal(uint64(0)))
		Expect(NumPages(1)).To(Equal(uint64(1)))
		Expect(NumPages(PageSize + 1)).To(Equal(uint64(2)))
	})
})

var _ = Describe("Origin", func() {
	It("should tell swapped origins apart", func() {
		Expect(IsSwapped(SwappedOrigin{Slot: 3, Prior: ZeroOrigin{}})).
			To(BeTrue())
		Expect(IsSwapped(ZeroOrigin{})).To(BeFalse())
		Expect(IsSwapped(FileOrigin{ReadBytes: 10})).To(BeFalse())
	})

	It("should describe itself", func() {
		Expect(ZeroOrigin{}.String()).To(Equal("zero"))
		Expect(SwappedOrigin{Slot: 3}.String()).To(Equal("swap#3"))
		Expect(FileOrigin{Offset: 512, ReadBytes: 100}.String()).
			To(Equal("file@512+100"))
		Expect(MmapOrigin{Offset: 0, Length: 10}.String()).
			To(Equal("mmap@0+10"))
	})
})
