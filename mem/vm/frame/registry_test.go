package frame

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vmcore/mem/vm"
	"github.com/sarchlab/vmcore/sim/hooking"
)

type recordingHook struct {
	positions []*hooking.HookPos
}

func (h *recordingHook) Func(ctx hooking.HookCtx) {
	h.positions = append(h.positions, ctx.Pos)
}

var _ = Describe("Registry", func() {
	var (
		mockCtrl *gomock.Controller
		memory   *MockPhysicalMemory
		pageDir  *MockPageDirectory
		evictor  *MockEvictor
		registry *Registry
		hook     *recordingHook
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		memory = NewMockPhysicalMemory(mockCtrl)
		pageDir = NewMockPageDirectory(mockCtrl)
		evictor = NewMockEvictor(mockCtrl)

		registry = MakeBuilder().
			WithPhysicalMemory(memory).
			WithPageDirectory(pageDir).
			WithEvictor(evictor).
			Build("Frames")

		hook = &recordingHook{}
		registry.AcceptHook(hook)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic when built without collaborators", func() {
		Expect(func() { MakeBuilder().Build("Frames") }).To(Panic())
		Expect(func() {
			MakeBuilder().WithPhysicalMemory(memory).Build("Frames")
		}).To(Panic())
	})

	Context("when physical memory is available", func() {
		It("should register a pinned frame for the page", func() {
			memory.EXPECT().Acquire().Return(uint64(0x1000), true)

			pAddr, err := registry.Allocate(1, 0x8048000)

			Expect(err).NotTo(HaveOccurred())
			Expect(pAddr).To(Equal(uint64(0x1000)))

			entry, found := registry.Find(1, 0x8048123)
			Expect(found).To(BeTrue())
			Expect(entry).To(Equal(FrameInfo{
				PAddr:  0x1000,
				PID:    1,
				VAddr:  0x8048000,
				Pinned: true,
			}))
			Expect(hook.positions).To(ConsistOf(HookPosAllocate))
		})

		It("should reject unaligned addresses", func() {
			_, err := registry.Allocate(1, 0x8048001)

			Expect(err).To(MatchError(vm.ErrInvalidAddress))
		})

		It("should reject a second frame for the same page", func() {
			memory.EXPECT().Acquire().Return(uint64(0x1000), true)
			_, err := registry.Allocate(1, 0x8048000)
			Expect(err).NotTo(HaveOccurred())

			_, err = registry.Allocate(1, 0x8048000)

			Expect(err).To(MatchError(vm.ErrPageExists))
		})

		It("should panic if physical memory hands out a frame twice", func() {
			memory.EXPECT().Acquire().Return(uint64(0x1000), true).Times(2)
			_, err := registry.Allocate(1, 0x1000)
			Expect(err).NotTo(HaveOccurred())

			Expect(func() { _, _ = registry.Allocate(1, 0x2000) }).To(Panic())
		})
	})

	Context("release", func() {
		BeforeEach(func() {
			memory.EXPECT().Acquire().Return(uint64(0x1000), true)
			_, err := registry.Allocate(1, 0x8048000)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should unmap and free the frame", func() {
			pageDir.EXPECT().Mapping(vm.PID(1), uint64(0x8048000)).
				Return(uint64(0x1000), true)
			pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x8048000))
			memory.EXPECT().Release(uint64(0x1000))

			registry.Release(0x1000)

			Expect(registry.Len()).To(Equal(0))
			_, found := registry.Find(1, 0x8048000)
			Expect(found).To(BeFalse())
		})

		It("should not unmap a mapping that points elsewhere", func() {
			pageDir.EXPECT().Mapping(vm.PID(1), uint64(0x8048000)).
				Return(uint64(0x5000), true)
			memory.EXPECT().Release(uint64(0x1000))

			registry.Release(0x1000)
		})

		It("should be idempotent", func() {
			pageDir.EXPECT().Mapping(vm.PID(1), uint64(0x8048000)).
				Return(uint64(0), false)
			memory.EXPECT().Release(uint64(0x1000)).Times(1)

			registry.Release(0x1000)
			registry.Release(0x1000)

			Expect(hook.positions).To(Equal(
				[]*hooking.HookPos{HookPosAllocate, HookPosRelease}))
		})

		It("should release all frames of a process", func() {
			memory.EXPECT().Acquire().Return(uint64(0x2000), true)
			memory.EXPECT().Acquire().Return(uint64(0x3000), true)
			_, err := registry.Allocate(2, 0x8048000)
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Allocate(1, 0x8049000)
			Expect(err).NotTo(HaveOccurred())

			pageDir.EXPECT().Mapping(vm.PID(1), gomock.Any()).
				Return(uint64(0), false).Times(2)
			memory.EXPECT().Release(uint64(0x1000))
			memory.EXPECT().Release(uint64(0x3000))

			registry.ReleaseProcess(1)

			Expect(registry.Entries()).To(ConsistOf(FrameInfo{
				PAddr: 0x2000, PID: 2, VAddr: 0x8048000, Pinned: true,
			}))
		})
	})

	Context("pinning", func() {
		It("should toggle the pin flag", func() {
			memory.EXPECT().Acquire().Return(uint64(0x1000), true)
			_, err := registry.Allocate(1, 0x8048000)
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Unpin(0x1000)).To(Succeed())
			entry, _ := registry.Lookup(0x1000)
			Expect(entry.Pinned).To(BeFalse())

			Expect(registry.Pin(0x1000)).To(Succeed())
			entry, _ = registry.Lookup(0x1000)
			Expect(entry.Pinned).To(BeTrue())
		})

		It("should report unknown frames", func() {
			Expect(registry.Pin(0x9000)).To(MatchError(vm.ErrNoFrame))
			Expect(registry.Unpin(0x9000)).To(MatchError(vm.ErrNoFrame))
		})
	})

	Context("when physical memory is exhausted", func() {
		var (
			accessed map[uint64]bool
			inUse    map[uint64]bool
		)

		BeforeEach(func() {
			accessed = make(map[uint64]bool)
			inUse = make(map[uint64]bool)

			for i, pAddr := range []uint64{0x1000, 0x2000, 0x3000} {
				memory.EXPECT().Acquire().Return(pAddr, true)
				_, err := registry.Allocate(1, uint64(0x10000+i*0x1000))
				Expect(err).NotTo(HaveOccurred())
			}

			memory.EXPECT().Acquire().Return(uint64(0), false).AnyTimes()
			pageDir.EXPECT().IsAccessed(vm.PID(1), gomock.Any()).
				DoAndReturn(func(_ vm.PID, vAddr uint64) bool {
					return accessed[vAddr]
				}).AnyTimes()
			pageDir.EXPECT().SetAccessed(vm.PID(1), gomock.Any(), gomock.Any()).
				Do(func(_ vm.PID, vAddr uint64, value bool) {
					accessed[vAddr] = value || inUse[vAddr]
				}).AnyTimes()
		})

		It("should fail if every frame is pinned", func() {
			_, err := registry.Allocate(2, 0x8048000)

			Expect(err).To(MatchError(vm.ErrOutOfFrames))
		})

		Context("with unpinned frames", func() {
			BeforeEach(func() {
				for _, pAddr := range []uint64{0x1000, 0x2000, 0x3000} {
					Expect(registry.Unpin(pAddr)).To(Succeed())
				}
			})

			It("should give accessed frames a second chance", func() {
				accessed[0x10000] = true
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x11000))
				evictor.EXPECT().Evict(Victim{
					PAddr: 0x2000,
					PID:   1,
					VAddr: 0x11000,
				}).Return(nil)

				pAddr, err := registry.Allocate(2, 0x8048000)

				Expect(err).NotTo(HaveOccurred())
				Expect(pAddr).To(Equal(uint64(0x2000)))
				Expect(accessed[0x10000]).To(BeFalse())
				Expect(registry.Hand()).To(Equal(2))

				_, found := registry.Find(1, 0x11000)
				Expect(found).To(BeFalse())
				entry, found := registry.Find(2, 0x8048000)
				Expect(found).To(BeTrue())
				Expect(entry.Pinned).To(BeTrue())
				Expect(hook.positions).To(ContainElement(HookPosEvict))
			})

			It("should move on to the next frame on the following scan", func() {
				accessed[0x10000] = true
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x11000))
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x12000))
				evictor.EXPECT().Evict(gomock.Any()).Return(nil).Times(2)

				first, err := registry.Allocate(2, 0x8048000)
				Expect(err).NotTo(HaveOccurred())
				Expect(registry.Unpin(first)).To(Succeed())

				second, err := registry.Allocate(2, 0x8049000)
				Expect(err).NotTo(HaveOccurred())

				Expect(first).To(Equal(uint64(0x2000)))
				Expect(second).To(Equal(uint64(0x3000)))
			})

			It("should wrap around after clearing every accessed bit", func() {
				accessed[0x10000] = true
				accessed[0x11000] = true
				accessed[0x12000] = true
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x10000))
				evictor.EXPECT().Evict(gomock.Any()).Return(nil)

				pAddr, err := registry.Allocate(2, 0x8048000)

				Expect(err).NotTo(HaveOccurred())
				Expect(pAddr).To(Equal(uint64(0x1000)))
				Expect(accessed).To(HaveEach(BeFalse()))
			})

			It("should skip pinned frames", func() {
				Expect(registry.Pin(0x1000)).To(Succeed())
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x11000))
				evictor.EXPECT().Evict(gomock.Any()).Return(nil)

				pAddr, err := registry.Allocate(2, 0x8048000)

				Expect(err).NotTo(HaveOccurred())
				Expect(pAddr).To(Equal(uint64(0x2000)))
			})

			It("should fail when the only unpinned frame stays in use", func() {
				Expect(registry.Pin(0x1000)).To(Succeed())
				Expect(registry.Pin(0x2000)).To(Succeed())
				accessed[0x12000] = true
				inUse[0x12000] = true

				_, err := registry.Allocate(2, 0x8048000)

				Expect(err).To(MatchError(vm.ErrOutOfFrames))
				entry, found := registry.Find(1, 0x12000)
				Expect(found).To(BeTrue())
				Expect(entry.Pinned).To(BeFalse())
				Expect(registry.Len()).To(Equal(3))
			})

			It("should keep the victim if it cannot be preserved", func() {
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x10000))
				evictor.EXPECT().Evict(gomock.Any()).
					Return(errors.New("swap is full"))

				_, err := registry.Allocate(2, 0x8048000)

				Expect(err).To(MatchError(vm.ErrOutOfFrames))
				entry, found := registry.Find(1, 0x10000)
				Expect(found).To(BeTrue())
				Expect(entry.Pinned).To(BeFalse())
			})

			It("should hand over a victim released during eviction", func() {
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x10000))
				evictor.EXPECT().Evict(gomock.Any()).
					DoAndReturn(func(v Victim) error {
						registry.Release(v.PAddr)
						return nil
					})

				pAddr, err := registry.Allocate(2, 0x8048000)

				Expect(err).NotTo(HaveOccurred())
				Expect(pAddr).To(Equal(uint64(0x1000)))
				Expect(registry.Len()).To(Equal(3))
				_, found := registry.Find(1, 0x10000)
				Expect(found).To(BeFalse())
			})

			It("should refuse to pin a frame that is being evicted", func() {
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x10000))
				evictor.EXPECT().Evict(gomock.Any()).
					DoAndReturn(func(v Victim) error {
						Expect(registry.Pin(v.PAddr)).To(MatchError(vm.ErrFrameBusy))
						Expect(registry.Unpin(v.PAddr)).To(Succeed())
						return nil
					})

				pAddr, err := registry.Allocate(2, 0x8048000)

				Expect(err).NotTo(HaveOccurred())
				entry, _ := registry.Lookup(pAddr)
				Expect(entry.Pinned).To(BeTrue())
			})

			It("should drop content when there is no evictor", func() {
				registry.SetEvictor(nil)
				pageDir.EXPECT().Unmap(vm.PID(1), uint64(0x10000))

				pAddr, err := registry.Allocate(2, 0x8048000)

				Expect(err).NotTo(HaveOccurred())
				Expect(pAddr).To(Equal(uint64(0x1000)))
			})
		})
	})
})
