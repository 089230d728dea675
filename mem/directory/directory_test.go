package directory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nmoesi/mem/directory"
	"github.com/sarchlab/nmoesi/sim/hooking"
)

var _ = Describe("Directory", func() {
	var (
		dir *directory.Directory
	)

	BeforeEach(func() {
		dir = directory.New("Dir", 4, 2, 2)
	})

	Context("sharers and owners", func() {
		It("should start empty", func() {
			Expect(dir.Owner(0, 0, 0)).To(Equal(directory.OwnerNone))
			Expect(dir.Entry(3, 1, 1).NumSharers()).To(Equal(0))
			Expect(dir.GroupSharedOrOwned(0, 0)).To(BeFalse())
		})

		It("should make the owner a sharer", func() {
			dir.SetOwner(1, 1, 0, 3)

			Expect(dir.IsSharer(1, 1, 0, 3)).To(BeTrue())
			Expect(dir.Owner(1, 1, 0)).To(Equal(3))
			Expect(dir.GroupSharedOrOwned(1, 1)).To(BeTrue())
		})

		It("should drop the owner with its sharer bit", func() {
			dir.SetOwner(1, 1, 0, 3)
			dir.SetSharer(1, 1, 0, 70)

			dir.ClearSharer(1, 1, 0, 3)

			Expect(dir.Owner(1, 1, 0)).To(Equal(directory.OwnerNone))
			Expect(dir.Sharers(1, 1, 0)).To(Equal([]int{70}))
		})

		It("should keep sharers when the owner is cleared", func() {
			dir.SetOwner(2, 0, 1, 1)
			dir.SetOwner(2, 0, 1, directory.OwnerNone)

			Expect(dir.IsSharer(2, 0, 1, 1)).To(BeTrue())
			Expect(dir.Owner(2, 0, 1)).To(Equal(directory.OwnerNone))
		})

		It("should clear all sharers", func() {
			dir.SetSharer(0, 1, 1, 0)
			dir.SetOwner(0, 1, 1, 5)

			dir.ClearAllSharers(0, 1, 1)

			Expect(dir.Entry(0, 1, 1).NumSharers()).To(Equal(0))
			Expect(dir.Owner(0, 1, 1)).To(Equal(directory.OwnerNone))
		})

		It("should not count a sharer twice", func() {
			dir.SetSharer(0, 0, 0, 2)
			dir.SetSharer(0, 0, 0, 2)

			Expect(dir.Entry(0, 0, 0).NumSharers()).To(Equal(1))
		})

		It("should panic out of range", func() {
			Expect(func() { dir.Entry(4, 0, 0) }).To(Panic())
			Expect(func() { dir.SetSharer(0, 0, 0, -1) }).To(Panic())
		})
	})

	Context("locks", func() {
		It("should grant a free lock", func() {
			Expect(dir.Lock(1, 0, 7, nil)).To(BeTrue())
			Expect(dir.IsLocked(1, 0)).To(BeTrue())
			Expect(dir.Holder(1, 0)).To(Equal(uint64(7)))
		})

		It("should wake waiters one by one in order", func() {
			woken := []uint64{}

			Expect(dir.Lock(1, 0, 1, nil)).To(BeTrue())
			Expect(dir.Lock(1, 0, 2, func() { woken = append(woken, 2) })).
				To(BeFalse())
			Expect(dir.Lock(1, 0, 3, func() { woken = append(woken, 3) })).
				To(BeFalse())
			Expect(dir.NumWaiters(1, 0)).To(Equal(2))

			dir.Unlock(1, 0)
			Expect(woken).To(Equal([]uint64{2}))
			Expect(dir.IsLocked(1, 0)).To(BeFalse())

			Expect(dir.Lock(1, 0, 2, nil)).To(BeTrue())
			dir.Unlock(1, 0)
			Expect(woken).To(Equal([]uint64{2, 3}))
		})

		It("should wake the next waiter of a free block on demand", func() {
			woken := []uint64{}

			dir.Lock(2, 1, 1, nil)
			dir.Lock(2, 1, 2, func() { woken = append(woken, 2) })
			dir.Lock(2, 1, 3, func() { woken = append(woken, 3) })

			dir.WakeNext(2, 1)
			Expect(woken).To(BeEmpty())

			dir.Unlock(2, 1)
			dir.WakeNext(2, 1)
			Expect(woken).To(Equal([]uint64{2, 3}))
			Expect(dir.NumWaiters(2, 1)).To(Equal(0))
		})

		It("should panic when unlocking a free block", func() {
			Expect(func() { dir.Unlock(0, 0) }).To(Panic())
		})

		It("should report lock activity to hooks", func() {
			positions := []*hooking.HookPos{}
			dir.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				positions = append(positions, ctx.Pos)
			}))

			dir.Lock(0, 0, 1, nil)
			dir.Lock(0, 0, 2, nil)
			dir.Unlock(0, 0)

			Expect(positions).To(Equal([]*hooking.HookPos{
				directory.HookPosLock,
				directory.HookPosLockConflict,
				directory.HookPosUnlock,
			}))
		})
	})
})
