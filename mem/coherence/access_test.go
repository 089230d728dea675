package coherence

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("accessIndex", func() {
	var x *accessIndex

	BeforeEach(func() {
		x = newAccessIndex()
		x.add(accessItem{blockAddr: 0x40, id: 1, op: 11, kind: AccessLoad})
		x.add(accessItem{blockAddr: 0x80, id: 2, op: 12, kind: AccessStore})
		x.add(accessItem{blockAddr: 0x40, id: 3, op: 13, kind: AccessStore})
		x.add(accessItem{blockAddr: 0x40, id: 5, op: 15, kind: AccessLoad})
	})

	It("should find the youngest older access to the block", func() {
		item, found := x.olderAccess(0x40, 5)
		Expect(found).To(BeTrue())
		Expect(item.id).To(Equal(uint64(3)))

		item, found = x.olderAccess(0x40, 3)
		Expect(found).To(BeTrue())
		Expect(item.op).To(Equal(OpHandle(11)))

		_, found = x.olderAccess(0x40, 1)
		Expect(found).To(BeFalse())
	})

	It("should not look at other blocks", func() {
		_, found := x.olderAccess(0x80, 2)
		Expect(found).To(BeFalse())

		_, found = x.olderWrite(0xc0, 10)
		Expect(found).To(BeFalse())
	})

	It("should skip reads when looking for writes", func() {
		item, found := x.olderWrite(0x40, 6)
		Expect(found).To(BeTrue())
		Expect(item.id).To(Equal(uint64(3)))

		_, found = x.olderWrite(0x40, 3)
		Expect(found).To(BeFalse())
	})

	It("should track the accesses in flight", func() {
		Expect(x.Len()).To(Equal(4))

		x.remove(0x40, 3)

		Expect(x.Len()).To(Equal(3))
		_, found := x.olderWrite(0x40, 6)
		Expect(found).To(BeFalse())
		Expect(func() { x.remove(0x40, 3) }).To(Panic())
		Expect(func() {
			x.add(accessItem{blockAddr: 0x40, id: 1})
		}).To(Panic())
	})
})
