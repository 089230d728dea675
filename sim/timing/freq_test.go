package timing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Freq", func() {
	It("should get period", func() {
		var f = 1 * GHz
		Expect(f.Period()).To(BeNumerically("==", 1e-9))
	})

	It("should panic on a zero frequency", func() {
		var f Freq
		Expect(func() { f.Period() }).To(Panic())
	})

	It("should get this tick", func() {
		var f = 1 * Hz
		Expect(f.ThisTick(1)).To(BeNumerically("~", 1, 1e-12))
	})

	It("should round up to this tick when off tick", func() {
		var f = 1 * GHz
		Expect(f.ThisTick(102.0000000011)).
			To(BeNumerically("~", 102.000000002, 1e-12))
	})

	It("should get the n cycles later", func() {
		var f = 1 * GHz
		Expect(f.NCyclesLater(12, 102.000000001)).To(
			BeNumerically("~", 102.000000013, 1e-12))
	})

	It("should get the n cycles later, if current time is not on a tick", func() {
		var f = 1 * GHz
		Expect(f.NCyclesLater(12, 102.0000000011)).To(
			BeNumerically("~", 102.000000014, 1e-12))
	})

	It("should count cycles", func() {
		f := 1 * GHz

		Expect(f.Cycle(f.NCyclesLater(3, 0))).To(Equal(uint64(3)))
		Expect(f.Cycle(f.NCyclesLater(0, 5e-9))).To(Equal(uint64(5)))
		Expect(f.Cycle(f.NCyclesLater(2, 5e-9))).To(Equal(uint64(7)))
	})

	It("should reject negative delays", func() {
		f := 1 * GHz

		Expect(func() { f.NCyclesLater(-1, 0) }).To(Panic())
	})
})
