package coherence

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LowModuleFinder", func() {
	var a, b *Module

	BeforeEach(func() {
		a = MakeBuilder().Build("A")
		b = MakeBuilder().Build("B")
	})

	It("should always find the single low module", func() {
		f := &SingleLowModuleFinder{LowModule: a}

		Expect(f.Find(0)).To(BeIdenticalTo(a))
		Expect(f.Find(0x12345678)).To(BeIdenticalTo(a))
		Expect(f.LowModules()).To(ConsistOf(a))
	})

	It("should interleave addresses", func() {
		f := NewInterleavedLowModuleFinder(64, a, b)

		Expect(f.Find(0)).To(BeIdenticalTo(a))
		Expect(f.Find(63)).To(BeIdenticalTo(a))
		Expect(f.Find(64)).To(BeIdenticalTo(b))
		Expect(f.Find(128)).To(BeIdenticalTo(a))
		Expect(f.LowModules()).To(HaveLen(2))
	})

	It("should reject a zero interleaving size", func() {
		Expect(func() { NewInterleavedLowModuleFinder(0, a) }).To(Panic())
	})
})
