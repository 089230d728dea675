package coherence

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("join", func() {
	var j join

	BeforeEach(func() {
		j = join{}
	})

	It("should continue on the last arrival", func() {
		j.reset(1)
		j.spawn(2)

		Expect(j.arrive()).To(BeFalse())
		Expect(j.arrive()).To(BeFalse())
		Expect(j.count()).To(Equal(1))
		Expect(j.arrive()).To(BeTrue())
		Expect(j.count()).To(Equal(0))
	})

	It("should panic when arriving without pending branches", func() {
		j.reset(0)

		Expect(func() { j.arrive() }).To(Panic())
		Expect(func() { j.reset(-1) }).To(Panic())
	})
})
