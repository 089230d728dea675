package id

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sequential ID Generator", func() {
	It("should count from one", func() {
		g := NewSequentialIDGenerator()

		Expect(g.Generate()).To(Equal("1"))
		Expect(g.Generate()).To(Equal("2"))
		Expect(g.Generate()).To(Equal("3"))
	})
})

var _ = Describe("Parallel ID Generator", func() {
	It("should not repeat", func() {
		g := parallelIDGenerator{}
		seen := make(map[string]bool)

		for i := 0; i < 1000; i++ {
			id := g.Generate()
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = true
		}
	})
})
