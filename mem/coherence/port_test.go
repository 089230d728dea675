package coherence

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("portArbiter", func() {
	var a *portArbiter

	BeforeEach(func() {
		a = newPortArbiter(2)
	})

	It("should grant free ports", func() {
		Expect(a.lock(portRequest{op: 1})).To(BeTrue())
		Expect(a.lock(portRequest{op: 2})).To(BeTrue())
		Expect(a.numWaiting()).To(Equal(0))
	})

	It("should hand ports to waiters in order", func() {
		a.lock(portRequest{op: 1})
		a.lock(portRequest{op: 2})

		Expect(a.lock(portRequest{op: 3, next: stepLoadLock})).To(BeFalse())
		Expect(a.lock(portRequest{op: 4})).To(BeFalse())
		Expect(a.numWaiting()).To(Equal(2))

		req, handedOver := a.unlock()
		Expect(handedOver).To(BeTrue())
		Expect(req.op).To(Equal(OpHandle(3)))
		Expect(req.next).To(Equal(stepLoadLock))

		req, handedOver = a.unlock()
		Expect(handedOver).To(BeTrue())
		Expect(req.op).To(Equal(OpHandle(4)))

		_, handedOver = a.unlock()
		Expect(handedOver).To(BeFalse())
		_, handedOver = a.unlock()
		Expect(handedOver).To(BeFalse())
	})

	It("should panic when releasing a free port", func() {
		Expect(func() { a.unlock() }).To(Panic())
	})
})
