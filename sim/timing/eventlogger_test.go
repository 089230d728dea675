package timing

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nmoesi/sim/hooking"
)

var _ = Describe("Event hooks", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
		handler  *MockHandler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
		handler = NewMockHandler(mockCtrl)
		handler.EXPECT().Handle(gomock.Any()).Return(nil).AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should count events that share a time", func() {
		counter := &IssueWidthCounter{}
		engine.AcceptHook(counter)

		engine.Schedule(NewEventBase(1, handler))
		engine.Schedule(NewEventBase(1, handler))
		engine.Schedule(NewEventBase(1, handler))
		engine.Schedule(NewEventBase(2, handler))

		Expect(engine.Run()).To(Succeed())
		Expect(counter.MaxWidth()).To(Equal(3))
		Expect(counter.AverageWidth()).To(BeNumerically("~", 2.0))
	})

	It("should log events at the trace level", func() {
		out := &bytes.Buffer{}
		logger := logrus.New()
		logger.SetOutput(out)
		logger.SetLevel(logrus.TraceLevel)

		engine.AcceptHook(NewEventLogger(logger))
		engine.Schedule(NewEventBase(3, handler))

		Expect(engine.Run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("EventBase"))
		Expect(out.String()).To(ContainSubstring("MockHandler"))
	})

	It("should ignore the positions after events", func() {
		counter := &IssueWidthCounter{}
		counter.Func(hooking.HookCtx{
			Pos:  HookPosAfterEvent,
			Item: NewEventBase(1, handler),
		})

		Expect(counter.MaxWidth()).To(Equal(0))
		Expect(counter.AverageWidth()).To(Equal(0.0))
	})
})
