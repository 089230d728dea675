package coherence

import (
	"github.com/ansel1/merry"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/mem/directory"
	"github.com/sarchlab/nmoesi/noc"
	"github.com/sarchlab/nmoesi/sim/hooking"
	"github.com/sarchlab/nmoesi/sim/timing"
)

type hierarchy struct {
	engine   *timing.SerialEngine
	proto    *Protocol
	upperNet *noc.Network
	lowerNet *noc.Network
	l1a, l1b *Module
	l2, mem  *Module
}

func newHierarchy(l1Builder Builder) *hierarchy {
	h := &hierarchy{engine: timing.NewSerialEngine()}
	h.proto = NewProtocol(h.engine, 1*timing.GHz, nil)

	h.upperNet = noc.MakeBuilder().WithEngine(h.engine).Build("UpperNet")
	h.lowerNet = noc.MakeBuilder().WithEngine(h.engine).Build("LowerNet")

	h.l1a = l1Builder.Build("L1a")
	h.l1b = MakeBuilder().Build("L1b")
	h.l2 = MakeBuilder().
		WithByteSize(64 * 1024).
		WithWayAssociativity(8).
		Build("L2")
	h.mem = MakeBuilder().
		WithByteSize(1024 * 1024).
		WithWayAssociativity(16).
		AsMainMemory().
		Build("Mem")

	Connect(h.upperNet, []*Module{h.l1a, h.l1b}, []*Module{h.l2})
	Connect(h.lowerNet, []*Module{h.l2}, []*Module{h.mem})

	return h
}

func (h *hierarchy) run() {
	Expect(h.engine.Run()).To(Succeed())
	Expect(h.proto.NumLiveOperations()).To(Equal(0))
}

// runForViolation runs the engine and returns the protocol violation that
// stopped it.
func (h *hierarchy) runForViolation() (err error) {
	defer func() {
		r := recover()
		err, _ = r.(error)
	}()

	_ = h.engine.Run()

	return nil
}

func stateOf(m *Module, addr uint64) cache.BlockState {
	_, _, state, found := m.findBlock(m.Tag(addr))
	if !found {
		return cache.Invalid
	}

	return state
}

func slotOf(m *Module, addr uint64) (set, way int) {
	set, way, _, found := m.findBlock(m.Tag(addr))
	Expect(found).To(BeTrue())

	return set, way
}

func seedBlock(m *Module, addr uint64, state cache.BlockState) (set, way int) {
	tag := m.Tag(addr)
	set = m.SetIndex(tag)
	way = m.cache.FindVictim(set)
	m.cache.SetBlock(set, way, tag, state)

	return set, way
}

func recordFinishes(m *Module) *[]AccessRecord {
	records := &[]AccessRecord{}

	m.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
		if ctx.Pos != HookPosAccessFinish {
			return
		}

		*records = append(*records, ctx.Item.(AccessRecord))
	}))

	return records
}

var _ = Describe("Protocol", func() {
	const addr = uint64(0x1000)

	var (
		h       *hierarchy
		witness int
	)

	BeforeEach(func() {
		h = newHierarchy(MakeBuilder())
		witness = 0
	})

	Context("load", func() {
		It("should fill every level on a miss", func() {
			records := recordFinishes(h.l1a)

			id := h.proto.Load(Access{
				Module:  h.l1a,
				Addr:    addr + 4,
				Witness: &witness,
				Info:    "first",
			})
			h.run()

			Expect(witness).To(Equal(1))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Exclusive))
			Expect(stateOf(h.l2, addr)).To(Equal(cache.Exclusive))
			Expect(stateOf(h.mem, addr)).To(Equal(cache.Exclusive))

			set, way := slotOf(h.l2, addr)
			Expect(h.l2.Directory().IsSharer(set, way, 0,
				h.l1a.DirectoryID())).To(BeTrue())
			set, way = slotOf(h.mem, addr)
			Expect(h.mem.Directory().IsSharer(set, way, 0,
				h.l2.DirectoryID())).To(BeTrue())

			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(8 + 72)))
			Expect(h.lowerNet.NumBytesSent()).To(Equal(uint64(8 + 72)))

			stats := h.l1a.Stats()
			Expect(stats.Loads).To(Equal(uint64(1)))
			Expect(stats.ReadMisses).To(Equal(uint64(1)))
			Expect(stats.DataAccesses).To(Equal(uint64(1)))
			Expect(h.l1a.NumInflightAccesses()).To(Equal(0))

			Expect(*records).To(HaveLen(1))
			Expect((*records)[0].ID).To(Equal(id))
			Expect((*records)[0].Kind).To(Equal(AccessLoad))
			Expect((*records)[0].Info).To(Equal("first"))
			Expect((*records)[0].FinishTime).
				To(BeNumerically(">", (*records)[0].StartTime))
		})

		It("should hit after a fill", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(2))
			Expect(h.l1a.Stats().ReadHits).To(Equal(uint64(1)))
			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(80)))
		})

		It("should fill a second cache in the shared state", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			h.proto.Load(Access{Module: h.l1b, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(2))
			Expect(stateOf(h.l1b, addr)).To(Equal(cache.Shared))
			Expect(h.l2.Stats().ReadHits).To(Equal(uint64(1)))
			Expect(h.lowerNet.NumBytesSent()).To(Equal(uint64(80)))
		})

		It("should forward the block from an exclusive owner", func() {
			seedBlock(h.l1a, addr, cache.Exclusive)
			set, way := seedBlock(h.l2, addr, cache.Exclusive)
			h.l2.Directory().SetOwner(set, way, 0, h.l1a.DirectoryID())

			h.proto.Load(Access{Module: h.l1b, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(1))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Shared))
			Expect(stateOf(h.l1b, addr)).To(Equal(cache.Shared))
			Expect(h.l2.Directory().Owner(set, way, 0)).
				To(Equal(directory.OwnerNone))
			Expect(h.l2.Directory().NumSharers(set, way, 0)).To(Equal(2))

			Expect(h.upperNet.NumBytesSent()).
				To(Equal(uint64(8 + 8 + 72 + 8 + 8 + 8)))
			Expect(h.l1b.LowNode().NumBytesReceived()).To(Equal(uint64(72 + 8)))
			Expect(h.l1a.LowNode().NumBytesSent()).To(Equal(uint64(72 + 8)))
			Expect(h.lowerNet.NumBytesSent()).To(Equal(uint64(0)))
			Expect(h.l1a.Stats().ReadProbes).To(Equal(uint64(1)))
		})

		It("should keep a modified owner as the owner", func() {
			seedBlock(h.l1a, addr, cache.Modified)
			set, way := seedBlock(h.l2, addr, cache.Exclusive)
			h.l2.Directory().SetOwner(set, way, 0, h.l1a.DirectoryID())

			h.proto.Load(Access{Module: h.l1b, Addr: addr, Witness: &witness})
			h.run()

			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Owned))
			Expect(stateOf(h.l1b, addr)).To(Equal(cache.Shared))
			Expect(h.l2.Directory().Owner(set, way, 0)).
				To(Equal(h.l1a.DirectoryID()))
		})

		It("should stop on a probe of a block that is not there", func() {
			set, way := seedBlock(h.l2, addr, cache.Exclusive)
			h.l2.Directory().SetOwner(set, way, 0, h.l1a.DirectoryID())

			h.proto.Load(Access{Module: h.l1b, Addr: addr})
			err := h.runForViolation()

			Expect(err).To(HaveOccurred())
			Expect(merry.Is(err, ErrProtocolViolation)).To(BeTrue())
			Expect(ViolationModule(err)).To(Equal("L1a"))
			Expect(ViolationAddr(err)).To(Equal(addr))
			Expect(ViolationState(err)).To(Equal(cache.Invalid))
		})
	})

	Context("store", func() {
		It("should hit in an exclusive block", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			h.proto.Store(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(2))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Modified))
			Expect(h.l1a.Stats().WriteHits).To(Equal(uint64(1)))
			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(80)))
		})

		It("should write through on a miss", func() {
			h.proto.Store(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(1))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Modified))
			Expect(stateOf(h.l2, addr)).To(Equal(cache.Invalid))
			Expect(stateOf(h.mem, addr)).To(Equal(cache.NonCoherent))
			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(8 + 72)))
			Expect(h.lowerNet.NumBytesSent()).To(Equal(uint64(8 + 72)))
			Expect(h.l1a.Stats().WriteMisses).To(Equal(uint64(1)))
		})

		It("should invalidate the other owner", func() {
			seedBlock(h.l1a, addr, cache.Modified)
			set, way := seedBlock(h.l2, addr, cache.Exclusive)
			h.l2.Directory().SetOwner(set, way, 0, h.l1a.DirectoryID())

			h.proto.Store(Access{Module: h.l1b, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(1))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Invalid))
			Expect(stateOf(h.l1b, addr)).To(Equal(cache.Modified))
			Expect(stateOf(h.l2, addr)).To(Equal(cache.NonCoherent))
			Expect(stateOf(h.mem, addr)).To(Equal(cache.NonCoherent))
			Expect(h.l2.Directory().Owner(set, way, 0)).
				To(Equal(directory.OwnerNone))
			Expect(h.l2.Directory().IsSharer(set, way, 0,
				h.l1a.DirectoryID())).To(BeFalse())
			Expect(h.upperNet.NumBytesSent()).
				To(Equal(uint64(8 + 8 + 72 + 8 + 8 + 8)))
			Expect(h.l1a.Stats().WriteProbes).To(Equal(uint64(1)))
		})
	})

	Context("nc-store", func() {
		It("should write through without allocating", func() {
			h.proto.NCStore(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(1))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Invalid))
			Expect(stateOf(h.l2, addr)).To(Equal(cache.Invalid))
			Expect(stateOf(h.mem, addr)).To(Equal(cache.NonCoherent))
			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(72 + 8)))
			Expect(h.lowerNet.NumBytesSent()).To(Equal(uint64(72 + 8)))
			Expect(h.l1a.Stats().NCWriteMisses).To(Equal(uint64(1)))
		})

		It("should mark every copy on the way non-coherent", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr})
			h.run()

			h.proto.NCStore(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(1))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.NonCoherent))
			Expect(stateOf(h.l2, addr)).To(Equal(cache.NonCoherent))
			Expect(stateOf(h.mem, addr)).To(Equal(cache.NonCoherent))
			Expect(h.l1a.Stats().NCWriteHits).To(Equal(uint64(1)))
		})

		It("should make later fills shared", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr})
			h.run()
			h.proto.NCStore(Access{Module: h.l1a, Addr: addr})
			h.run()

			h.proto.Load(Access{Module: h.l1b, Addr: addr, Witness: &witness})
			h.run()

			Expect(stateOf(h.l1b, addr)).To(Equal(cache.Shared))
		})
	})

	Context("message", func() {
		It("should clear the owner", func() {
			seedBlock(h.l1a, addr, cache.Exclusive)
			set, way := seedBlock(h.l2, addr, cache.Exclusive)
			h.l2.Directory().SetOwner(set, way, 0, h.l1a.DirectoryID())

			h.proto.SendMessage(
				Access{Module: h.l1a, Addr: addr, Witness: &witness},
				MessageClearOwner)
			h.run()

			Expect(witness).To(Equal(1))
			Expect(h.l2.Directory().Owner(set, way, 0)).
				To(Equal(directory.OwnerNone))
			Expect(h.l2.Directory().IsSharer(set, way, 0,
				h.l1a.DirectoryID())).To(BeTrue())
			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(16)))
			Expect(h.l1a.Stats().Messages).To(Equal(uint64(1)))
		})

		It("should stop when another module owns the block", func() {
			set, way := seedBlock(h.l2, addr, cache.Exclusive)
			h.l2.Directory().SetOwner(set, way, 0, h.l1b.DirectoryID())

			h.proto.SendMessage(Access{Module: h.l1a, Addr: addr},
				MessageClearOwner)
			err := h.runForViolation()

			Expect(merry.Is(err, ErrProtocolViolation)).To(BeTrue())
			Expect(ViolationModule(err)).To(Equal("L2"))
		})

		It("should stop on an unknown message", func() {
			seedBlock(h.l2, addr, cache.Exclusive)

			h.proto.SendMessage(Access{Module: h.l1a, Addr: addr}, MessageNone)
			err := h.runForViolation()

			Expect(merry.Is(err, ErrProtocolViolation)).To(BeTrue())
		})

		It("should refuse a module without a module below", func() {
			Expect(func() {
				h.proto.SendMessage(Access{Module: h.mem, Addr: addr},
					MessageClearOwner)
			}).To(Panic())
		})

		It("should stop when a write data fails", func() {
			op := &Operation{mod: h.l1a, target: h.l2, addr: addr, err: true}
			isViolation := Satisfy(func(v interface{}) bool {
				err, ok := v.(error)
				return ok && merry.Is(err, ErrProtocolViolation)
			})

			Expect(func() { h.proto.ncStoreMiss(op) }).
				To(PanicWith(isViolation))
			Expect(func() { h.proto.writeDataAction(op) }).
				To(PanicWith(isViolation))
			Expect(func() { h.proto.writeDataLower(op) }).
				To(PanicWith(isViolation))
		})
	})

	Context("ordering", func() {
		It("should coalesce loads to the same block", func() {
			records := recordFinishes(h.l1a)

			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.proto.Load(Access{Module: h.l1a, Addr: addr + 8, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(2))
			Expect(h.l1a.Stats().CoalescedReads).To(Equal(uint64(1)))
			Expect(h.upperNet.NumBytesSent()).To(Equal(uint64(80)))
			Expect(*records).To(HaveLen(2))
			Expect((*records)[0].Coalesced).To(BeFalse())
			Expect((*records)[1].Coalesced).To(BeTrue())
			Expect((*records)[0].State.IsValid()).To(BeTrue())
			Expect((*records)[0].State).To(Equal(stateOf(h.l1a, addr)))
			Expect((*records)[1].State).To(Equal((*records)[0].State))
		})

		It("should report the state resolved by a coalesced store", func() {
			records := recordFinishes(h.l1a)

			h.proto.Store(Access{Module: h.l1a, Addr: addr})
			h.proto.Store(Access{Module: h.l1a, Addr: addr + 4})
			h.run()

			Expect(*records).To(HaveLen(2))
			Expect((*records)[1].Coalesced).To(BeTrue())
			Expect((*records)[0].State).To(Equal(cache.Modified))
			Expect((*records)[1].State).To(Equal(cache.Modified))
		})

		It("should take the lock of a store after the older load finishes",
			func() {
				events := []string{}

				h.l1a.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
					if ctx.Pos == HookPosAccessFinish {
						events = append(events,
							"finish "+ctx.Item.(AccessRecord).Kind.String())
					}
				}))
				h.l1a.Directory().(*directory.Directory).AcceptHook(
					hooking.HookFunc(func(ctx hooking.HookCtx) {
						if ctx.Pos == directory.HookPosLock {
							events = append(events, "lock")
						}
					}))

				h.proto.Load(Access{Module: h.l1a, Addr: addr})
				h.proto.Store(Access{Module: h.l1a, Addr: addr})
				h.run()

				Expect(events).To(Equal([]string{
					"lock",
					"finish " + AccessLoad.String(),
					"lock",
					"finish " + AccessStore.String(),
				}))
			})

		It("should finish accesses to a block in program order", func() {
			records := recordFinishes(h.l1a)

			first := h.proto.Load(Access{Module: h.l1a, Addr: addr})
			second := h.proto.Store(Access{Module: h.l1a, Addr: addr})
			third := h.proto.Load(Access{Module: h.l1a, Addr: addr})
			h.run()

			ids := []uint64{}
			for _, r := range *records {
				ids = append(ids, r.ID)
			}

			Expect(ids).To(Equal([]uint64{first, second, third}))
			Expect(stateOf(h.l1a, addr)).To(Equal(cache.Modified))
			Expect(h.l1a.Stats().WriteHits).To(Equal(uint64(1)))
		})

		It("should let accesses to different blocks proceed", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.proto.Store(Access{Module: h.l1a, Addr: addr + 0x40,
				Witness: &witness})
			h.proto.Load(Access{Module: h.l1a, Addr: addr + 0x80,
				Witness: &witness})
			h.run()

			Expect(witness).To(Equal(3))
			Expect(h.l1a.Stats().CoalescedReads).To(Equal(uint64(0)))
		})
	})

	Context("contention", func() {
		It("should never let two operations hold a block", func() {
			type slotKey struct {
				dir  string
				x, y int
			}

			held := map[slotKey]bool{}
			watch := hooking.HookFunc(func(ctx hooking.HookCtx) {
				evt := ctx.Item.(directory.LockEvent)
				dir := ctx.Domain.(*directory.Directory)
				slot := slotKey{dir: dir.Name(), x: evt.X, y: evt.Y}

				switch ctx.Pos {
				case directory.HookPosLock:
					Expect(held[slot]).To(BeFalse())
					held[slot] = true
				case directory.HookPosUnlock:
					Expect(held[slot]).To(BeTrue())
					held[slot] = false
				}
			})

			for _, m := range []*Module{h.l1a, h.l1b, h.l2, h.mem} {
				m.Directory().(*directory.Directory).AcceptHook(watch)
			}

			n := 0
			for i := 0; i < 12; i++ {
				a := addr + uint64(i%4)*0x40*64
				for _, m := range []*Module{h.l1a, h.l1b} {
					switch i % 3 {
					case 0:
						h.proto.Load(Access{Module: m, Addr: a, Witness: &witness})
					case 1:
						h.proto.Store(Access{Module: m, Addr: a, Witness: &witness})
					case 2:
						h.proto.NCStore(Access{Module: m, Addr: a, Witness: &witness})
					}
					n++
				}
			}
			h.run()

			Expect(witness).To(Equal(n))
			for slot, locked := range held {
				Expect(locked).To(BeFalse(), "slot %v still locked", slot)
			}
			Expect(h.l1a.NumInflightAccesses()).To(Equal(0))
			Expect(h.l1b.NumInflightAccesses()).To(Equal(0))
			Expect(h.upperNet.NumInflightMsgs()).To(Equal(0))
		})

		It("should retry a load that meets a locked block below", func() {
			h.proto.Load(Access{Module: h.l1a, Addr: addr, Witness: &witness})
			h.proto.Load(Access{Module: h.l1b, Addr: addr, Witness: &witness})
			h.run()

			Expect(witness).To(Equal(2))
			Expect(h.l2.Stats().DirEntryConflicts).
				To(BeNumerically(">=", uint64(1)))
			Expect(h.l1b.Stats().RetryAccesses).
				To(BeNumerically(">=", uint64(1)))
			Expect(stateOf(h.l1b, addr)).To(Equal(cache.Shared))
		})
	})

	Context("tracing", func() {
		It("should report tasks and steps to the module of the access", func() {
			latency := hooking.NewLatencyTracer(h.engine, nil)
			steps := hooking.NewStepCountTracer(nil)
			h.l1a.AcceptHook(latency)
			h.l1a.AcceptHook(steps)

			h.proto.Load(Access{Module: h.l1a, Addr: addr})
			h.run()

			groups := latency.Groups()
			Expect(groups).To(HaveLen(1))
			Expect(groups[0].What).To(Equal("load"))
			Expect(groups[0].Count).To(Equal(uint64(1)))
			Expect(latency.NumInflightTasks()).To(Equal(0))

			Expect(steps.GetStepCount("L1a:load_miss")).To(Equal(uint64(1)))
			Expect(steps.GetStepCount("L2:read_request_updown")).
				To(Equal(uint64(1)))
			Expect(steps.GetStepCount("Mem:find_and_lock_finish")).
				To(Equal(uint64(1)))
		})
	})
})

var _ = Describe("Protocol with a prefetcher", func() {
	var (
		mockCtrl   *gomock.Controller
		prefetcher *MockPrefetcher
		h          *hierarchy
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		prefetcher = NewMockPrefetcher(mockCtrl)
		h = newHierarchy(MakeBuilder().WithPrefetcher(prefetcher))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report misses and hits of the client accesses", func() {
		gomock.InOrder(
			prefetcher.EXPECT().AccessMiss(h.l1a, uint64(0x2000)),
			prefetcher.EXPECT().AccessHit(h.l1a, uint64(0x2004)),
		)

		h.proto.Load(Access{Module: h.l1a, Addr: 0x2000})
		h.run()

		h.proto.Store(Access{Module: h.l1a, Addr: 0x2004})
		h.run()
	})
})
