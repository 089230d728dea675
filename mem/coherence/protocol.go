// Package coherence implements the NMOESI write-through coherence protocol
// that serves the loads, stores and non-coherent stores of a hierarchy of
// memory modules.
//
// Every activity of the protocol is an Operation that advances one step per
// event. Operations spawn child operations to look up and lock blocks, to
// send requests to the modules above and below, and to forward data to peer
// modules. A child reports its results to its parent and resumes the parent
// when it returns.
package coherence

import (
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/mem/directory"
	"github.com/sarchlab/nmoesi/noc"
	"github.com/sarchlab/nmoesi/sim/hooking"
	"github.com/sarchlab/nmoesi/sim/id"
	"github.com/sarchlab/nmoesi/sim/timing"
)

// An Access is a request from a client of a module.
type Access struct {
	Module *Module
	Addr   uint64

	// Witness, if not nil, is incremented once when the access finishes.
	Witness *int

	// Info is opaque client data reported back in the AccessRecord.
	Info interface{}

	// Resource, if not nil, is released when the access finishes.
	Resource Resource
}

// Protocol runs the state machines of all the modules of a hierarchy.
type Protocol struct {
	engine timing.Engine
	freq   timing.Freq
	logger *logrus.Logger

	ops          map[OpHandle]*Operation
	nextHandle   OpHandle
	nextAccessID uint64
}

// NewProtocol creates a protocol that schedules its steps on the engine,
// counting latencies in cycles of freq. A nil logger discards debug output.
func NewProtocol(
	engine timing.Engine,
	freq timing.Freq,
	logger *logrus.Logger,
) *Protocol {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Protocol{
		engine: engine,
		freq:   freq,
		logger: logger,
		ops:    make(map[OpHandle]*Operation),
	}
}

// NumLiveOperations returns the number of operations that have not returned.
func (p *Protocol) NumLiveOperations() int {
	return len(p.ops)
}

// Load reads the block that holds the address into the module. It returns
// the ID of the access.
func (p *Protocol) Load(a Access) uint64 {
	op := p.newAccess(a, AccessLoad)
	p.schedule(op, stepLoad, 0)

	return op.accessID
}

// Store writes to the address. It returns the ID of the access.
func (p *Protocol) Store(a Access) uint64 {
	op := p.newAccess(a, AccessStore)
	p.schedule(op, stepStore, 0)

	return op.accessID
}

// NCStore writes to the address without acquiring the ownership of the
// block. It returns the ID of the access.
func (p *Protocol) NCStore(a Access) uint64 {
	op := p.newAccess(a, AccessNCStore)
	p.schedule(op, stepNCStore, 0)

	return op.accessID
}

// SendMessage sends a control message about the block that holds the
// address to the module below. It returns the ID of the access.
func (p *Protocol) SendMessage(a Access, kind MessageKind) uint64 {
	if a.Module != nil && a.Module.LowModule(a.Addr) == nil {
		panic(fmt.Sprintf("module %s has no module below", a.Module.Name()))
	}

	op := p.newAccess(a, AccessMessage)
	op.msgKind = kind
	p.schedule(op, stepMessage, 0)

	return op.accessID
}

func (p *Protocol) newAccess(a Access, kind AccessKind) *Operation {
	if a.Module == nil {
		panic("access without a module")
	}

	p.nextAccessID++

	op := p.newOp(nil, a.Module, a.Addr, stepNone)
	op.accessID = p.nextAccessID
	op.taskID = id.Generate()
	op.origin = a.Module
	op.tag = a.Module.Tag(a.Addr)
	op.kind = kind
	op.witness = a.Witness
	op.info = a.Info
	op.resource = a.Resource

	return op
}

// newOp creates an operation of module mod. A child operation serves the
// same access as its parent and resumes the parent at retStep.
func (p *Protocol) newOp(
	parent *Operation,
	mod *Module,
	addr uint64,
	retStep step,
) *Operation {
	p.nextHandle++

	op := &Operation{
		handle:  p.nextHandle,
		mod:     mod,
		addr:    addr,
		set:     -1,
		way:     -1,
		retStep: retStep,
	}

	if parent != nil {
		op.parent = parent.handle
		op.accessID = parent.accessID
		op.taskID = parent.taskID
		op.origin = parent.origin
	}

	p.ops[op.handle] = op

	return op
}

// newRequest creates a request from mod to target.
func (p *Protocol) newRequest(
	parent *Operation,
	mod, target *Module,
	addr uint64,
	dir Direction,
	retStep step,
) *Operation {
	if target == nil {
		panic(fmt.Sprintf("module %s has no module to send %s requests to",
			mod.Name(), dir))
	}

	op := p.newOp(parent, mod, addr, retStep)
	op.target = target
	op.dir = dir

	return op
}

// Handle runs a step of an operation.
func (p *Protocol) Handle(e timing.Event) error {
	evt, ok := e.(*stepEvent)
	if !ok {
		log.Panicf("coherence protocol cannot handle event %T", e)
	}

	op, found := p.ops[evt.op]
	if !found {
		log.Panicf("operation %d is not alive at step %s", evt.op, evt.step)
	}

	op.step = evt.step
	p.traceStep(op, evt.step)
	p.run(op, evt.step)

	return nil
}

//nolint:gocyclo,funlen
func (p *Protocol) run(op *Operation, s step) {
	switch s {
	case stepLoad:
		p.load(op)
	case stepLoadLock:
		p.loadLock(op)
	case stepLoadAction:
		p.loadAction(op)
	case stepLoadMiss:
		p.loadMiss(op)
	case stepLoadUnlock:
		p.loadUnlock(op)
	case stepLoadFinish:
		p.finishAccess(op)

	case stepStore:
		p.store(op)
	case stepStoreLock:
		p.storeLock(op)
	case stepStoreAction:
		p.storeAction(op)
	case stepStoreUnlock:
		p.storeUnlock(op)
	case stepStoreFinish:
		p.finishAccess(op)

	case stepNCStore:
		p.ncStore(op)
	case stepNCStoreLock:
		p.ncStoreLock(op)
	case stepNCStoreAction:
		p.ncStoreAction(op)
	case stepNCStoreMiss:
		p.ncStoreMiss(op)
	case stepNCStoreUnlock:
		p.ncStoreUnlock(op)
	case stepNCStoreMerge:
		p.ncStoreMerge(op)
	case stepNCStoreFinish:
		p.finishAccess(op)

	case stepMessage:
		p.message(op)
	case stepMessageAction:
		p.messageAction(op)
	case stepMessageFinish:
		p.finishAccess(op)

	case stepFindAndLock:
		p.findAndLock(op)
	case stepFindAndLockPort:
		p.findAndLockPort(op)
	case stepFindAndLockAction:
		p.findAndLockAction(op)
	case stepFindAndLockFinish:
		p.findAndLockFinish(op)

	case stepReadRequest:
		p.readRequest(op)
	case stepReadRequestReceive:
		p.readRequestReceive(op)
	case stepReadRequestAction:
		p.readRequestAction(op)
	case stepReadRequestUpdown:
		p.readRequestUpdown(op)
	case stepReadRequestUpdownMiss:
		p.readRequestUpdownMiss(op)
	case stepReadRequestUpdownFinish:
		p.readRequestUpdownFinish(op)
	case stepReadRequestDownup:
		p.readRequestDownup(op)
	case stepReadRequestDownupWaitForReqs:
		p.readRequestDownupWaitForReqs(op)
	case stepReadRequestDownupFinish:
		p.readRequestDownupFinish(op)
	case stepReadRequestReply:
		p.sendReply(op, stepReadRequestFinish)
	case stepReadRequestFinish:
		p.receiveReplyAndReturn(op)

	case stepWriteRequest:
		p.writeRequest(op)
	case stepWriteRequestReceive:
		p.writeRequestReceive(op)
	case stepWriteRequestAction:
		p.writeRequestAction(op)
	case stepWriteRequestUpdown:
		p.writeRequestUpdown(op)
	case stepWriteRequestUpdownFinish:
		p.writeRequestUpdownFinish(op)
	case stepWriteRequestDownup:
		p.writeRequestDownup(op)
	case stepWriteRequestDownupFinish:
		p.writeRequestDownupFinish(op)
	case stepWriteRequestReply:
		p.sendReply(op, stepWriteRequestFinish)
	case stepWriteRequestFinish:
		p.receiveReplyAndReturn(op)

	case stepWriteData:
		p.writeData(op)
	case stepWriteDataReceive:
		p.writeDataReceive(op)
	case stepWriteDataAction:
		p.writeDataAction(op)
	case stepWriteDataLower:
		p.writeDataLower(op)
	case stepWriteDataBlock:
		p.writeDataBlock(op)
	case stepWriteDataDone:
		p.writeDataDone(op)
	case stepWriteDataReply:
		p.sendReply(op, stepWriteDataFinish)
	case stepWriteDataFinish:
		p.receiveReplyAndReturn(op)

	case stepPeerSend:
		p.peerSend(op)
	case stepPeerReceive:
		p.peerReceive(op)
	case stepPeerReply:
		p.peerReply(op)
	case stepPeerFinish:
		p.peerFinish(op)

	case stepMsg:
		p.msgRequest(op)
	case stepMsgReceive:
		p.msgReceive(op)
	case stepMsgAction:
		p.msgAction(op)
	case stepMsgReply:
		p.sendReply(op, stepMsgFinish)
	case stepMsgFinish:
		p.receiveReplyAndReturn(op)

	default:
		log.Panicf("unknown step %d", s)
	}
}

type stepEvent struct {
	*timing.EventBase
	step step
	op   OpHandle
}

// schedule runs the step of the operation a number of cycles later.
func (p *Protocol) schedule(op *Operation, s step, cycles int) {
	p.scheduleHandle(op.handle, s, cycles)
}

func (p *Protocol) scheduleHandle(h OpHandle, s step, cycles int) {
	t := p.freq.NCyclesLater(cycles, p.engine.Now())

	p.engine.Schedule(&stepEvent{
		EventBase: timing.NewEventBase(t, p),
		step:      s,
		op:        h,
	})
}

func (p *Protocol) mustGet(h OpHandle) *Operation {
	op, found := p.ops[h]
	if !found {
		log.Panicf("operation %d is not alive", h)
	}

	return op
}

func (p *Protocol) parentOf(op *Operation) *Operation {
	if op.parent == 0 {
		log.Panicf("operation %d has no parent", op.handle)
	}

	return p.mustGet(op.parent)
}

// ret ends the operation. The operations waiting for it resume and the parent
// continues at the return step.
func (p *Protocol) ret(op *Operation) {
	for _, w := range op.waiters {
		waiting, alive := p.ops[w.op]
		if !alive {
			continue
		}

		if waiting.coalesced && waiting.master == op.handle {
			waiting.state = op.state
		}

		p.scheduleHandle(w.op, w.next, 0)
	}

	op.waiters = nil
	delete(p.ops, op.handle)

	if op.parent != 0 {
		p.scheduleHandle(op.parent, op.retStep, 0)
	}
}

// waitIn suspends op until other returns. Op then resumes at next.
func (p *Protocol) waitIn(op, other *Operation, next step) {
	other.waiters = append(other.waiters, waiter{op: op.handle, next: next})
}

func (p *Protocol) lockPort(op *Operation, next step) {
	if op.mod.ports.lock(portRequest{op: op.handle, next: next}) {
		p.schedule(op, next, 0)
	}
}

func (p *Protocol) unlockPort(op *Operation) {
	req, handedOver := op.mod.ports.unlock()
	if handedOver {
		p.scheduleHandle(req.op, req.next, 0)
	}
}

// unlockSlot releases the directory lock that op holds in the module.
func (p *Protocol) unlockSlot(mod *Module, op *Operation) {
	mod.dir.Unlock(op.set, op.way)
	op.slotLocked = false
}

// sendRequest sends the request from the issuing module to the target.
func (p *Protocol) sendRequest(op *Operation, size int, next step) {
	if op.dir == DirectionUpDown {
		p.send(op, op.mod.lowNet, op.mod.lowNode, op.target.highNode,
			size, next)
		return
	}

	p.send(op, op.mod.highNet, op.mod.highNode, op.target.lowNode,
		size, next)
}

func (p *Protocol) receiveRequest(op *Operation) {
	if op.dir == DirectionUpDown {
		op.target.highNet.Receive(op.target.highNode, op.msg)
		return
	}

	op.target.lowNet.Receive(op.target.lowNode, op.msg)
}

// sendReply sends the reply of the request back from the target to the
// issuing module.
func (p *Protocol) sendReply(op *Operation, next step) {
	if op.replySize <= 0 {
		panic(protocolViolation(op.target, op.addr, op.state,
			"reply of %d bytes", op.replySize))
	}

	if op.dir == DirectionUpDown {
		p.send(op, op.mod.lowNet, op.target.highNode, op.mod.lowNode,
			op.replySize, next)
		return
	}

	p.send(op, op.mod.highNet, op.target.lowNode, op.mod.highNode,
		op.replySize, next)
}

func (p *Protocol) receiveReplyAndReturn(op *Operation) {
	if op.dir == DirectionUpDown {
		op.mod.lowNet.Receive(op.mod.lowNode, op.msg)
	} else {
		op.mod.highNet.Receive(op.mod.highNode, op.msg)
	}

	p.ret(op)
}

func (p *Protocol) send(
	op *Operation,
	net Network,
	src, dst *noc.Node,
	size int,
	next step,
) {
	h := op.handle
	op.msg = net.Send(src, dst, size, func(*noc.Msg) {
		p.scheduleHandle(h, next, 0)
	})
}

func (p *Protocol) notifyHit(mod *Module, addr uint64) {
	if mod.prefetcher != nil {
		mod.prefetcher.AccessHit(mod, addr)
	}
}

func (p *Protocol) notifyMiss(mod *Module, addr uint64) {
	if mod.prefetcher != nil {
		mod.prefetcher.AccessMiss(mod, addr)
	}
}

// shrinkReply takes the bytes that a peer has received directly off the
// reply of op.
func (p *Protocol) shrinkReply(op *Operation, bytes int) {
	op.replySize -= bytes
	if op.replySize < ctrlMsgSize {
		panic(protocolViolation(op.target, op.addr, op.state,
			"reply size dropped to %d bytes", op.replySize))
	}
}

// replyKindForSize picks between an ack and an ack with data.
func (p *Protocol) replyKindForSize(op *Operation, mod *Module) ReplyKind {
	switch {
	case op.replySize == ctrlMsgSize:
		return ReplyAck
	case op.replySize > ctrlMsgSize:
		return ReplyAckData
	default:
		panic(protocolViolation(mod, op.addr, op.state,
			"invalid reply size %d", op.replySize))
	}
}

func (p *Protocol) setBlockAndClearOwners(
	mod *Module,
	op *Operation,
	state cache.BlockState,
) {
	mod.cache.SetBlock(op.set, op.way, op.tag, state)

	for z := 0; z < mod.dir.NumSubBlocks(); z++ {
		mod.dir.SetOwner(op.set, op.way, z, directory.OwnerNone)
	}
}

func (p *Protocol) traceStep(op *Operation, s step) {
	where := s.where(op)

	if p.logger.IsLevelEnabled(logrus.DebugLevel) {
		p.logger.WithFields(logrus.Fields{
			"time":   p.engine.Now(),
			"access": op.accessID,
			"addr":   fmt.Sprintf("%#x", op.addr),
			"module": where.Name(),
		}).Debug(s.String())
	}

	if op.origin == nil || op.origin.NumHooks() == 0 {
		return
	}

	hooking.AddTaskStep(op.origin, hooking.TaskStep{
		TaskID: op.taskID,
		Kind:   "step",
		What:   where.Name() + ":" + s.String(),
	})
}

func (p *Protocol) debugf(op *Operation, format string, args ...interface{}) {
	if !p.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	p.logger.WithFields(logrus.Fields{
		"time":   p.engine.Now(),
		"access": op.accessID,
		"addr":   fmt.Sprintf("%#x", op.addr),
	}).Debugf(format, args...)
}
