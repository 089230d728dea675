package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
)

func (p *Protocol) ncStore(op *Operation) {
	p.admit(op)

	if master := p.coalesceTarget(op); master != nil {
		op.mod.stats.CoalescedNCWrites++
		p.coalesce(op, master, stepNCStoreFinish)

		return
	}

	p.schedule(op, stepNCStoreLock, 0)
}

func (p *Protocol) ncStoreLock(op *Operation) {
	if p.waitForOlderWrite(op, stepNCStoreLock) {
		return
	}

	if p.waitForOlderAccess(op, stepNCStoreLock) {
		return
	}

	lookup := p.newLookup(op, op.mod, stepNCStoreAction)
	lookup.blocking = true
	lookup.ncWrite = true
	lookup.writeThrough = true
	p.schedule(lookup, stepFindAndLock, 0)
}

// ncStoreAction updates the local copy, if any, while the data is written
// through to the module below.
func (p *Protocol) ncStoreAction(op *Operation) {
	mod := op.mod

	if op.err {
		p.retryAccess(op, stepNCStoreLock)
		return
	}

	op.pending.reset(1)

	if !mod.isMainMemory() {
		req := p.newRequest(op, mod, mod.LowModule(op.tag), op.tag,
			DirectionUpDown, stepNCStoreMiss)
		op.pending.spawn(1)
		p.schedule(req, stepWriteData, 0)
	}

	p.schedule(op, stepNCStoreUnlock, 0)

	if op.state.IsValid() {
		p.notifyHit(mod, op.addr)
	} else {
		p.notifyMiss(mod, op.addr)
	}
}

func (p *Protocol) ncStoreMiss(op *Operation) {
	if op.err {
		panic(protocolViolation(op.mod, op.addr, op.state,
			"write data below %s failed", op.mod.Name()))
	}

	p.ncStoreMerge(op)
}

func (p *Protocol) ncStoreUnlock(op *Operation) {
	mod := op.mod

	if !op.state.IsValid() {
		p.schedule(op, stepNCStoreMerge, 0)
		return
	}

	op.state = cache.NonCoherent
	mod.cache.SetBlock(op.set, op.way, op.tag, op.state)
	p.unlockSlot(mod, op)
	mod.stats.DataAccesses++
	p.schedule(op, stepNCStoreMerge, mod.dataLatency)
}

// ncStoreMerge joins the local update and the write through.
func (p *Protocol) ncStoreMerge(op *Operation) {
	if !op.pending.arrive() {
		return
	}

	p.schedule(op, stepNCStoreFinish, 0)
}
