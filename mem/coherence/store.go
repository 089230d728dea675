package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
)

func (p *Protocol) store(op *Operation) {
	p.admit(op)

	if master := p.coalesceTarget(op); master != nil {
		op.mod.stats.CoalescedWrites++
		p.coalesce(op, master, stepStoreFinish)

		return
	}

	p.schedule(op, stepStoreLock, 0)
}

func (p *Protocol) storeLock(op *Operation) {
	if p.waitForOlderAccess(op, stepStoreLock) {
		return
	}

	lookup := p.newLookup(op, op.mod, stepStoreAction)
	lookup.blocking = true
	lookup.write = true
	p.schedule(lookup, stepFindAndLock, 0)
}

func (p *Protocol) storeAction(op *Operation) {
	mod := op.mod

	if op.err {
		p.retryAccess(op, stepStoreLock)
		return
	}

	if op.state.CanWrite() {
		p.schedule(op, stepStoreUnlock, 0)
		p.notifyHit(mod, op.addr)

		return
	}

	req := p.newRequest(op, mod, mod.LowModule(op.tag), op.tag,
		DirectionUpDown, stepStoreUnlock)
	req.peer = peerFor(mod, op.state)
	p.schedule(req, stepWriteRequest, 0)

	p.notifyMiss(mod, op.addr)
}

func (p *Protocol) storeUnlock(op *Operation) {
	mod := op.mod

	if op.err {
		p.unlockSlot(mod, op)
		p.retryAccess(op, stepStoreLock)

		return
	}

	op.state = cache.Modified
	mod.cache.SetBlock(op.set, op.way, op.tag, op.state)
	p.unlockSlot(mod, op)
	mod.stats.DataAccesses++
	p.schedule(op, stepStoreFinish, mod.dataLatency)
}
