package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
)

func (p *Protocol) load(op *Operation) {
	p.admit(op)

	if master := p.coalesceTarget(op); master != nil {
		op.mod.stats.CoalescedReads++
		p.coalesce(op, master, stepLoadFinish)

		return
	}

	p.schedule(op, stepLoadLock, 0)
}

func (p *Protocol) loadLock(op *Operation) {
	if p.waitForOlderWrite(op, stepLoadLock) {
		return
	}

	if p.waitForOlderAccess(op, stepLoadLock) {
		return
	}

	lookup := p.newLookup(op, op.mod, stepLoadAction)
	lookup.blocking = true
	lookup.read = true
	p.schedule(lookup, stepFindAndLock, 0)
}

func (p *Protocol) loadAction(op *Operation) {
	mod := op.mod

	if op.err {
		p.retryAccess(op, stepLoadLock)
		return
	}

	if op.state.IsValid() {
		p.schedule(op, stepLoadUnlock, 0)
		p.notifyHit(mod, op.addr)

		return
	}

	req := p.newRequest(op, mod, mod.LowModule(op.tag), op.tag,
		DirectionUpDown, stepLoadMiss)
	req.peer = peerFor(mod, op.state)
	p.schedule(req, stepReadRequest, 0)

	p.notifyMiss(mod, op.addr)
}

func (p *Protocol) loadMiss(op *Operation) {
	mod := op.mod

	if op.err {
		p.unlockSlot(mod, op)
		p.retryAccess(op, stepLoadLock)

		return
	}

	op.state = cache.Exclusive
	if op.shared {
		op.state = cache.Shared
	}

	mod.cache.SetBlock(op.set, op.way, op.tag, op.state)
	p.schedule(op, stepLoadUnlock, 0)
}

func (p *Protocol) loadUnlock(op *Operation) {
	mod := op.mod

	p.unlockSlot(mod, op)
	mod.stats.DataAccesses++
	p.schedule(op, stepLoadFinish, mod.dataLatency)
}
