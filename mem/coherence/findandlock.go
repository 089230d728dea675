package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
)

// writeThroughLookup tells if a lookup must not allocate a block on a miss.
// Main memory always allocates, since it holds every block.
func writeThroughLookup(op *Operation) bool {
	return op.writeThrough && !op.mod.isMainMemory()
}

func (p *Protocol) findAndLock(op *Operation) {
	parent := p.parentOf(op)
	parent.err = false

	op.way = -1
	op.hit = false
	p.lockPort(op, stepFindAndLockPort)
}

//nolint:funlen
func (p *Protocol) findAndLockPort(op *Operation) {
	mod := op.mod
	parent := p.parentOf(op)

	mod.stats.Accesses++
	if op.retry {
		mod.stats.RetryAccesses++
	}

	parent.portLocked = true

	op.tag = mod.Tag(op.addr)
	set, way, state, found := mod.findBlock(op.tag)
	op.set = set
	op.hit = found

	if found {
		op.way = way
		op.state = state
	}

	if !found && writeThroughLookup(op) {
		op.way = -1
		op.state = cache.Invalid
		p.leaveWaitList(op, -1, -1)
		mod.stats.countLookup(op)
		p.debugf(op, "%s write-through miss", mod.Name())
		p.schedule(op, stepFindAndLockAction, mod.dirLatency)

		return
	}

	if !found && op.way < 0 {
		op.way = mod.cache.FindVictim(op.set)
	}

	if mod.dir.IsLocked(op.set, op.way) && !op.blocking {
		p.debugf(op, "%s block (%d, %d) locked, abort",
			mod.Name(), op.set, op.way)
		parent.err = true
		p.unlockPort(op)
		parent.portLocked = false
		p.countConflict(op)
		p.ret(op)

		return
	}

	p.leaveWaitList(op, op.set, op.way)

	h, set, way := op.handle, op.set, op.way
	if !mod.dir.Lock(op.set, op.way, op.accessID, func() {
		if w, alive := p.ops[h]; alive {
			w.woken = true
			w.wokenSet, w.wokenWay = set, way
		}

		p.scheduleHandle(h, stepFindAndLock, 1)
	}) {
		p.debugf(op, "%s block (%d, %d) locked, wait",
			mod.Name(), op.set, op.way)
		p.unlockPort(op)
		parent.portLocked = false
		p.countConflict(op)

		return
	}

	parent.slotLocked = true

	if !found {
		op.state = mod.cache.Block(op.set, op.way).State
		if !op.state.IsValid() && mod.dir.GroupSharedOrOwned(op.set, op.way) {
			panic(protocolViolation(mod, op.addr, op.state,
				"invalid victim (%d, %d) still has sharers", op.set, op.way))
		}
	}

	mod.stats.countLookup(op)
	mod.cache.SetTransientTag(op.set, op.way, op.tag)
	mod.cache.Visit(op.set, op.way)

	p.schedule(op, stepFindAndLockAction, mod.dirLatency)
}

// leaveWaitList hands the turn of a woken lookup over to the next waiter of
// the block it waited for, unless the lookup goes for the same block again.
func (p *Protocol) leaveWaitList(op *Operation, set, way int) {
	if !op.woken {
		return
	}

	op.woken = false
	if op.wokenSet == set && op.wokenWay == way {
		return
	}

	op.mod.dir.WakeNext(op.wokenSet, op.wokenWay)
}

func (p *Protocol) countConflict(op *Operation) {
	op.mod.stats.DirEntryConflicts++
	if op.retry {
		op.mod.stats.RetryDirEntryConflicts++
	}
}

func (p *Protocol) findAndLockAction(op *Operation) {
	parent := p.parentOf(op)

	p.unlockPort(op)
	parent.portLocked = false

	if !op.hit && op.state.IsValid() {
		if !writeThroughLookup(op) {
			p.evict(op)
		}

		op.state = cache.Invalid
	}

	p.schedule(op, stepFindAndLockFinish, 0)
}

// evict drops the victim block of a lookup that missed, together with the
// directory entries of the victim.
func (p *Protocol) evict(op *Operation) {
	mod := op.mod

	p.debugf(op, "%s evict block (%d, %d) in state %s",
		mod.Name(), op.set, op.way, op.state)

	mod.cache.SetBlock(op.set, op.way, 0, cache.Invalid)

	for z := 0; z < mod.dir.NumSubBlocks(); z++ {
		mod.dir.ClearAllSharers(op.set, op.way, z)
	}

	mod.stats.Evictions++
}

func (p *Protocol) findAndLockFinish(op *Operation) {
	mod := op.mod
	parent := p.parentOf(op)

	if mod.isMainMemory() && !op.state.IsValid() {
		op.state = cache.Exclusive
		mod.cache.SetBlock(op.set, op.way, op.tag, op.state)
	}

	parent.err = false
	parent.hit = op.hit
	parent.set = op.set
	parent.way = op.way
	parent.state = op.state
	parent.tag = op.tag

	p.ret(op)
}
