package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/mem/directory"
)

// A write request gives the module that sends it the right to write a block.
// Sent up-down, it makes the block non-coherent on its way to memory and
// invalidates the other owners. Sent down-up, it invalidates the block in an
// owner.

func (p *Protocol) writeRequest(op *Operation) {
	if op.dir == DirectionUpDown {
		p.parentOf(op).err = false
	}

	op.replySize = op.mod.blockSize + ctrlMsgSize
	op.setReply(ReplyAckData)

	p.sendRequest(op, ctrlMsgSize, stepWriteRequestReceive)
}

func (p *Protocol) writeRequestReceive(op *Operation) {
	p.receiveRequest(op)

	lookup := p.newOp(op, op.target, op.addr, stepWriteRequestAction)
	lookup.dir = op.dir
	lookup.blocking = op.dir == DirectionDownUp
	lookup.write = true
	lookup.ncWrite = true
	lookup.writeThrough = true
	lookup.retry = false
	p.schedule(lookup, stepFindAndLock, 0)
}

func (p *Protocol) writeRequestAction(op *Operation) {
	if op.err {
		if op.dir == DirectionDownUp {
			panic(protocolViolation(op.target, op.addr, op.state,
				"down-up write request failed to lock"))
		}

		parent := p.parentOf(op)
		parent.err = true
		parent.setReply(ReplyAckError)
		op.replySize = ctrlMsgSize
		p.schedule(op, stepWriteRequestReply, 0)

		return
	}

	if op.dir == DirectionUpDown {
		p.schedule(op, stepWriteRequestUpdown, 0)
	} else {
		p.schedule(op, stepWriteRequestDownup, 0)
	}
}

func (p *Protocol) writeRequestUpdown(op *Operation) {
	target := op.target

	op.pending.reset(1)

	if target.isMainMemory() {
		p.schedule(op, stepWriteRequestUpdownFinish, 0)
		return
	}

	if op.state.IsValid() {
		p.probeOwners(op, stepWriteRequestUpdownFinish, stepWriteRequest, true)
	}

	req := p.newRequest(op, target, target.LowModule(op.tag), op.tag,
		DirectionUpDown, stepWriteRequestUpdownFinish)
	op.pending.spawn(1)
	p.schedule(req, stepWriteRequest, 0)

	p.schedule(op, stepWriteRequestUpdownFinish, 0)
}

func (p *Protocol) writeRequestUpdownFinish(op *Operation) {
	if !op.pending.arrive() {
		return
	}

	target := op.target
	parent := p.parentOf(op)

	if op.err {
		parent.err = true
		parent.setReply(ReplyAckError)
		op.replySize = ctrlMsgSize

		if op.state.IsValid() {
			p.unlockSlot(target, op)
		}

		p.schedule(op, stepWriteRequestReply, 0)

		return
	}

	if op.state.IsValid() {
		op.state = cache.NonCoherent
		target.cache.SetBlock(op.set, op.way, op.tag, op.state)
		p.dropInvalidatedOwners(op)
	}

	parent.setReply(p.replyKindForSize(op, target))

	if op.state.IsValid() {
		p.unlockSlot(target, op)
	}

	latency := target.dataLatency
	if op.reply == ReplyAckDataSentToPeer {
		latency = 0
	}

	p.schedule(op, stepWriteRequestReply, latency)
}

// dropInvalidatedOwners removes the owners other than the requester, which
// the write request has invalidated, from the directory of the target.
func (p *Protocol) dropInvalidatedOwners(op *Operation) {
	target := op.target
	requester := op.mod.DirectoryID()

	for z := 0; z < target.dir.NumSubBlocks(); z++ {
		owner := target.dir.Owner(op.set, op.way, z)
		if owner == directory.OwnerNone || owner == requester {
			continue
		}

		target.dir.ClearSharer(op.set, op.way, z, owner)
	}
}

func (p *Protocol) writeRequestDownup(op *Operation) {
	target := op.target
	parent := p.parentOf(op)

	if !op.state.IsValid() ||
		target.dir.GroupSharedOrOwned(op.set, op.way) {
		panic(protocolViolation(target, op.addr, op.state,
			"down-up write request cannot invalidate block (%d, %d)",
			op.set, op.way))
	}

	switch op.state {
	case cache.Exclusive, cache.Shared:
		op.replySize = ctrlMsgSize
		parent.setReply(ReplyAck)
	case cache.NonCoherent:
		op.replySize = target.blockSize + ctrlMsgSize
		parent.setReply(ReplyAckData)
	case cache.Modified, cache.Owned:
		if op.peer != nil {
			parent.setReply(ReplyAckDataSentToPeer)
			op.replySize = ctrlMsgSize
			p.shrinkReply(parent, target.blockSize)
			p.sendToPeer(op, stepWriteRequestDownupFinish)

			return
		}

		op.replySize = target.blockSize + ctrlMsgSize
		parent.setReply(ReplyAckData)
	}

	p.schedule(op, stepWriteRequestDownupFinish, 0)
}

func (p *Protocol) writeRequestDownupFinish(op *Operation) {
	target := op.target
	parent := p.parentOf(op)

	op.state = cache.Invalid
	target.cache.SetBlock(op.set, op.way, 0, op.state)
	p.unlockSlot(target, op)

	latency := target.dataLatency
	if parent.reply == ReplyAckDataSentToPeer {
		latency = 0
	}

	p.schedule(op, stepWriteRequestReply, latency)
}
