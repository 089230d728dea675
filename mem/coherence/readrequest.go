package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/mem/directory"
)

// A read request brings a block into the module that sends it. Sent up-down,
// it fetches the block from the module below, probing the owners of the block
// in the lower module first. Sent down-up, it probes an owner and makes it
// give up the exclusive state.

func (p *Protocol) readRequest(op *Operation) {
	if op.dir == DirectionUpDown {
		parent := p.parentOf(op)
		parent.shared = false
		parent.err = false
	}

	p.sendRequest(op, ctrlMsgSize, stepReadRequestReceive)
}

func (p *Protocol) readRequestReceive(op *Operation) {
	p.receiveRequest(op)

	lookup := p.newOp(op, op.target, op.addr, stepReadRequestAction)
	lookup.dir = op.dir
	lookup.blocking = op.dir == DirectionDownUp
	lookup.read = true
	lookup.retry = false
	p.schedule(lookup, stepFindAndLock, 0)
}

func (p *Protocol) readRequestAction(op *Operation) {
	if op.err {
		if op.dir == DirectionDownUp {
			panic(protocolViolation(op.target, op.addr, op.state,
				"down-up read request failed to lock"))
		}

		parent := p.parentOf(op)
		parent.err = true
		parent.setReply(ReplyAckError)
		op.replySize = ctrlMsgSize
		p.schedule(op, stepReadRequestReply, 0)

		return
	}

	if op.dir == DirectionUpDown {
		p.schedule(op, stepReadRequestUpdown, 0)
	} else {
		p.schedule(op, stepReadRequestDownup, 0)
	}
}

func (p *Protocol) readRequestUpdown(op *Operation) {
	mod := op.mod
	target := op.target

	op.pending.reset(1)
	op.replySize = mod.blockSize + ctrlMsgSize
	op.setReply(ReplyAckData)

	if op.state.IsValid() {
		p.probeOwners(op, stepReadRequestUpdownFinish, stepReadRequest, true)
		p.schedule(op, stepReadRequestUpdownFinish, 0)

		return
	}

	if target.dir.GroupSharedOrOwned(op.set, op.way) {
		panic(protocolViolation(target, op.addr, op.state,
			"invalid block (%d, %d) has sharers", op.set, op.way))
	}

	req := p.newRequest(op, target, target.LowModule(op.tag), op.tag,
		DirectionUpDown, stepReadRequestUpdownMiss)
	p.schedule(req, stepReadRequest, 0)

	p.notifyMiss(target, op.addr)
}

// probeOwners sends down-up requests to the owners of the sub-blocks of the
// block that op has locked in its target, once per block of each owner. The
// requester is skipped if skipRequester is set. A probe of a sub-block that the
// requester asked for forwards the data to the requester.
func (p *Protocol) probeOwners(
	op *Operation,
	retStep, reqStep step,
	skipRequester bool,
) {
	mod := op.mod
	target := op.target

	for z := 0; z < target.dir.NumSubBlocks(); z++ {
		owner := target.dir.Owner(op.set, op.way, z)
		if owner == directory.OwnerNone {
			continue
		}

		if skipRequester && owner == mod.DirectoryID() {
			continue
		}

		ownerMod := target.UpperModule(owner)
		subTag := target.subBlockTag(op.tag, z)

		if subTag%uint64(ownerMod.blockSize) != 0 {
			continue
		}

		probe := p.newRequest(op, target, ownerMod, subTag,
			DirectionDownUp, retStep)
		if skipRequester && p.requested(op, subTag) {
			probe.peer = peerFor(mod, op.state)
		}

		op.pending.spawn(1)
		p.schedule(probe, reqStep, 0)
	}
}

// requested tells if the sub-block belongs to the block that the requester
// of op asked for.
func (p *Protocol) requested(op *Operation, subTag uint64) bool {
	return subTag >= op.addr && subTag < op.addr+uint64(op.mod.blockSize)
}

func (p *Protocol) readRequestUpdownMiss(op *Operation) {
	target := op.target

	if op.err {
		p.unlockSlot(target, op)

		parent := p.parentOf(op)
		parent.err = true
		parent.setReply(ReplyAckError)
		op.replySize = ctrlMsgSize
		p.schedule(op, stepReadRequestReply, 0)

		return
	}

	op.state = cache.Exclusive
	target.cache.SetBlock(op.set, op.way, op.tag, op.state)
	p.schedule(op, stepReadRequestUpdownFinish, 0)
}

func (p *Protocol) readRequestUpdownFinish(op *Operation) {
	if !op.pending.arrive() {
		return
	}

	mod := op.mod
	target := op.target
	parent := p.parentOf(op)
	requester := mod.DirectoryID()

	parent.setReply(p.replyKindForSize(op, target))

	if !op.retainOwner {
		for z := 0; z < target.dir.NumSubBlocks(); z++ {
			if target.dir.Owner(op.set, op.way, z) != requester {
				target.dir.SetOwner(op.set, op.way, z, directory.OwnerNone)
			}
		}
	}

	shared := op.shared
	switch op.state {
	case cache.Shared, cache.Owned, cache.NonCoherent:
		shared = true
	}

	for z := 0; z < target.dir.NumSubBlocks(); z++ {
		if !p.requested(op, target.subBlockTag(op.tag, z)) {
			continue
		}

		target.dir.SetSharer(op.set, op.way, z, requester)
		if target.dir.NumSharers(op.set, op.way, z) > 1 {
			shared = true
		}
	}

	parent.shared = shared

	p.unlockSlot(target, op)

	latency := target.dataLatency
	if op.reply == ReplyAckDataSentToPeer {
		latency = 0
	}

	p.schedule(op, stepReadRequestReply, latency)
}

func (p *Protocol) readRequestDownup(op *Operation) {
	switch op.state {
	case cache.Invalid, cache.Shared, cache.NonCoherent:
		panic(protocolViolation(op.target, op.addr, op.state,
			"down-up read request found block in state %s", op.state))
	}

	op.pending.reset(1)
	p.probeOwners(op, stepReadRequestDownupWaitForReqs, stepReadRequest, false)
	p.schedule(op, stepReadRequestDownupWaitForReqs, 0)
}

func (p *Protocol) readRequestDownupWaitForReqs(op *Operation) {
	if !op.pending.arrive() {
		return
	}

	if op.peer == nil {
		p.schedule(op, stepReadRequestDownupFinish, 0)
		return
	}

	p.sendToPeer(op, stepReadRequestDownupFinish)
}

//nolint:funlen,gocyclo
func (p *Protocol) readRequestDownupFinish(op *Operation) {
	target := op.target
	parent := p.parentOf(op)

	switch op.reply {
	case ReplyAckData:
		if op.peer != nil {
			p.setBlockAndClearOwners(target, op, cache.Owned)
			op.replySize = ctrlMsgSize
			parent.setReply(ReplyAckDataSentToPeer)
			p.shrinkReply(parent, target.blockSize)
			parent.retainOwner = true
		} else {
			p.setBlockAndClearOwners(target, op, cache.Shared)
			op.replySize = target.blockSize + ctrlMsgSize
			parent.setReply(ReplyAckData)
		}
	case ReplyAck:
		p.setBlockAndClearOwners(target, op, cache.Shared)
		op.replySize = ctrlMsgSize

		if op.peer != nil {
			parent.setReply(ReplyAckDataSentToPeer)
			p.shrinkReply(parent, target.blockSize)
		} else {
			parent.setReply(ReplyAck)
		}
	case ReplyNone:
		p.downupFinishWithoutProbes(op, parent)
	default:
		panic(protocolViolation(target, op.addr, op.state,
			"unexpected reply %s", op.reply))
	}

	p.unlockSlot(target, op)

	latency := target.dataLatency
	if op.reply == ReplyAckDataSentToPeer {
		latency = 0
	}

	p.schedule(op, stepReadRequestReply, latency)
}

// downupFinishWithoutProbes answers a down-up read request for a block that
// no module above the target holds.
func (p *Protocol) downupFinishWithoutProbes(op, parent *Operation) {
	target := op.target

	if op.peer != nil {
		op.replySize = ctrlMsgSize
		parent.setReply(ReplyAckDataSentToPeer)
		p.shrinkReply(parent, target.subBlockSize)

		if op.state == cache.Modified || op.state == cache.Owned {
			parent.retainOwner = true
			target.cache.SetBlock(op.set, op.way, op.tag, cache.Owned)
		} else {
			target.cache.SetBlock(op.set, op.way, op.tag, cache.Shared)
		}

		return
	}

	switch op.state {
	case cache.Exclusive, cache.Shared:
		op.replySize = ctrlMsgSize
		parent.setReply(ReplyAck)
	case cache.Owned, cache.Modified, cache.NonCoherent:
		op.replySize = target.subBlockSize + ctrlMsgSize
		parent.setReply(ReplyAckData)
	default:
		panic(protocolViolation(target, op.addr, op.state,
			"down-up read request found block in state %s", op.state))
	}

	target.cache.SetBlock(op.set, op.way, op.tag, cache.Shared)
}
