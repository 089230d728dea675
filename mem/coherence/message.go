package coherence

import (
	"github.com/sarchlab/nmoesi/mem/directory"
)

func (p *Protocol) message(op *Operation) {
	mod := op.mod

	if !op.retried {
		p.admit(op)
	}

	req := p.newRequest(op, mod, mod.LowModule(op.tag), op.tag,
		DirectionUpDown, stepMessageAction)
	req.msgKind = op.msgKind
	p.schedule(req, stepMsg, 0)
}

func (p *Protocol) messageAction(op *Operation) {
	if op.err {
		p.retryAccess(op, stepMessage)
		return
	}

	p.schedule(op, stepMessageFinish, 0)
}

// msgRequest sends a control message to the module below.
func (p *Protocol) msgRequest(op *Operation) {
	p.parentOf(op).err = false

	op.replySize = ctrlMsgSize
	op.setReply(ReplyAck)

	p.sendRequest(op, ctrlMsgSize, stepMsgReceive)
}

func (p *Protocol) msgReceive(op *Operation) {
	p.receiveRequest(op)

	lookup := p.newOp(op, op.target, op.addr, stepMsgAction)
	lookup.dir = op.dir
	lookup.blocking = false
	lookup.retry = false
	p.schedule(lookup, stepFindAndLock, 0)
}

func (p *Protocol) msgAction(op *Operation) {
	target := op.target
	parent := p.parentOf(op)

	if op.err {
		parent.err = true
		parent.setReply(ReplyAckError)
		p.schedule(op, stepMsgReply, 0)

		return
	}

	switch op.msgKind {
	case MessageClearOwner:
		p.clearOwner(op)
	default:
		panic(protocolViolation(target, op.addr, op.state,
			"unexpected message %s", op.msgKind))
	}

	p.unlockSlot(target, op)
	parent.setReply(ReplyAck)
	p.schedule(op, stepMsgReply, 0)
}

// clearOwner gives up the ownership that the sender holds on the sub-blocks
// of its block.
func (p *Protocol) clearOwner(op *Operation) {
	target := op.target
	sender := op.mod.DirectoryID()

	for z := 0; z < target.dir.NumSubBlocks(); z++ {
		if !p.requested(op, target.subBlockTag(op.tag, z)) {
			continue
		}

		owner := target.dir.Owner(op.set, op.way, z)
		if owner != sender {
			panic(protocolViolation(target, op.addr, op.state,
				"module %s clears owner of sub-block %d owned by %d",
				op.mod.Name(), z, owner))
		}

		target.dir.SetOwner(op.set, op.way, z, directory.OwnerNone)
	}
}
