package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
)

// Write data carries the data of a non-coherent store one level down. Every
// level that holds the block marks it non-coherent and passes the data on
// until it reaches main memory.

func (p *Protocol) writeData(op *Operation) {
	p.parentOf(op).err = false

	op.replySize = ctrlMsgSize
	op.setReply(ReplyAck)

	p.sendRequest(op, op.mod.blockSize+ctrlMsgSize, stepWriteDataReceive)
}

func (p *Protocol) writeDataReceive(op *Operation) {
	p.receiveRequest(op)

	lookup := p.newOp(op, op.target, op.addr, stepWriteDataAction)
	lookup.dir = op.dir
	lookup.blocking = true
	lookup.ncWrite = true
	lookup.writeThrough = true
	lookup.retry = false
	p.schedule(lookup, stepFindAndLock, 0)
}

func (p *Protocol) writeDataAction(op *Operation) {
	target := op.target

	if op.err {
		panic(protocolViolation(target, op.addr, op.state,
			"write data lookup in %s failed", target.Name()))
	}

	op.pending.reset(1)

	if target.isMainMemory() {
		p.schedule(op, stepWriteDataBlock, 0)
		return
	}

	req := p.newRequest(op, target, target.LowModule(op.tag), op.tag,
		DirectionUpDown, stepWriteDataLower)
	op.pending.spawn(1)
	p.schedule(req, stepWriteData, 0)

	p.schedule(op, stepWriteDataBlock, 0)
}

func (p *Protocol) writeDataLower(op *Operation) {
	if op.err {
		panic(protocolViolation(op.target, op.addr, op.state,
			"write data below %s failed", op.target.Name()))
	}

	p.schedule(op, stepWriteDataDone, 0)
}

func (p *Protocol) writeDataBlock(op *Operation) {
	target := op.target

	if !op.state.IsValid() {
		p.schedule(op, stepWriteDataDone, 0)
		return
	}

	op.state = cache.NonCoherent
	target.cache.SetBlock(op.set, op.way, op.tag, op.state)
	p.unlockSlot(target, op)
	target.stats.DataAccesses++
	p.schedule(op, stepWriteDataDone, target.dataLatency)
}

func (p *Protocol) writeDataDone(op *Operation) {
	if !op.pending.arrive() {
		return
	}

	if op.replySize != ctrlMsgSize {
		panic(protocolViolation(op.target, op.addr, op.state,
			"write data replies with %d bytes", op.replySize))
	}

	p.parentOf(op).setReply(ReplyAck)
	p.schedule(op, stepWriteDataReply, 0)
}
