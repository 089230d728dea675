package coherence

// sendToPeer makes the target of op send the block directly to the peer of
// op. Op resumes at next once the peer has acknowledged the data.
func (p *Protocol) sendToPeer(op *Operation, next step) {
	peer := peerFor(op.peer, op.state)
	if peer == nil {
		p.schedule(op, next, 0)
		return
	}

	transfer := p.newOp(op, op.target, op.tag, next)
	transfer.target = peer
	transfer.state = op.state
	p.schedule(transfer, stepPeerSend, 0)
}

func (p *Protocol) peerSend(op *Operation) {
	src := op.mod

	p.send(op, src.lowNet, src.lowNode, op.target.lowNode,
		src.blockSize+ctrlMsgSize, stepPeerReceive)
}

func (p *Protocol) peerReceive(op *Operation) {
	peer := op.target
	peer.lowNet.Receive(peer.lowNode, op.msg)

	p.schedule(op, stepPeerReply, 0)
}

func (p *Protocol) peerReply(op *Operation) {
	src := op.mod
	peer := op.target

	p.send(op, peer.lowNet, peer.lowNode, src.lowNode,
		ctrlMsgSize, stepPeerFinish)
}

func (p *Protocol) peerFinish(op *Operation) {
	src := op.mod
	src.lowNet.Receive(src.lowNode, op.msg)

	p.ret(op)
}
