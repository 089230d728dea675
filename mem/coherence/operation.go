package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/noc"
)

// OpHandle identifies an operation in the protocol. The zero handle refers
// to no operation.
type OpHandle uint64

type waiter struct {
	op   OpHandle
	next step
}

// An Operation is one step-by-step activity of the protocol, such as a client
// load, a read request sent to a lower module or a lookup in a module. An
// operation started by another operation reports its results to that parent
// and resumes it at retStep when it returns.
type Operation struct {
	handle   OpHandle
	accessID uint64
	taskID   string
	origin   *Module
	parent   OpHandle
	retStep  step
	step     step

	mod    *Module
	target *Module
	addr   uint64
	tag    uint64
	set    int
	way    int
	state  cache.BlockState
	hit    bool
	err    bool

	blocking     bool
	writeThrough bool
	read         bool
	write        bool
	ncWrite      bool
	retry        bool
	portLocked   bool
	slotLocked   bool
	shared       bool
	retainOwner  bool

	woken    bool
	wokenSet int
	wokenWay int

	pending   join
	reply     ReplyKind
	replySize int
	peer      *Module
	dir       Direction
	msgKind   MessageKind
	msg       *noc.Msg

	kind      AccessKind
	witness   *int
	info      interface{}
	resource  Resource
	master    OpHandle
	coalesced bool
	retried   bool
	startTime float64
	waiters   []waiter
}

// Handle returns the handle of the operation.
func (op *Operation) Handle() OpHandle {
	return op.handle
}

// AccessID returns the ID of the client access that the operation serves.
func (op *Operation) AccessID() uint64 {
	return op.accessID
}

// Module returns the module that issued the operation.
func (op *Operation) Module() *Module {
	return op.mod
}

// Target returns the module that receives a request, or nil.
func (op *Operation) Target() *Module {
	return op.target
}

// Addr returns the address of the operation.
func (op *Operation) Addr() uint64 {
	return op.addr
}

// State returns the block state that the operation has found or committed.
func (op *Operation) State() cache.BlockState {
	return op.state
}

// Reply returns the reply kind collected by the operation.
func (op *Operation) Reply() ReplyKind {
	return op.reply
}

// ReplySize returns the number of bytes the operation will reply with.
func (op *Operation) ReplySize() int {
	return op.replySize
}

// setReply raises the reply of the operation to kind, keeping the reply with
// the highest priority.
func (op *Operation) setReply(kind ReplyKind) {
	if kind > op.reply {
		op.reply = kind
	}
}

// peerFor returns the module that should receive data directly from a probed
// owner, given the state of the block in the serving module. Only blocks that
// the serving module holds exclusively can be forwarded.
func peerFor(requester *Module, state cache.BlockState) *Module {
	switch state {
	case cache.Owned, cache.Modified, cache.Exclusive:
		return requester
	default:
		return nil
	}
}
