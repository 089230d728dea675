package coherence

import (
	"github.com/sarchlab/nmoesi/sim/hooking"
)

// admit registers a client access in its module.
func (p *Protocol) admit(op *Operation) {
	mod := op.mod
	op.startTime = p.engine.Now()

	switch op.kind {
	case AccessLoad:
		mod.stats.Loads++
	case AccessStore:
		mod.stats.Stores++
	case AccessNCStore:
		mod.stats.NCStores++
	case AccessMessage:
		mod.stats.Messages++
	}

	if op.kind != AccessMessage {
		mod.accesses.add(accessItem{
			blockAddr: op.tag,
			id:        op.accessID,
			op:        op.handle,
			kind:      op.kind,
		})
	}

	hooking.StartTask(mod, hooking.TaskStart{
		ID:     op.taskID,
		Kind:   "access",
		What:   op.kind.String(),
		Where:  mod.Name(),
		Detail: AccessRecord{
			ID:        op.accessID,
			Kind:      op.kind,
			Addr:      op.addr,
			Info:      op.info,
			StartTime: op.startTime,
		},
	})
}

// coalesceTarget returns the access that op can merge into. Only the youngest
// older access to the same block is considered, and only if it is of the same
// kind and has not reached its lookup yet.
func (p *Protocol) coalesceTarget(op *Operation) *Operation {
	item, found := op.mod.accesses.olderAccess(op.tag, op.accessID)
	if !found || item.kind != op.kind {
		return nil
	}

	master := p.mustGet(item.op)
	if master.coalesced {
		var alive bool
		if master, alive = p.ops[master.master]; !alive {
			return nil
		}
	}

	if master.portLocked || master.slotLocked {
		return nil
	}

	return master
}

// coalesce makes op wait for the master and resume at next.
func (p *Protocol) coalesce(op, master *Operation, next step) {
	op.coalesced = true
	op.master = master.handle
	p.waitIn(op, master, next)
}

// waitForOlderWrite suspends op behind the youngest older store to the same
// block. It returns false if there is no such store.
func (p *Protocol) waitForOlderWrite(op *Operation, next step) bool {
	item, found := op.mod.accesses.olderWrite(op.tag, op.accessID)
	if !found {
		return false
	}

	p.debugf(op, "wait for write %d", item.id)
	p.waitIn(op, p.mustGet(item.op), next)

	return true
}

// waitForOlderAccess suspends op behind the youngest older access to the same
// block. It returns false if there is no such access.
func (p *Protocol) waitForOlderAccess(op *Operation, next step) bool {
	item, found := op.mod.accesses.olderAccess(op.tag, op.accessID)
	if !found {
		return false
	}

	p.debugf(op, "wait for access %d", item.id)
	p.waitIn(op, p.mustGet(item.op), next)

	return true
}

// newLookup creates the find-and-lock operation that op uses to lock its
// block in mod.
func (p *Protocol) newLookup(
	op *Operation,
	mod *Module,
	retStep step,
) *Operation {
	lookup := p.newOp(op, mod, op.addr, retStep)
	lookup.dir = op.dir
	lookup.retry = op.retry

	return lookup
}

// retryAccess restarts the lock step of a client access after the retry
// latency of its module.
func (p *Protocol) retryAccess(op *Operation, lockStep step) {
	op.retry = true
	op.retried = true
	p.schedule(op, lockStep, op.mod.RetryLatency())
}

// finishAccess completes a client access.
func (p *Protocol) finishAccess(op *Operation) {
	mod := op.mod

	if op.witness != nil {
		*op.witness++
		op.witness = nil
	}

	if op.resource != nil {
		op.resource.Release()
		op.resource = nil
	}

	if op.kind != AccessMessage {
		mod.accesses.remove(op.tag, op.accessID)
	}

	if mod.NumHooks() > 0 {
		mod.InvokeHook(hooking.HookCtx{
			Domain: mod,
			Pos:    HookPosAccessFinish,
			Item: AccessRecord{
				ID:         op.accessID,
				Kind:       op.kind,
				Addr:       op.addr,
				Info:       op.info,
				StartTime:  op.startTime,
				FinishTime: p.engine.Now(),
				State:      op.state,
				Coalesced:  op.coalesced,
				Retried:    op.retried,
			},
		})
	}

	hooking.EndTask(mod, hooking.TaskEnd{ID: op.taskID})

	p.ret(op)
}
