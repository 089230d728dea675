// Package directory tracks, for every sub-block held by a module, which
// modules above hold a copy and which one of them owns it. It also provides
// the per-block locks that serialize the coherence transactions of a module.
package directory

import (
	"fmt"

	"github.com/sarchlab/nmoesi/sim/hooking"
)

// OwnerNone marks an entry without an owner.
const OwnerNone = -1

// HookPosLock is triggered when a block lock is granted.
var HookPosLock = &hooking.HookPos{Name: "DirLock"}

// HookPosUnlock is triggered when a block lock is released.
var HookPosUnlock = &hooking.HookPos{Name: "DirUnlock"}

// HookPosLockConflict is triggered when a lock request has to wait.
var HookPosLockConflict = &hooking.HookPos{Name: "DirLockConflict"}

// LockEvent is the item of the lock hooks.
type LockEvent struct {
	X, Y   int
	Holder uint64
}

// An Entry records the sharers and the owner of one sub-block. Node indices
// are the indices of the upper modules on the network above the module.
type Entry struct {
	Owner      int
	sharers    []uint64
	numSharers int
}

// IsSharer tells if the node holds a copy.
func (e *Entry) IsSharer(node int) bool {
	word, bit := node/64, uint(node%64)
	if node < 0 || word >= len(e.sharers) {
		return false
	}

	return e.sharers[word]&(1<<bit) != 0
}

// NumSharers returns the number of nodes holding a copy.
func (e *Entry) NumSharers() int {
	return e.numSharers
}

func (e *Entry) setSharer(node int) {
	word, bit := node/64, uint(node%64)
	for word >= len(e.sharers) {
		e.sharers = append(e.sharers, 0)
	}

	if e.sharers[word]&(1<<bit) != 0 {
		return
	}

	e.sharers[word] |= 1 << bit
	e.numSharers++
}

func (e *Entry) clearSharer(node int) {
	if !e.IsSharer(node) {
		return
	}

	e.sharers[node/64] &^= 1 << uint(node%64)
	e.numSharers--

	if e.Owner == node {
		e.Owner = OwnerNone
	}
}

type waiter struct {
	holder uint64
	wake   func()
}

type lock struct {
	locked  bool
	holder  uint64
	waiters []waiter
}

// Directory is the directory of one module, indexed by set (x), way (y) and
// sub-block (z).
type Directory struct {
	hooking.HookableBase

	name    string
	xSize   int
	ySize   int
	zSize   int
	entries []Entry
	locks   []lock
}

// New creates a directory where no entry has sharers or an owner.
func New(name string, xSize, ySize, zSize int) *Directory {
	if xSize <= 0 || ySize <= 0 || zSize <= 0 {
		panic(fmt.Sprintf("directory %s: invalid size %dx%dx%d",
			name, xSize, ySize, zSize))
	}

	d := &Directory{
		name:    name,
		xSize:   xSize,
		ySize:   ySize,
		zSize:   zSize,
		entries: make([]Entry, xSize*ySize*zSize),
		locks:   make([]lock, xSize*ySize),
	}

	for i := range d.entries {
		d.entries[i].Owner = OwnerNone
	}

	return d
}

// Name returns the name of the directory.
func (d *Directory) Name() string {
	return d.name
}

// NumSubBlocks returns the number of entries per block.
func (d *Directory) NumSubBlocks() int {
	return d.zSize
}

// Entry returns the entry of a sub-block.
func (d *Directory) Entry(x, y, z int) *Entry {
	if x < 0 || x >= d.xSize || y < 0 || y >= d.ySize || z < 0 || z >= d.zSize {
		panic(fmt.Sprintf("directory %s: entry (%d, %d, %d) out of range",
			d.name, x, y, z))
	}

	return &d.entries[(x*d.ySize+y)*d.zSize+z]
}

// Owner returns the owner of a sub-block, or OwnerNone.
func (d *Directory) Owner(x, y, z int) int {
	return d.Entry(x, y, z).Owner
}

// SetOwner makes node the owner of a sub-block. An owner is always a sharer.
// Passing OwnerNone removes the owner but keeps the sharers.
func (d *Directory) SetOwner(x, y, z, node int) {
	e := d.Entry(x, y, z)

	if node == OwnerNone {
		e.Owner = OwnerNone
		return
	}

	if node < 0 {
		panic(fmt.Sprintf("directory %s: invalid owner %d", d.name, node))
	}

	e.setSharer(node)
	e.Owner = node
}

// IsSharer tells if node holds a copy of the sub-block.
func (d *Directory) IsSharer(x, y, z, node int) bool {
	return d.Entry(x, y, z).IsSharer(node)
}

// NumSharers returns the number of holders of the sub-block.
func (d *Directory) NumSharers(x, y, z int) int {
	return d.Entry(x, y, z).numSharers
}

// SetSharer records node as a holder of the sub-block.
func (d *Directory) SetSharer(x, y, z, node int) {
	if node < 0 {
		panic(fmt.Sprintf("directory %s: invalid sharer %d", d.name, node))
	}

	d.Entry(x, y, z).setSharer(node)
}

// ClearSharer removes node from the holders of the sub-block. Removing the
// owner also removes the ownership.
func (d *Directory) ClearSharer(x, y, z, node int) {
	d.Entry(x, y, z).clearSharer(node)
}

// ClearAllSharers removes all the holders and the owner of the sub-block.
func (d *Directory) ClearAllSharers(x, y, z int) {
	e := d.Entry(x, y, z)
	for i := range e.sharers {
		e.sharers[i] = 0
	}

	e.numSharers = 0
	e.Owner = OwnerNone
}

// Sharers lists the holders of the sub-block in increasing order.
func (d *Directory) Sharers(x, y, z int) []int {
	e := d.Entry(x, y, z)
	nodes := make([]int, 0, e.numSharers)

	for word, bitsOfWord := range e.sharers {
		for bit := 0; bit < 64; bit++ {
			if bitsOfWord&(1<<uint(bit)) != 0 {
				nodes = append(nodes, word*64+bit)
			}
		}
	}

	return nodes
}

// GroupSharedOrOwned tells if any sub-block of the block has a holder.
func (d *Directory) GroupSharedOrOwned(x, y int) bool {
	for z := 0; z < d.zSize; z++ {
		e := d.Entry(x, y, z)
		if e.numSharers > 0 || e.Owner != OwnerNone {
			return true
		}
	}

	return false
}

func (d *Directory) lockAt(x, y int) *lock {
	if x < 0 || x >= d.xSize || y < 0 || y >= d.ySize {
		panic(fmt.Sprintf("directory %s: lock (%d, %d) out of range",
			d.name, x, y))
	}

	return &d.locks[x*d.ySize+y]
}

// Lock tries to lock the block for holder. If the block is already locked,
// the request joins the end of the waiting list and wake is called when the
// request reaches the front of the list and the lock is released. A woken
// request does not hold the lock; it has to call Lock again.
func (d *Directory) Lock(x, y int, holder uint64, wake func()) bool {
	l := d.lockAt(x, y)

	if l.locked {
		l.waiters = append(l.waiters, waiter{holder: holder, wake: wake})
		d.invoke(HookPosLockConflict, x, y, holder)

		return false
	}

	l.locked = true
	l.holder = holder
	d.invoke(HookPosLock, x, y, holder)

	return true
}

// Unlock releases the lock of the block and wakes the first waiter.
func (d *Directory) Unlock(x, y int) {
	l := d.lockAt(x, y)

	if !l.locked {
		panic(fmt.Sprintf("directory %s: unlocking free block (%d, %d)",
			d.name, x, y))
	}

	holder := l.holder
	l.locked = false
	l.holder = 0
	d.invoke(HookPosUnlock, x, y, holder)

	if len(l.waiters) == 0 {
		return
	}

	first := l.waiters[0]
	l.waiters[0] = waiter{}
	l.waiters = l.waiters[1:]

	if first.wake != nil {
		first.wake()
	}
}

// WakeNext wakes the first waiter of a free block. A woken request that turns
// to another block calls it so that the rest of the list is not stranded.
func (d *Directory) WakeNext(x, y int) {
	l := d.lockAt(x, y)
	if l.locked || len(l.waiters) == 0 {
		return
	}

	first := l.waiters[0]
	l.waiters[0] = waiter{}
	l.waiters = l.waiters[1:]

	if first.wake != nil {
		first.wake()
	}
}

// IsLocked tells if the block is locked.
func (d *Directory) IsLocked(x, y int) bool {
	return d.lockAt(x, y).locked
}

// Holder returns the holder of the lock of a locked block.
func (d *Directory) Holder(x, y int) uint64 {
	return d.lockAt(x, y).holder
}

// NumWaiters returns the number of requests waiting for the block.
func (d *Directory) NumWaiters(x, y int) int {
	return len(d.lockAt(x, y).waiters)
}

func (d *Directory) invoke(pos *hooking.HookPos, x, y int, holder uint64) {
	if d.NumHooks() == 0 {
		return
	}

	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    pos,
		Item:   LockEvent{X: x, Y: y, Holder: holder},
	})
}
