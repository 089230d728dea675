package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/noc"
)

// CacheArray is the tag array that a module keeps its blocks in.
type CacheArray interface {
	NumSets() int
	NumWays() int
	BlockSize() int
	BlockAddr(addr uint64) uint64
	SetIndex(blockAddr uint64, numInterleaved int) int
	Block(set, way int) cache.Block
	SetBlock(set, way int, tag uint64, state cache.BlockState)
	SetTransientTag(set, way int, tag uint64)
	Visit(set, way int)
	FindVictim(set int) int
}

// Directory keeps the sharers and the owner of every sub-block of a module
// and the locks of the blocks.
type Directory interface {
	NumSubBlocks() int
	Owner(x, y, z int) int
	SetOwner(x, y, z, node int)
	IsSharer(x, y, z, node int) bool
	NumSharers(x, y, z int) int
	SetSharer(x, y, z, node int)
	ClearSharer(x, y, z, node int)
	ClearAllSharers(x, y, z int)
	GroupSharedOrOwned(x, y int) bool
	Lock(x, y int, holder uint64, wake func()) bool
	Unlock(x, y int)
	WakeNext(x, y int)
	IsLocked(x, y int) bool
}

// Network carries the messages between the modules.
type Network interface {
	Send(src, dst *noc.Node, size int, onDelivered func(msg *noc.Msg)) *noc.Msg
	Receive(node *noc.Node, msg *noc.Msg)
}

// A Prefetcher is told about the hits and the misses of the client accesses
// of a module.
type Prefetcher interface {
	AccessHit(mod *Module, addr uint64)
	AccessMiss(mod *Module, addr uint64)
}

// A Resource is held by a client access and released when the access
// finishes.
type Resource interface {
	Release()
}
