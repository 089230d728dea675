package coherence

import (
	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/noc"
	"github.com/sarchlab/nmoesi/sim/hooking"
)

// HookPosAccessFinish is triggered when a client access of the module
// finishes. The item of the hook is an AccessRecord.
var HookPosAccessFinish = &hooking.HookPos{Name: "AccessFinish"}

// AccessRecord describes a client access. The detail of the task started
// for an access is an AccessRecord whose finish fields are not set yet.
// State is the state of the block when the access finished. A coalesced
// access reports the state its master resolved.
type AccessRecord struct {
	ID         uint64
	Kind       AccessKind
	Addr       uint64
	Info       interface{}
	StartTime  float64
	FinishTime float64
	State      cache.BlockState
	Coalesced  bool
	Retried    bool
}

// A Module is a cache or a main memory in the hierarchy.
type Module struct {
	hooking.HookableBase

	name         string
	kind         ModuleKind
	blockSize    int
	subBlockSize int
	dirLatency   int
	dataLatency  int
	retryLatency func() int

	cache          CacheArray
	dir            Directory
	numInterleaved int

	highNet  Network
	highNode *noc.Node
	lowNet   Network
	lowNode  *noc.Node

	lowModuleFinder LowModuleFinder
	upperModules    map[int]*Module

	ports      *portArbiter
	accesses   *accessIndex
	prefetcher Prefetcher
	stats      Stats
}

// Name returns the name of the module.
func (m *Module) Name() string {
	return m.name
}

// Kind returns the kind of the module.
func (m *Module) Kind() ModuleKind {
	return m.kind
}

// BlockSize returns the number of bytes in a block.
func (m *Module) BlockSize() int {
	return m.blockSize
}

// SubBlockSize returns the number of bytes tracked by one directory entry.
func (m *Module) SubBlockSize() int {
	return m.subBlockSize
}

// DirLatency returns the number of cycles to access the directory.
func (m *Module) DirLatency() int {
	return m.dirLatency
}

// DataLatency returns the number of cycles to access the data.
func (m *Module) DataLatency() int {
	return m.dataLatency
}

// RetryLatency returns the number of cycles to wait before retrying an
// access that ran into a locked block. It is at least one cycle.
func (m *Module) RetryLatency() int {
	cycles := m.retryLatency()
	if cycles < 1 {
		return 1
	}

	return cycles
}

// Cache returns the tag array of the module.
func (m *Module) Cache() CacheArray {
	return m.cache
}

// Directory returns the directory of the module.
func (m *Module) Directory() Directory {
	return m.dir
}

// Stats returns a copy of the counters of the module.
func (m *Module) Stats() Stats {
	return m.stats
}

// HighNode returns the node that connects the module to the modules above.
func (m *Module) HighNode() *noc.Node {
	return m.highNode
}

// LowNode returns the node that connects the module to the modules below.
func (m *Module) LowNode() *noc.Node {
	return m.lowNode
}

// LowModule returns the module below that holds the address. It returns nil
// for a module that has nothing below it.
func (m *Module) LowModule(addr uint64) *Module {
	if m.lowModuleFinder == nil {
		return nil
	}

	return m.lowModuleFinder.Find(addr)
}

// UpperModule returns the module above whose low node has the given index on
// the network above this module.
func (m *Module) UpperModule(nodeIndex int) *Module {
	upper, found := m.upperModules[nodeIndex]
	if !found {
		panic("no module above " + m.name + " is attached to the node")
	}

	return upper
}

// DirectoryID returns the identity of the module in the directories of the
// modules below it.
func (m *Module) DirectoryID() int {
	if m.lowNode == nil {
		panic("module " + m.name + " is not connected to a lower network")
	}

	return m.lowNode.Index
}

// NumInflightAccesses returns the number of client accesses that have started
// but not finished.
func (m *Module) NumInflightAccesses() int {
	return m.accesses.Len()
}

// Tag returns the address of the block that contains addr.
func (m *Module) Tag(addr uint64) uint64 {
	return addr &^ uint64(m.blockSize-1)
}

// SetIndex returns the set that a block maps to.
func (m *Module) SetIndex(tag uint64) int {
	return m.cache.SetIndex(tag, m.numInterleaved)
}

func (m *Module) isMainMemory() bool {
	return m.kind == ModuleKindMainMemory
}

// findBlock looks for a valid block with the tag. A block that is being
// brought into a locked position also counts as found, so that the lookup
// waits for the fill.
func (m *Module) findBlock(
	tag uint64,
) (set, way int, state cache.BlockState, found bool) {
	set = m.SetIndex(tag)

	for way = 0; way < m.cache.NumWays(); way++ {
		block := m.cache.Block(set, way)

		if block.State.IsValid() && block.Tag == tag {
			return set, way, block.State, true
		}

		if block.TransientTag == tag && m.dir.IsLocked(set, way) {
			return set, way, block.State, true
		}
	}

	return set, -1, cache.Invalid, false
}

// subBlockTag returns the address of a sub-block of a block.
func (m *Module) subBlockTag(tag uint64, z int) uint64 {
	return tag + uint64(z*m.subBlockSize)
}
