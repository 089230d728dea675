// Package cache provides the tag array that records which block sits in which
// (set, way) of a memory module, together with its coherence state.
package cache

import (
	"fmt"
	"math/bits"
)

// A Block of a cache is the information that is associated with a cache line
type Block struct {
	Tag          uint64
	TransientTag uint64
	State        BlockState
	SetID        int
	WayID        int
}

// A Set is a list of blocks where a certain piece memory can be stored at.
// LRUQueue lists the ways from the least recently used to the most.
type Set struct {
	Blocks   []Block
	LRUQueue []int
}

// Array is the tag array of a module.
type Array struct {
	name         string
	numSets      int
	numWays      int
	blockSize    int
	logBlockSize int
	sets         []Set
	victimFinder VictimFinder
}

// NewArray creates a tag array with every block invalid. The block size must
// be a power of two.
func NewArray(
	name string,
	numSets, numWays, blockSize int,
	victimFinder VictimFinder,
) *Array {
	if numSets <= 0 || numWays <= 0 {
		panic(fmt.Sprintf("cache %s: invalid geometry %dx%d",
			name, numSets, numWays))
	}

	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		panic(fmt.Sprintf("cache %s: block size %d is not a power of two",
			name, blockSize))
	}

	if victimFinder == nil {
		victimFinder = NewLRUVictimFinder()
	}

	a := &Array{
		name:         name,
		numSets:      numSets,
		numWays:      numWays,
		blockSize:    blockSize,
		logBlockSize: bits.TrailingZeros(uint(blockSize)),
		victimFinder: victimFinder,
	}

	a.Reset()

	return a
}

// Name returns the name of the array.
func (a *Array) Name() string {
	return a.name
}

// NumSets returns the number of sets.
func (a *Array) NumSets() int {
	return a.numSets
}

// NumWays returns the associativity.
func (a *Array) NumWays() int {
	return a.numWays
}

// BlockSize returns the number of bytes in a block.
func (a *Array) BlockSize() int {
	return a.blockSize
}

// TotalSize returns the maximum number of bytes can be stored in the cache
func (a *Array) TotalSize() uint64 {
	return uint64(a.numSets) * uint64(a.numWays) * uint64(a.blockSize)
}

// BlockAddr aligns an address to the block it belongs to.
func (a *Array) BlockAddr(addr uint64) uint64 {
	return addr &^ uint64(a.blockSize-1)
}

// SetIndex returns the set that holds the block. When a range of addresses is
// interleaved over several arrays, numInterleaved is the number of arrays so
// that every set of each array is used.
func (a *Array) SetIndex(blockAddr uint64, numInterleaved int) int {
	if numInterleaved <= 0 {
		numInterleaved = 1
	}

	blockNum := blockAddr >> a.logBlockSize

	return int((blockNum / uint64(numInterleaved)) % uint64(a.numSets))
}

// Block returns the block at the given position.
func (a *Array) Block(set, way int) Block {
	a.mustBeInRange(set, way)
	return a.sets[set].Blocks[way]
}

// SetBlock updates the tag and the state of a block.
func (a *Array) SetBlock(set, way int, tag uint64, state BlockState) {
	a.mustBeInRange(set, way)

	block := &a.sets[set].Blocks[way]
	block.Tag = tag
	block.State = state
}

// SetTransientTag records the tag of the block that is being brought into the
// position while the position is locked.
func (a *Array) SetTransientTag(set, way int, tag uint64) {
	a.mustBeInRange(set, way)
	a.sets[set].Blocks[way].TransientTag = tag
}

// Lookup finds the valid block with the tag in the set.
func (a *Array) Lookup(set int, tag uint64) (way int, found bool) {
	for _, block := range a.sets[set].Blocks {
		if block.State.IsValid() && block.Tag == tag {
			return block.WayID, true
		}
	}

	return -1, false
}

// Visit marks the block as the most recently used one in its set.
func (a *Array) Visit(set, way int) {
	a.mustBeInRange(set, way)
	a.victimFinder.Visit(&a.sets[set], way)
}

// FindVictim chooses the way in the set that a new block should replace.
func (a *Array) FindVictim(set int) int {
	if set < 0 || set >= a.numSets {
		panic(fmt.Sprintf("cache %s: set %d out of range", a.name, set))
	}

	return a.victimFinder.FindVictim(&a.sets[set])
}

// Reset will mark all the blocks in the array invalid.
func (a *Array) Reset() {
	a.sets = make([]Set, a.numSets)
	for i := 0; i < a.numSets; i++ {
		for j := 0; j < a.numWays; j++ {
			a.sets[i].Blocks = append(a.sets[i].Blocks, Block{
				SetID: i,
				WayID: j,
			})
			a.sets[i].LRUQueue = append(a.sets[i].LRUQueue, j)
		}
	}
}

func (a *Array) mustBeInRange(set, way int) {
	if set < 0 || set >= a.numSets || way < 0 || way >= a.numWays {
		panic(fmt.Sprintf("cache %s: block (%d, %d) out of range",
			a.name, set, way))
	}
}
