package coherence

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/nmoesi/mem/cache"
	"github.com/sarchlab/nmoesi/mem/directory"
)

// Builder can build modules.
type Builder struct {
	kind             ModuleKind
	log2BlockSize    int
	log2SubBlockSize int
	wayAssociativity int
	byteSize         uint64
	replaceStrategy  string
	dirLatency       int
	dataLatency      int
	numPorts         int
	retryLatency     func() int
	prefetcher       Prefetcher
	seed             int64
}

// MakeBuilder creates a builder for a 16 KB, 4-way cache with 64-byte blocks,
// one sub-block per block, 2 ports and 1-cycle directory and data latencies.
func MakeBuilder() Builder {
	return Builder{
		kind:             ModuleKindCache,
		log2BlockSize:    6,
		wayAssociativity: 4,
		byteSize:         16 * 1024,
		replaceStrategy:  "lru",
		dirLatency:       1,
		dataLatency:      1,
		numPorts:         2,
		seed:             1,
	}
}

// AsMainMemory makes the module the main memory.
func (b Builder) AsMainMemory() Builder {
	b.kind = ModuleKindMainMemory
	return b
}

// WithLog2BlockSize sets the block size.
func (b Builder) WithLog2BlockSize(n int) Builder {
	b.log2BlockSize = n
	return b
}

// WithLog2SubBlockSize sets the number of bytes tracked by one directory
// entry. Zero means one entry per block.
func (b Builder) WithLog2SubBlockSize(n int) Builder {
	b.log2SubBlockSize = n
	return b
}

// WithWayAssociativity sets the number of ways of a set.
func (b Builder) WithWayAssociativity(n int) Builder {
	b.wayAssociativity = n
	return b
}

// WithByteSize sets the capacity of the module.
func (b Builder) WithByteSize(byteSize uint64) Builder {
	b.byteSize = byteSize
	return b
}

// WithReplaceStrategy sets the victim finder, one of "lru", "fifo" and
// "random".
func (b Builder) WithReplaceStrategy(strategy string) Builder {
	b.replaceStrategy = strategy
	return b
}

// WithDirLatency sets the cycles to access the directory.
func (b Builder) WithDirLatency(cycles int) Builder {
	b.dirLatency = cycles
	return b
}

// WithDataLatency sets the cycles to access the data.
func (b Builder) WithDataLatency(cycles int) Builder {
	b.dataLatency = cycles
	return b
}

// WithNumPorts sets the number of lookups that can proceed at the same time.
func (b Builder) WithNumPorts(n int) Builder {
	b.numPorts = n
	return b
}

// WithRetryLatency replaces the function that decides how long an access
// waits before retrying after a lock conflict.
func (b Builder) WithRetryLatency(f func() int) Builder {
	b.retryLatency = f
	return b
}

// WithPrefetcher sets the prefetcher that is told about the client hits and
// misses.
func (b Builder) WithPrefetcher(p Prefetcher) Builder {
	b.prefetcher = p
	return b
}

// WithSeed sets the seed of the random victim finder and of the default
// retry latency.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// Build builds a module.
func (b Builder) Build(name string) *Module {
	blockSize := 1 << b.log2BlockSize
	subBlockSize := blockSize
	if b.log2SubBlockSize > 0 {
		subBlockSize = 1 << b.log2SubBlockSize
	}

	b.mustBeValid(blockSize, subBlockSize)

	numWays := b.wayAssociativity
	numSets := int(b.byteSize / uint64(blockSize*numWays))

	m := &Module{
		name:           name,
		kind:           b.kind,
		blockSize:      blockSize,
		subBlockSize:   subBlockSize,
		dirLatency:     b.dirLatency,
		dataLatency:    b.dataLatency,
		numInterleaved: 1,
		upperModules:   make(map[int]*Module),
		ports:          newPortArbiter(b.numPorts),
		accesses:       newAccessIndex(),
		prefetcher:     b.prefetcher,
	}

	m.cache = cache.NewArray(name, numSets, numWays, blockSize,
		cache.VictimFinderByName(b.replaceStrategy, b.seed))
	m.dir = directory.New(name+".Dir", numSets, numWays,
		blockSize/subBlockSize)

	m.retryLatency = b.retryLatency
	if m.retryLatency == nil {
		m.retryLatency = b.defaultRetryLatency()
	}

	return m
}

func (b Builder) defaultRetryLatency() func() int {
	rng := rand.New(rand.NewSource(b.seed))
	base := b.dirLatency + b.dataLatency

	return func() int {
		if base <= 0 {
			return 1
		}

		return base + rng.Intn(base)
	}
}

func (b Builder) mustBeValid(blockSize, subBlockSize int) {
	if subBlockSize > blockSize {
		panic(fmt.Sprintf("sub-block size %d larger than block size %d",
			subBlockSize, blockSize))
	}

	if b.wayAssociativity <= 0 || b.numPorts <= 0 {
		panic("a module needs at least one way and one port")
	}

	setSize := uint64(blockSize * b.wayAssociativity)
	if b.byteSize == 0 || b.byteSize%setSize != 0 {
		panic("module must have a integer number of sets")
	}

	if b.dirLatency < 0 || b.dataLatency < 0 {
		panic("latencies cannot be negative")
	}
}
