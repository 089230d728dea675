package cache

import (
	"math/rand"
)

// A VictimFinder decides which block should be evicted and keeps the
// replacement order of a set up to date.
type VictimFinder interface {
	FindVictim(set *Set) int
	Visit(set *Set, way int)
}

// LRUVictimFinder evicts the least recently used block.
type LRUVictimFinder struct {
}

// NewLRUVictimFinder returns a newly constructed lru evictor
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns an invalid block if the set has one, or the least
// recently used block otherwise.
func (e *LRUVictimFinder) FindVictim(set *Set) int {
	way, found := firstInvalid(set)
	if found {
		return way
	}

	return set.LRUQueue[0]
}

// Visit moves the way to the end of the LRU queue.
func (e *LRUVictimFinder) Visit(set *Set, way int) {
	moveToBack(set, way)
}

// FIFOVictimFinder evicts the block that was brought in the earliest. Hits do
// not change the order.
type FIFOVictimFinder struct {
}

// NewFIFOVictimFinder returns a newly constructed fifo evictor
func NewFIFOVictimFinder() *FIFOVictimFinder {
	return &FIFOVictimFinder{}
}

// FindVictim returns an invalid block if the set has one, or the oldest
// block otherwise. The returned way becomes the newest.
func (e *FIFOVictimFinder) FindVictim(set *Set) int {
	way, found := firstInvalid(set)
	if !found {
		way = set.LRUQueue[0]
	}

	moveToBack(set, way)

	return way
}

// Visit does nothing.
func (e *FIFOVictimFinder) Visit(set *Set, way int) {
}

// RandomVictimFinder evicts a random block.
type RandomVictimFinder struct {
	rnd *rand.Rand
}

// NewRandomVictimFinder returns a random evictor seeded with seed.
func NewRandomVictimFinder(seed int64) *RandomVictimFinder {
	return &RandomVictimFinder{rnd: rand.New(rand.NewSource(seed))}
}

// FindVictim returns an invalid block if the set has one, or a random block
// otherwise.
func (e *RandomVictimFinder) FindVictim(set *Set) int {
	way, found := firstInvalid(set)
	if found {
		return way
	}

	return e.rnd.Intn(len(set.Blocks))
}

// Visit does nothing.
func (e *RandomVictimFinder) Visit(set *Set, way int) {
}

// VictimFinderByName maps a policy name to a victim finder.
func VictimFinderByName(name string, seed int64) VictimFinder {
	switch name {
	case "lru", "LRU":
		return NewLRUVictimFinder()
	case "fifo", "FIFO":
		return NewFIFOVictimFinder()
	case "random", "Random":
		return NewRandomVictimFinder(seed)
	default:
		panic("unknown replacement policy " + name)
	}
}

func firstInvalid(set *Set) (int, bool) {
	for _, way := range set.LRUQueue {
		if !set.Blocks[way].State.IsValid() {
			return way, true
		}
	}

	return -1, false
}

func moveToBack(set *Set, way int) {
	queue := set.LRUQueue[:0]

	for _, w := range set.LRUQueue {
		if w != way {
			queue = append(queue, w)
		}
	}

	set.LRUQueue = append(queue, way)
}
