package coherence

import (
	"github.com/google/btree"
)

// accessItem is a client access in flight in a module. Items are ordered by
// block address and then by age, so that the accesses to one block form a
// contiguous run from the oldest to the youngest.
type accessItem struct {
	blockAddr uint64
	id        uint64
	op        OpHandle
	kind      AccessKind
}

func (a accessItem) Less(than btree.Item) bool {
	b := than.(accessItem)
	if a.blockAddr != b.blockAddr {
		return a.blockAddr < b.blockAddr
	}

	return a.id < b.id
}

// accessIndex keeps the client accesses in flight in a module.
type accessIndex struct {
	tree *btree.BTree
}

func newAccessIndex() *accessIndex {
	return &accessIndex{tree: btree.New(8)}
}

func (x *accessIndex) add(item accessItem) {
	if x.tree.ReplaceOrInsert(item) != nil {
		panic("access registered twice")
	}
}

func (x *accessIndex) remove(blockAddr, id uint64) {
	if x.tree.Delete(accessItem{blockAddr: blockAddr, id: id}) == nil {
		panic("removing an access that is not in flight")
	}
}

// Len returns the number of accesses in flight.
func (x *accessIndex) Len() int {
	return x.tree.Len()
}

// youngestOlder returns the youngest access to the block that is older than
// the access id and satisfies match.
func (x *accessIndex) youngestOlder(
	blockAddr, id uint64,
	match func(item accessItem) bool,
) (accessItem, bool) {
	var (
		found  accessItem
		exists bool
	)

	if id == 0 {
		return found, false
	}

	pivot := accessItem{blockAddr: blockAddr, id: id - 1}
	x.tree.DescendLessOrEqual(pivot, func(i btree.Item) bool {
		item := i.(accessItem)
		if item.blockAddr != blockAddr {
			return false
		}

		if match(item) {
			found = item
			exists = true

			return false
		}

		return true
	})

	return found, exists
}

// olderAccess returns the youngest access to the block older than id.
func (x *accessIndex) olderAccess(blockAddr, id uint64) (accessItem, bool) {
	return x.youngestOlder(blockAddr, id, func(accessItem) bool {
		return true
	})
}

// olderWrite returns the youngest store or non-coherent store to the block
// older than id.
func (x *accessIndex) olderWrite(blockAddr, id uint64) (accessItem, bool) {
	return x.youngestOlder(blockAddr, id, func(item accessItem) bool {
		return item.kind.IsWrite()
	})
}
