package cache

// BlockState is the coherence state of a cache block.
type BlockState int

// The NMOESI states. Invalid is the zero value.
const (
	Invalid BlockState = iota
	NonCoherent
	Modified
	Owned
	Exclusive
	Shared
)

var blockStateNames = [...]string{
	Invalid:     "I",
	NonCoherent: "N",
	Modified:    "M",
	Owned:       "O",
	Exclusive:   "E",
	Shared:      "S",
}

func (s BlockState) String() string {
	if s < 0 || int(s) >= len(blockStateNames) {
		return "?"
	}

	return blockStateNames[s]
}

// IsValid tells if the block holds data.
func (s BlockState) IsValid() bool {
	return s != Invalid
}

// CanWrite tells if a store can hit in a block with this state without
// asking the level below.
func (s BlockState) CanWrite() bool {
	return s == Modified || s == Exclusive
}
