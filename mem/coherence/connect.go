package coherence

import (
	"fmt"

	"github.com/sarchlab/nmoesi/noc"
)

// Connect attaches a level of the hierarchy to a network. Every module in
// uppers gets its low node and every module in lowers gets its high node on
// the network. The lowers share the address space, interleaved at the
// granularity of their block size.
func Connect(net *noc.Network, uppers, lowers []*Module) {
	if len(uppers) == 0 || len(lowers) == 0 {
		panic("connecting an empty level")
	}

	mustShareBlockSize(lowers)

	for _, upper := range uppers {
		if upper.lowNode != nil {
			panic(fmt.Sprintf("module %s is already connected below",
				upper.name))
		}

		if upper.isMainMemory() {
			panic(fmt.Sprintf("main memory %s cannot have modules below",
				upper.name))
		}

		upper.lowNet = net
		upper.lowNode = net.AddNode(upper.name + ".Low")
	}

	var finder LowModuleFinder
	if len(lowers) == 1 {
		finder = &SingleLowModuleFinder{LowModule: lowers[0]}
	} else {
		finder = NewInterleavedLowModuleFinder(
			uint64(lowers[0].blockSize), lowers...)
	}

	for _, upper := range uppers {
		upper.lowModuleFinder = finder
	}

	for _, lower := range lowers {
		if lower.highNode != nil {
			panic(fmt.Sprintf("module %s is already connected above",
				lower.name))
		}

		lower.highNet = net
		lower.highNode = net.AddNode(lower.name + ".High")
		lower.numInterleaved = len(lowers)

		for _, upper := range uppers {
			mustFitSubBlocks(upper, lower)
			lower.upperModules[upper.lowNode.Index] = upper
		}
	}
}

func mustShareBlockSize(modules []*Module) {
	for _, m := range modules[1:] {
		if m.blockSize != modules[0].blockSize {
			panic(fmt.Sprintf("modules %s and %s differ in block size",
				modules[0].name, m.name))
		}
	}
}

func mustFitSubBlocks(upper, lower *Module) {
	if upper.blockSize > lower.blockSize {
		panic(fmt.Sprintf("block size of %s is larger than that of %s",
			upper.name, lower.name))
	}

	if upper.blockSize%lower.subBlockSize != 0 {
		panic(fmt.Sprintf(
			"block size of %s is not a multiple of the sub-block size of %s",
			upper.name, lower.name))
	}
}
