package coherence

// LowModuleFinder helps a module to find the module below it that holds the
// data at a certain address.
type LowModuleFinder interface {
	Find(address uint64) *Module
	LowModules() []*Module
}

// SingleLowModuleFinder is used when a module is connected with only one
// low module.
type SingleLowModuleFinder struct {
	LowModule *Module
}

// Find simply returns the solo module that it connects to.
func (f *SingleLowModuleFinder) Find(address uint64) *Module {
	return f.LowModule
}

// LowModules returns the solo module.
func (f *SingleLowModuleFinder) LowModules() []*Module {
	return []*Module{f.LowModule}
}

// InterleavedLowModuleFinder helps find the low module when the low modules
// hold interleaved parts of the address space.
type InterleavedLowModuleFinder struct {
	InterleavingSize uint64
	Modules          []*Module
}

// NewInterleavedLowModuleFinder creates a new finder for interleaved lower
// modules.
func NewInterleavedLowModuleFinder(
	interleavingSize uint64,
	modules ...*Module,
) *InterleavedLowModuleFinder {
	if interleavingSize == 0 {
		panic("interleaving size must be positive")
	}

	return &InterleavedLowModuleFinder{
		InterleavingSize: interleavingSize,
		Modules:          modules,
	}
}

// Find returns the low module that has the data at provided address.
func (f *InterleavedLowModuleFinder) Find(address uint64) *Module {
	number := address / f.InterleavingSize % uint64(len(f.Modules))
	return f.Modules[number]
}

// LowModules returns all the modules that the address space is spread over.
func (f *InterleavedLowModuleFinder) LowModules() []*Module {
	return f.Modules
}
