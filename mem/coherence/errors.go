package coherence

import (
	"github.com/ansel1/merry"

	"github.com/sarchlab/nmoesi/mem/cache"
)

// ErrProtocolViolation is the root of the errors raised when the state of a
// module contradicts the protocol. The simulation cannot continue after such
// an error. The error carries the values "module", "addr" and "state".
var ErrProtocolViolation = merry.New("coherence protocol violation")

func protocolViolation(
	mod *Module,
	addr uint64,
	state cache.BlockState,
	format string,
	args ...interface{},
) error {
	return merry.WrapSkipping(ErrProtocolViolation, 1).
		Appendf(format, args...).
		WithValue("module", mod.Name()).
		WithValue("addr", addr).
		WithValue("state", state)
}

// ViolationModule returns the name of the module that detected the violation.
func ViolationModule(err error) string {
	name, _ := merry.Value(err, "module").(string)
	return name
}

// ViolationAddr returns the address involved in the violation.
func ViolationAddr(err error) uint64 {
	addr, _ := merry.Value(err, "addr").(uint64)
	return addr
}

// ViolationState returns the block state that violated the protocol.
func ViolationState(err error) cache.BlockState {
	state, _ := merry.Value(err, "state").(cache.BlockState)
	return state
}
