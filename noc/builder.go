package noc

import (
	"github.com/sarchlab/nmoesi/sim/timing"
)

// Builder can help building networks.
type Builder struct {
	engine    timing.Engine
	freq      timing.Freq
	latency   int
	bandwidth int
}

// MakeBuilder returns a builder with a 1 GHz clock, a 2-cycle latency and a
// 64 bytes-per-cycle output bandwidth.
func MakeBuilder() Builder {
	return Builder{
		freq:      1 * timing.GHz,
		latency:   2,
		bandwidth: 64,
	}
}

// WithEngine sets the engine that schedules the deliveries.
func (b Builder) WithEngine(e timing.Engine) Builder {
	b.engine = e
	return b
}

// WithFreq sets the clock of the network.
func (b Builder) WithFreq(f timing.Freq) Builder {
	b.freq = f
	return b
}

// WithLatency sets the number of cycles a message spends on the wire.
func (b Builder) WithLatency(cycles int) Builder {
	b.latency = cycles
	return b
}

// WithBandwidth sets the number of bytes a node can push per cycle. Zero
// means every message takes one cycle to leave the node.
func (b Builder) WithBandwidth(bytesPerCycle int) Builder {
	b.bandwidth = bytesPerCycle
	return b
}

// Build creates the network.
func (b Builder) Build(name string) *Network {
	if b.engine == nil {
		panic("network requires an engine")
	}

	if b.latency < 0 || b.bandwidth < 0 {
		panic("network latency and bandwidth cannot be negative")
	}

	return &Network{
		name:       name,
		engine:     b.engine,
		freq:       b.freq,
		latency:    b.latency,
		bandwidth:  b.bandwidth,
		nodeByName: make(map[string]*Node),
	}
}
