package main

import (
	"fmt"

	"github.com/ansel1/merry"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nmoesi/mem/coherence"
	"github.com/sarchlab/nmoesi/noc"
	"github.com/sarchlab/nmoesi/sim/timing"
)

// ErrInvalidConfig is returned for a hierarchy that cannot be built.
var ErrInvalidConfig = merry.New("invalid configuration")

type levelConfig struct {
	Count         int
	ByteSize      uint64
	Ways          int
	Log2BlockSize int
	Log2SubBlock  int
	DirLatency    int
	DataLatency   int
	NumPorts      int
	Replacement   string
}

type simConfig struct {
	FreqGHz    float64
	NetLatency int
	NetBW      int
	Seed       int64

	L1  levelConfig
	L2  levelConfig
	Mem levelConfig
}

func defaultConfig() simConfig {
	return simConfig{
		FreqGHz:    1,
		NetLatency: 2,
		NetBW:      64,
		Seed:       1,
		L1: levelConfig{
			Count: 2, ByteSize: 16 * 1024, Ways: 4, Log2BlockSize: 6,
			DirLatency: 1, DataLatency: 1, NumPorts: 2, Replacement: "lru",
		},
		L2: levelConfig{
			Count: 1, ByteSize: 256 * 1024, Ways: 8, Log2BlockSize: 6,
			DirLatency: 2, DataLatency: 4, NumPorts: 4, Replacement: "lru",
		},
		Mem: levelConfig{
			Count: 1, ByteSize: 4 * 1024 * 1024, Ways: 16, Log2BlockSize: 6,
			DirLatency: 10, DataLatency: 50, NumPorts: 8, Replacement: "lru",
		},
	}
}

func (c simConfig) validate() error {
	if c.FreqGHz <= 0 {
		return merry.Here(ErrInvalidConfig).
			Appendf("frequency %g GHz", c.FreqGHz)
	}

	levels := []struct {
		name string
		cfg  levelConfig
	}{{"l1", c.L1}, {"l2", c.L2}, {"mem", c.Mem}}

	for _, l := range levels {
		if err := l.cfg.validate(); err != nil {
			return merry.WithValue(err, "level", l.name)
		}
	}

	if !fitsBelow(c.L1, c.L2) || !fitsBelow(c.L2, c.Mem) {
		return merry.Here(ErrInvalidConfig).
			Append("an upper block must be a whole number of lower sub-blocks")
	}

	return nil
}

func (l levelConfig) validate() error {
	if l.Count <= 0 || l.Ways <= 0 || l.NumPorts <= 0 {
		return merry.Here(ErrInvalidConfig).
			Appendf("count %d, ways %d, ports %d", l.Count, l.Ways, l.NumPorts)
	}

	if l.Log2SubBlock > l.Log2BlockSize {
		return merry.Here(ErrInvalidConfig).
			Appendf("sub-block 2^%d larger than block 2^%d",
				l.Log2SubBlock, l.Log2BlockSize)
	}

	setSize := uint64(l.Ways) << uint(l.Log2BlockSize)
	if l.ByteSize == 0 || l.ByteSize%setSize != 0 {
		return merry.Here(ErrInvalidConfig).
			Appendf("%d bytes is not a whole number of %d-byte sets",
				l.ByteSize, setSize)
	}

	if l.DirLatency < 0 || l.DataLatency < 0 {
		return merry.Here(ErrInvalidConfig).Append("negative latency")
	}

	return nil
}

func (l levelConfig) subBlockLog2() int {
	if l.Log2SubBlock == 0 {
		return l.Log2BlockSize
	}

	return l.Log2SubBlock
}

func fitsBelow(upper, lower levelConfig) bool {
	return upper.Log2BlockSize <= lower.Log2BlockSize &&
		upper.Log2BlockSize >= lower.subBlockLog2()
}

// hierarchy is a tree of L1 caches over shared L2 banks over memory banks.
type hierarchy struct {
	engine   *timing.SerialEngine
	proto    *coherence.Protocol
	upperNet *noc.Network
	lowerNet *noc.Network
	l1s      []*coherence.Module
	l2s      []*coherence.Module
	mems     []*coherence.Module
}

func (h *hierarchy) modules() []*coherence.Module {
	all := make([]*coherence.Module, 0, len(h.l1s)+len(h.l2s)+len(h.mems))
	all = append(all, h.l1s...)
	all = append(all, h.l2s...)
	all = append(all, h.mems...)

	return all
}

func (l levelConfig) builder(seed int64) coherence.Builder {
	return coherence.MakeBuilder().
		WithByteSize(l.ByteSize).
		WithWayAssociativity(l.Ways).
		WithLog2BlockSize(l.Log2BlockSize).
		WithLog2SubBlockSize(l.Log2SubBlock).
		WithDirLatency(l.DirLatency).
		WithDataLatency(l.DataLatency).
		WithNumPorts(l.NumPorts).
		WithReplaceStrategy(l.Replacement).
		WithSeed(seed)
}

func buildHierarchy(cfg simConfig, log *logrus.Logger) (*hierarchy, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	freq := timing.Freq(cfg.FreqGHz) * timing.GHz

	h := &hierarchy{engine: timing.NewSerialEngine()}
	h.proto = coherence.NewProtocol(h.engine, freq, log)

	netBuilder := noc.MakeBuilder().
		WithEngine(h.engine).
		WithFreq(freq).
		WithLatency(cfg.NetLatency).
		WithBandwidth(cfg.NetBW)
	h.upperNet = netBuilder.Build("L1-L2")
	h.lowerNet = netBuilder.Build("L2-Mem")

	for i := 0; i < cfg.L1.Count; i++ {
		h.l1s = append(h.l1s, cfg.L1.builder(cfg.Seed+int64(i)).
			Build(fmt.Sprintf("L1[%d]", i)))
	}

	for i := 0; i < cfg.L2.Count; i++ {
		h.l2s = append(h.l2s, cfg.L2.builder(cfg.Seed+int64(i)).
			Build(fmt.Sprintf("L2[%d]", i)))
	}

	for i := 0; i < cfg.Mem.Count; i++ {
		h.mems = append(h.mems, cfg.Mem.builder(cfg.Seed+int64(i)).
			AsMainMemory().
			Build(fmt.Sprintf("Mem[%d]", i)))
	}

	coherence.Connect(h.upperNet, h.l1s, h.l2s)
	coherence.Connect(h.lowerNet, h.l2s, h.mems)

	return h, nil
}
