package main

import (
	"math/rand"

	"github.com/ansel1/merry"

	"github.com/sarchlab/nmoesi/mem/coherence"
	"github.com/sarchlab/nmoesi/sim/timing"
)

type workloadConfig struct {
	NumAccesses  int
	Footprint    uint64
	Stride       uint64
	StoreRatio   float64
	NCStoreRatio float64
	SharedRatio  float64
	MaxInflight  int
	Interval     int
	Seed         int64
}

func defaultWorkload() workloadConfig {
	return workloadConfig{
		NumAccesses:  10000,
		Footprint:    64 * 1024,
		Stride:       4,
		StoreRatio:   0.3,
		NCStoreRatio: 0.05,
		SharedRatio:  0.25,
		MaxInflight:  4,
		Interval:     1,
		Seed:         1,
	}
}

func (c workloadConfig) validate() error {
	switch {
	case c.NumAccesses < 0:
		return merry.Here(ErrInvalidConfig).Append("negative access count")
	case c.Footprint == 0 || c.Stride == 0:
		return merry.Here(ErrInvalidConfig).Append("empty footprint")
	case c.Footprint < c.Stride:
		return merry.Here(ErrInvalidConfig).
			Appendf("footprint %d smaller than stride %d",
				c.Footprint, c.Stride)
	case c.StoreRatio < 0 || c.NCStoreRatio < 0 ||
		c.StoreRatio+c.NCStoreRatio > 1:
		return merry.Here(ErrInvalidConfig).
			Appendf("store ratio %g and nc-store ratio %g",
				c.StoreRatio, c.NCStoreRatio)
	case c.SharedRatio < 0 || c.SharedRatio > 1:
		return merry.Here(ErrInvalidConfig).
			Appendf("shared ratio %g", c.SharedRatio)
	case c.MaxInflight <= 0 || c.Interval <= 0:
		return merry.Here(ErrInvalidConfig).
			Append("at least one in-flight access and a positive interval")
	}

	return nil
}

// inflightLimiter bounds the number of accesses a core keeps in flight.
type inflightLimiter struct {
	inflight int
	max      int
}

func (l *inflightLimiter) full() bool {
	return l.inflight >= l.max
}

func (l *inflightLimiter) acquire() {
	l.inflight++
}

// Release is called by the protocol when the access finishes.
func (l *inflightLimiter) Release() {
	if l.inflight == 0 {
		panic("releasing an idle limiter")
	}

	l.inflight--
}

// core issues the accesses of one L1.
type core struct {
	mod     *coherence.Module
	limiter *inflightLimiter
	base    uint64
	issued  int
}

type tickEvent struct {
	*timing.EventBase
}

// A workload issues random loads, stores and nc-stores from every L1, one
// access per core per interval while the core has room for it. Part of the
// accesses go to a region shared by all the cores and the rest go to the
// private region of the issuing core.
type workload struct {
	cfg      workloadConfig
	engine   timing.Engine
	freq     timing.Freq
	proto    *coherence.Protocol
	rng      *rand.Rand
	cores    []*core
	finished int
}

func newWorkload(
	cfg workloadConfig,
	h *hierarchy,
	freq timing.Freq,
) (*workload, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	w := &workload{
		cfg:    cfg,
		engine: h.engine,
		freq:   freq,
		proto:  h.proto,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	for i, l1 := range h.l1s {
		w.cores = append(w.cores, &core{
			mod:     l1,
			limiter: &inflightLimiter{max: cfg.MaxInflight},
			base:    uint64(i+1) * cfg.Footprint,
		})
	}

	return w, nil
}

// Start schedules the first issue.
func (w *workload) Start() {
	w.engine.Schedule(tickEvent{timing.NewEventBase(w.engine.Now(), w)})
}

// Handle issues one access for every core that can take one.
func (w *workload) Handle(e timing.Event) error {
	pending := false

	for _, c := range w.cores {
		if c.issued >= w.cfg.NumAccesses {
			continue
		}

		pending = true

		if c.limiter.full() {
			continue
		}

		w.issue(c)
	}

	if pending {
		next := w.freq.NCyclesLater(w.cfg.Interval, e.Time())
		w.engine.Schedule(tickEvent{timing.NewEventBase(next, w)})
	}

	return nil
}

func (w *workload) issue(c *core) {
	addr := w.address(c)
	access := coherence.Access{
		Module:   c.mod,
		Addr:     addr,
		Witness:  &w.finished,
		Resource: c.limiter,
	}

	c.limiter.acquire()
	c.issued++

	r := w.rng.Float64()
	switch {
	case r < w.cfg.StoreRatio:
		w.proto.Store(access)
	case r < w.cfg.StoreRatio+w.cfg.NCStoreRatio:
		w.proto.NCStore(access)
	default:
		w.proto.Load(access)
	}
}

func (w *workload) address(c *core) uint64 {
	numSlots := w.cfg.Footprint / w.cfg.Stride
	offset := uint64(w.rng.Int63n(int64(numSlots))) * w.cfg.Stride

	if w.rng.Float64() < w.cfg.SharedRatio {
		return offset
	}

	return c.base + offset
}

// NumIssued returns the number of accesses issued so far.
func (w *workload) NumIssued() int {
	n := 0
	for _, c := range w.cores {
		n += c.issued
	}

	return n
}

// NumFinished returns the number of accesses that have finished.
func (w *workload) NumFinished() int {
	return w.finished
}
