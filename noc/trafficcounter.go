package noc

import (
	"github.com/sarchlab/nmoesi/sim/hooking"
)

// A TrafficCounter counts the messages and bytes delivered by a network,
// grouped by message size.
type TrafficCounter struct {
	TotalMsgs  uint64
	TotalBytes uint64
	BySize     map[int]uint64
}

// NewTrafficCounter creates a new TrafficCounter.
func NewTrafficCounter() *TrafficCounter {
	return &TrafficCounter{
		BySize: make(map[int]uint64),
	}
}

// Func adds the delivered traffic to the counter
func (c *TrafficCounter) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosMsgDeliver {
		return
	}

	msg := ctx.Item.(*Msg)
	c.TotalMsgs++
	c.TotalBytes += uint64(msg.Size)
	c.BySize[msg.Size]++
}
