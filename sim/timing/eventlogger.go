package timing

import (
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nmoesi/sim/hooking"
)

// EventLogger is a hook that writes every event to a logger before the event
// is handled.
type EventLogger struct {
	logger *logrus.Logger
}

// NewEventLogger returns a new EventLogger which will write in to the logger
// at the trace level.
func NewEventLogger(logger *logrus.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt := ctx.Item.(Event)
	h.logger.WithFields(logrus.Fields{
		"time":    evt.Time(),
		"event":   reflect.TypeOf(evt).String(),
		"handler": reflect.TypeOf(evt.Handler()).String(),
	}).Trace("event")
}

// IssueWidthCounter is a hook that counts how many events are handled at the
// same time.
type IssueWidthCounter struct {
	now      VTimeInSec
	count    int
	rounds   int
	events   int
	maxWidth int
}

// Func counts an event before it is handled.
func (h *IssueWidthCounter) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt := ctx.Item.(Event)
	if h.rounds == 0 || evt.Time() != h.now {
		h.now = evt.Time()
		h.rounds++
		h.count = 0
	}

	h.count++
	h.events++

	if h.count > h.maxWidth {
		h.maxWidth = h.count
	}
}

// MaxWidth returns the largest number of events that shared a time.
func (h *IssueWidthCounter) MaxWidth() int {
	return h.maxWidth
}

// AverageWidth returns the average number of events per distinct time.
func (h *IssueWidthCounter) AverageWidth() float64 {
	if h.rounds == 0 {
		return 0
	}

	return float64(h.events) / float64(h.rounds)
}
