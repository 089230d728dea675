package hooking

import (
	"sync"
)

// StepCountTracer counts how many times each kind of step is taken by the
// tasks that pass the filter.
type StepCountTracer struct {
	filter TaskFilter
	lock   sync.Mutex

	inflightTasks map[string]bool
	stepNames     []string
	stepCount     map[string]uint64
}

// NewStepCountTracer creates a new StepCountTracer. A nil filter accepts all
// the tasks.
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	if filter == nil {
		filter = func(TaskStart) bool { return true }
	}

	t := &StepCountTracer{
		filter:        filter,
		inflightTasks: make(map[string]bool),
		stepCount:     make(map[string]uint64),
	}

	return t
}

// Func dispatches the hook context.
func (t *StepCountTracer) Func(ctx HookCtx) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch ctx.Pos {
	case HookPosTaskStart:
		ts := ctx.Item.(TaskStart)
		if t.filter(ts) {
			t.inflightTasks[ts.ID] = true
		}
	case HookPosTaskStep:
		ts := ctx.Item.(TaskStep)
		if t.inflightTasks[ts.TaskID] {
			t.countStep(ts.What)
		}
	case HookPosTaskEnd:
		delete(t.inflightTasks, ctx.Item.(TaskEnd).ID)
	}
}

func (t *StepCountTracer) countStep(what string) {
	_, ok := t.stepCount[what]
	if !ok {
		t.stepNames = append(t.stepNames, what)
	}

	t.stepCount[what]++
}

// GetStepNames returns all the step names collected, in the order they are
// first seen.
func (t *StepCountTracer) GetStepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.stepNames...)
}

// GetStepCount returns the number of steps that is recorded with a certain
// step name.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stepCount[stepName]
}
