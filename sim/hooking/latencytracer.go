package hooking

import (
	"sort"
	"sync"
)

// LatencyTracer collects the number, the total and the maximum duration of
// the tasks that pass the filter, grouped by the What field of the task.
type LatencyTracer struct {
	timeTeller    TimeTeller
	filter        TaskFilter
	lock          sync.Mutex
	inflightTasks map[string]inflightTask
	groups        map[string]*LatencyGroup
}

type inflightTask struct {
	what      string
	startTime float64
}

// LatencyGroup summarizes the tasks that share the same What.
type LatencyGroup struct {
	What      string
	Count     uint64
	TotalTime float64
	MaxTime   float64
}

// AverageTime returns the average duration of the tasks in the group.
func (g LatencyGroup) AverageTime() float64 {
	if g.Count == 0 {
		return 0
	}

	return g.TotalTime / float64(g.Count)
}

// NewLatencyTracer creates a new LatencyTracer. A nil filter accepts all the
// tasks.
func NewLatencyTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *LatencyTracer {
	if filter == nil {
		filter = func(TaskStart) bool { return true }
	}

	t := &LatencyTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]inflightTask),
		groups:        make(map[string]*LatencyGroup),
	}

	return t
}

// Func records the start end of a task.
func (t *LatencyTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// StartTask records the task start time
func (t *LatencyTracer) StartTask(taskStart TaskStart) {
	if !t.filter(taskStart) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[taskStart.ID] = inflightTask{
		what:      taskStart.What,
		startTime: t.timeTeller.Now(),
	}
	t.lock.Unlock()
}

// EndTask records the end of the task
func (t *LatencyTracer) EndTask(taskEnd TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	currTask, ok := t.inflightTasks[taskEnd.ID]
	if !ok {
		return
	}

	taskTime := t.timeTeller.Now() - currTask.startTime

	g, ok := t.groups[currTask.what]
	if !ok {
		g = &LatencyGroup{What: currTask.what}
		t.groups[currTask.what] = g
	}

	g.Count++
	g.TotalTime += taskTime

	if taskTime > g.MaxTime {
		g.MaxTime = taskTime
	}

	delete(t.inflightTasks, taskEnd.ID)
}

// Groups returns the summaries sorted by What.
func (t *LatencyTracer) Groups() []LatencyGroup {
	t.lock.Lock()
	defer t.lock.Unlock()

	groups := make([]LatencyGroup, 0, len(t.groups))
	for _, g := range t.groups {
		groups = append(groups, *g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].What < groups[j].What
	})

	return groups
}

// NumInflightTasks returns the number of tasks started but not ended.
func (t *LatencyTracer) NumInflightTasks() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.inflightTasks)
}
