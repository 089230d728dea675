// Package trace records the activity of a coherent memory hierarchy into a
// database.
package trace

import (
	"sort"
	"strings"

	"github.com/fatih/structs"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/nmoesi/datarecording"
	"github.com/sarchlab/nmoesi/mem/coherence"
	"github.com/sarchlab/nmoesi/sim/hooking"
)

// Table names.
const (
	TaskTable   = "nmoesi_tasks"
	StepTable   = "nmoesi_task_steps"
	AccessTable = "nmoesi_accesses"
	StatTable   = "nmoesi_stats"
)

// TaskEntry is a row of the task table. A task is a client access followed
// from admission to finish.
type TaskEntry struct {
	ID        string
	AccessID  uint64
	Kind      string
	Module    string
	Address   uint64
	StartTime float64
	EndTime   float64
	NumSteps  int
	Coalesced bool
	Retried   bool
	Finished  bool
}

// StepEntry is a row of the step table. Steps of a task are numbered from 0.
type StepEntry struct {
	TaskID    string
	StepIndex int
	Time      float64
	Module    string
	Step      string
}

// AccessEntry is a row of the access table.
type AccessEntry struct {
	ID        uint64
	Module    string
	Kind      string
	Address   uint64
	StartTime float64
	EndTime   float64
	Coalesced bool
	Retried   bool
}

// StatEntry is a row of the statistics table.
type StatEntry struct {
	Module  string
	Counter string
	Value   uint64
}

type accessTask struct {
	entry TaskEntry
	steps []StepEntry
}

// TaskTracer is a hook that stores the access tasks of the modules it is
// attached to, with one row per protocol step taken on behalf of the access.
// Tasks that have not ended are written by Terminate.
type TaskTracer struct {
	timeTeller hooking.TimeTeller
	recorder   datarecording.DataRecorder
	tasks      map[string]*accessTask
	byAccess   map[uint64]string
}

// NewTaskTracer creates a TaskTracer and its tables. The tracer terminates
// itself when the program exits.
func NewTaskTracer(
	timeTeller hooking.TimeTeller,
	recorder datarecording.DataRecorder,
) *TaskTracer {
	recorder.CreateTable(TaskTable, TaskEntry{})
	recorder.CreateTable(StepTable, StepEntry{})

	t := &TaskTracer{
		timeTeller: timeTeller,
		recorder:   recorder,
		tasks:      make(map[string]*accessTask),
		byAccess:   make(map[uint64]string),
	}

	atexit.Register(t.Terminate)

	return t
}

// Func dispatches the hook context.
func (t *TaskTracer) Func(ctx hooking.HookCtx) {
	if t.tasks == nil {
		return
	}

	switch ctx.Pos {
	case hooking.HookPosTaskStart:
		t.startTask(ctx.Item.(hooking.TaskStart))
	case hooking.HookPosTaskStep:
		t.stepTask(ctx.Item.(hooking.TaskStep))
	case coherence.HookPosAccessFinish:
		t.finishAccess(ctx.Item.(coherence.AccessRecord))
	case hooking.HookPosTaskEnd:
		t.endTask(ctx.Item.(hooking.TaskEnd))
	}
}

func (t *TaskTracer) startTask(ts hooking.TaskStart) {
	if ts.ID == "" || ts.Where == "" {
		panic("access task without ID or module")
	}

	task := &accessTask{entry: TaskEntry{
		ID:        ts.ID,
		Kind:      ts.What,
		Module:    ts.Where,
		StartTime: t.timeTeller.Now(),
	}}

	if access, ok := ts.Detail.(coherence.AccessRecord); ok {
		task.entry.AccessID = access.ID
		task.entry.Address = access.Addr
		t.byAccess[access.ID] = ts.ID
	}

	t.tasks[ts.ID] = task
}

func (t *TaskTracer) stepTask(ts hooking.TaskStep) {
	task, ok := t.tasks[ts.TaskID]
	if !ok {
		return
	}

	module, step, found := strings.Cut(ts.What, ":")
	if !found {
		module, step = task.entry.Module, ts.What
	}

	task.steps = append(task.steps, StepEntry{
		TaskID:    ts.TaskID,
		StepIndex: len(task.steps),
		Time:      t.timeTeller.Now(),
		Module:    module,
		Step:      step,
	})
}

func (t *TaskTracer) finishAccess(access coherence.AccessRecord) {
	id, ok := t.byAccess[access.ID]
	if !ok {
		return
	}

	task := t.tasks[id]
	task.entry.Coalesced = access.Coalesced
	task.entry.Retried = access.Retried
}

func (t *TaskTracer) endTask(te hooking.TaskEnd) {
	task, ok := t.tasks[te.ID]
	if !ok {
		return
	}

	task.entry.Finished = true
	t.write(task, t.timeTeller.Now())
}

func (t *TaskTracer) write(task *accessTask, endTime float64) {
	task.entry.EndTime = endTime
	task.entry.NumSteps = len(task.steps)

	t.recorder.InsertData(TaskTable, task.entry)
	for _, s := range task.steps {
		t.recorder.InsertData(StepTable, s)
	}

	delete(t.tasks, task.entry.ID)
	delete(t.byAccess, task.entry.AccessID)
}

// Terminate writes the tasks that have not ended, with the current time as
// their end time, and flushes the recorder. Terminating twice is a no-op.
func (t *TaskTracer) Terminate() {
	if t.tasks == nil {
		return
	}

	pending := make([]*accessTask, 0, len(t.tasks))
	for _, task := range t.tasks {
		pending = append(pending, task)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].entry.ID < pending[j].entry.ID
	})

	if len(pending) > 0 {
		now := t.timeTeller.Now()
		for _, task := range pending {
			t.write(task, now)
		}
	}

	t.tasks = nil
	t.byAccess = nil

	t.recorder.Flush()
}

// AccessRecorder is a hook that stores one row per finished client access.
// It is attached to the modules that receive accesses.
type AccessRecorder struct {
	recorder datarecording.DataRecorder
}

// NewAccessRecorder creates an AccessRecorder and its table.
func NewAccessRecorder(recorder datarecording.DataRecorder) *AccessRecorder {
	recorder.CreateTable(AccessTable, AccessEntry{})

	return &AccessRecorder{recorder: recorder}
}

// Func records an access when it finishes.
func (r *AccessRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != coherence.HookPosAccessFinish {
		return
	}

	mod := ctx.Domain.(*coherence.Module)
	access := ctx.Item.(coherence.AccessRecord)

	r.recorder.InsertData(AccessTable, AccessEntry{
		ID:        access.ID,
		Module:    mod.Name(),
		Kind:      access.Kind.String(),
		Address:   access.Addr,
		StartTime: access.StartTime,
		EndTime:   access.FinishTime,
		Coalesced: access.Coalesced,
		Retried:   access.Retried,
	})
}

// RecordStats stores the non-zero counters of the modules. It creates the
// statistics table on the first call for a recorder.
func RecordStats(
	recorder datarecording.DataRecorder,
	modules []*coherence.Module,
) {
	if !hasTable(recorder, StatTable) {
		recorder.CreateTable(StatTable, StatEntry{})
	}

	for _, m := range modules {
		counters := structs.Map(m.Stats())

		names := make([]string, 0, len(counters))
		for name := range counters {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			value := counters[name].(uint64)
			if value == 0 {
				continue
			}

			recorder.InsertData(StatTable, StatEntry{
				Module:  m.Name(),
				Counter: name,
				Value:   value,
			})
		}
	}

	recorder.Flush()
}

func hasTable(recorder datarecording.DataRecorder, name string) bool {
	for _, t := range recorder.ListTables() {
		if t == name {
			return true
		}
	}

	return false
}
