package hooking

// A list of hook poses for the hooks to apply to
var (
	HookPosTaskStart = &HookPos{Name: "HookPosTaskStart"}
	HookPosTaskStep  = &HookPos{Name: "HookPosTaskStep"}
	HookPosTaskEnd   = &HookPos{Name: "HookPosTaskEnd"}
)

// TaskStart is data that is passed to the hook when a task starts.
type TaskStart struct {
	ID       string
	ParentID string
	Kind     string
	What     string
	Where    string
	Detail   interface{}
}

// TaskStep is data that is passed to the hook when a task takes a step.
type TaskStep struct {
	TaskID string
	StepID string
	Kind   string
	What   string
	Detail string
}

// TaskEnd is data that is passed to the hook when a task ends.
type TaskEnd struct {
	ID string
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t TaskStart) bool

// A TimeTeller can tell the current time. This interface is recreated here
// to break a circular dependency between the timing package and the
// hooking package.
type TimeTeller interface {
	Now() float64
}

// An Invoker is a Hookable that can also trigger its hooks.
type Invoker interface {
	Hookable
	InvokeHook(ctx HookCtx)
}

// StartTask notifies the hooks of the domain that a task starts.
func StartTask(domain Invoker, ts TaskStart) {
	if domain.NumHooks() == 0 {
		return
	}

	domain.InvokeHook(HookCtx{
		Domain: domain,
		Pos:    HookPosTaskStart,
		Item:   ts,
		Detail: ts.Detail,
	})
}

// AddTaskStep notifies the hooks of the domain that a task takes a step.
func AddTaskStep(domain Invoker, ts TaskStep) {
	if domain.NumHooks() == 0 {
		return
	}

	domain.InvokeHook(HookCtx{
		Domain: domain,
		Pos:    HookPosTaskStep,
		Item:   ts,
	})
}

// EndTask notifies the hooks of the domain that a task ends.
func EndTask(domain Invoker, te TaskEnd) {
	if domain.NumHooks() == 0 {
		return
	}

	domain.InvokeHook(HookCtx{
		Domain: domain,
		Pos:    HookPosTaskEnd,
		Item:   te,
	})
}
