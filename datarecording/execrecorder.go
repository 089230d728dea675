package datarecording

import (
	"os"
	"strings"
	"time"
)

const runInfoTable = "run_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

// RunInfo is one property of the run that produced a database.
type RunInfo struct {
	Property string
	Value    string
}

// execRecorder records when and how the simulator was run.
type execRecorder struct {
	recorder DataRecorder
	entries  []RunInfo
}

func newExecRecorder(recorder DataRecorder) *execRecorder {
	recorder.CreateTable(runInfoTable, RunInfo{})

	return &execRecorder{recorder: recorder}
}

// Start notes the start time, the command and the working directory.
func (e *execRecorder) Start() {
	e.entries = append(e.entries,
		RunInfo{"Start Time", time.Now().Format(timeLayout)},
		RunInfo{"Command", strings.Join(os.Args, " ")})

	cwd, err := os.Getwd()
	if err == nil {
		e.entries = append(e.entries, RunInfo{"Working Directory", cwd})
	}
}

// End inserts the collected properties along with the end time.
func (e *execRecorder) End() {
	e.entries = append(e.entries,
		RunInfo{"End Time", time.Now().Format(timeLayout)})

	for _, entry := range e.entries {
		e.recorder.InsertData(runInfoTable, entry)
	}

	e.entries = nil
}
