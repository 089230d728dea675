package coherence

// join counts the branches an operation waits for. Every spawned branch must
// arrive exactly once, and the branch that arrives last continues the
// operation. The order of arrival does not matter.
type join struct {
	pending int
}

// reset starts a new join with n branches.
func (j *join) reset(n int) {
	if n < 0 {
		panic("negative number of branches")
	}

	j.pending = n
}

// spawn adds n branches.
func (j *join) spawn(n int) {
	j.pending += n
}

// arrive marks a branch as done and tells if it was the last one.
func (j *join) arrive() bool {
	if j.pending <= 0 {
		panic("arriving at a join with no pending branch")
	}

	j.pending--

	return j.pending == 0
}

// count returns the number of branches that have not arrived.
func (j *join) count() int {
	return j.pending
}
