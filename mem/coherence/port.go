package coherence

// portRequest is an operation waiting for a port, with the step it resumes
// at once the port is granted.
type portRequest struct {
	op   OpHandle
	next step
}

// portArbiter hands out the lookup ports of a module. Requests that cannot
// get a port wait in arrival order.
type portArbiter struct {
	numPorts int
	numInUse int
	waiting  []portRequest
}

func newPortArbiter(numPorts int) *portArbiter {
	return &portArbiter{numPorts: numPorts}
}

// lock grants a port to the request and reports if it was granted. A request
// that is not granted is queued and handed a port by a later unlock.
func (a *portArbiter) lock(req portRequest) bool {
	if a.numInUse < a.numPorts {
		a.numInUse++
		return true
	}

	a.waiting = append(a.waiting, req)

	return false
}

// unlock releases a port. If a request is waiting, the port passes to it and
// the request is returned.
func (a *portArbiter) unlock() (portRequest, bool) {
	if a.numInUse == 0 {
		panic("releasing a port that is not locked")
	}

	if len(a.waiting) == 0 {
		a.numInUse--
		return portRequest{}, false
	}

	next := a.waiting[0]
	a.waiting[0] = portRequest{}
	a.waiting = a.waiting[1:]

	return next, true
}

func (a *portArbiter) numWaiting() int {
	return len(a.waiting)
}
