package coherence

// step is a state of the protocol state machines. An operation runs one step
// per event.
type step int

const (
	stepNone step = iota

	stepLoad
	stepLoadLock
	stepLoadAction
	stepLoadMiss
	stepLoadUnlock
	stepLoadFinish

	stepStore
	stepStoreLock
	stepStoreAction
	stepStoreUnlock
	stepStoreFinish

	stepNCStore
	stepNCStoreLock
	stepNCStoreAction
	stepNCStoreMiss
	stepNCStoreUnlock
	stepNCStoreMerge
	stepNCStoreFinish

	stepMessage
	stepMessageAction
	stepMessageFinish

	stepFindAndLock
	stepFindAndLockPort
	stepFindAndLockAction
	stepFindAndLockFinish

	stepReadRequest
	stepReadRequestReceive
	stepReadRequestAction
	stepReadRequestUpdown
	stepReadRequestUpdownMiss
	stepReadRequestUpdownFinish
	stepReadRequestDownup
	stepReadRequestDownupWaitForReqs
	stepReadRequestDownupFinish
	stepReadRequestReply
	stepReadRequestFinish

	stepWriteRequest
	stepWriteRequestReceive
	stepWriteRequestAction
	stepWriteRequestUpdown
	stepWriteRequestUpdownFinish
	stepWriteRequestDownup
	stepWriteRequestDownupFinish
	stepWriteRequestReply
	stepWriteRequestFinish

	stepWriteData
	stepWriteDataReceive
	stepWriteDataAction
	stepWriteDataLower
	stepWriteDataBlock
	stepWriteDataDone
	stepWriteDataReply
	stepWriteDataFinish

	stepPeerSend
	stepPeerReceive
	stepPeerReply
	stepPeerFinish

	stepMsg
	stepMsgReceive
	stepMsgAction
	stepMsgReply
	stepMsgFinish

	numSteps
)

// stepInfo names a step and tells if the step runs in the target module of
// the operation rather than in the module that issued it.
type stepInfo struct {
	name     string
	atTarget bool
}

var stepInfos = [numSteps]stepInfo{
	stepNone: {name: "none"},

	stepLoad:       {name: "load"},
	stepLoadLock:   {name: "load_lock"},
	stepLoadAction: {name: "load_action"},
	stepLoadMiss:   {name: "load_miss"},
	stepLoadUnlock: {name: "load_unlock"},
	stepLoadFinish: {name: "load_finish"},

	stepStore:       {name: "store"},
	stepStoreLock:   {name: "store_lock"},
	stepStoreAction: {name: "store_action"},
	stepStoreUnlock: {name: "store_unlock"},
	stepStoreFinish: {name: "store_finish"},

	stepNCStore:       {name: "nc_store"},
	stepNCStoreLock:   {name: "nc_store_lock"},
	stepNCStoreAction: {name: "nc_store_action"},
	stepNCStoreMiss:   {name: "nc_store_miss"},
	stepNCStoreUnlock: {name: "nc_store_unlock"},
	stepNCStoreMerge:  {name: "nc_store_merge"},
	stepNCStoreFinish: {name: "nc_store_finish"},

	stepMessage:       {name: "message"},
	stepMessageAction: {name: "message_action"},
	stepMessageFinish: {name: "message_finish"},

	stepFindAndLock:       {name: "find_and_lock"},
	stepFindAndLockPort:   {name: "find_and_lock_port"},
	stepFindAndLockAction: {name: "find_and_lock_action"},
	stepFindAndLockFinish: {name: "find_and_lock_finish"},

	stepReadRequest:                  {name: "read_request"},
	stepReadRequestReceive:           {name: "read_request_receive", atTarget: true},
	stepReadRequestAction:            {name: "read_request_action", atTarget: true},
	stepReadRequestUpdown:            {name: "read_request_updown", atTarget: true},
	stepReadRequestUpdownMiss:        {name: "read_request_updown_miss", atTarget: true},
	stepReadRequestUpdownFinish:      {name: "read_request_updown_finish", atTarget: true},
	stepReadRequestDownup:            {name: "read_request_downup", atTarget: true},
	stepReadRequestDownupWaitForReqs: {name: "read_request_downup_wait_for_reqs", atTarget: true},
	stepReadRequestDownupFinish:      {name: "read_request_downup_finish", atTarget: true},
	stepReadRequestReply:             {name: "read_request_reply", atTarget: true},
	stepReadRequestFinish:            {name: "read_request_finish"},

	stepWriteRequest:             {name: "write_request"},
	stepWriteRequestReceive:      {name: "write_request_receive", atTarget: true},
	stepWriteRequestAction:       {name: "write_request_action", atTarget: true},
	stepWriteRequestUpdown:       {name: "write_request_updown", atTarget: true},
	stepWriteRequestUpdownFinish: {name: "write_request_updown_finish", atTarget: true},
	stepWriteRequestDownup:       {name: "write_request_downup", atTarget: true},
	stepWriteRequestDownupFinish: {name: "write_request_downup_finish", atTarget: true},
	stepWriteRequestReply:        {name: "write_request_reply", atTarget: true},
	stepWriteRequestFinish:       {name: "write_request_finish"},

	stepWriteData:        {name: "write_data"},
	stepWriteDataReceive: {name: "write_data_receive", atTarget: true},
	stepWriteDataAction:  {name: "write_data_action", atTarget: true},
	stepWriteDataLower:   {name: "write_data_lower", atTarget: true},
	stepWriteDataBlock:   {name: "write_data_block", atTarget: true},
	stepWriteDataDone:    {name: "write_data_done", atTarget: true},
	stepWriteDataReply:   {name: "write_data_reply", atTarget: true},
	stepWriteDataFinish:  {name: "write_data_finish"},

	stepPeerSend:    {name: "peer_send"},
	stepPeerReceive: {name: "peer_receive", atTarget: true},
	stepPeerReply:   {name: "peer_reply", atTarget: true},
	stepPeerFinish:  {name: "peer_finish"},

	stepMsg:        {name: "msg"},
	stepMsgReceive: {name: "msg_receive", atTarget: true},
	stepMsgAction:  {name: "msg_action", atTarget: true},
	stepMsgReply:   {name: "msg_reply", atTarget: true},
	stepMsgFinish:  {name: "msg_finish"},
}

func (s step) String() string {
	if s < 0 || s >= numSteps {
		return "unknown"
	}

	return stepInfos[s].name
}

// where returns the module that runs the step of the operation.
func (s step) where(op *Operation) *Module {
	if s >= 0 && s < numSteps && stepInfos[s].atTarget && op.target != nil {
		return op.target
	}

	return op.mod
}
