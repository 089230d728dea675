package coherence

// ModuleKind tells if a module is a cache or the main memory at the bottom of
// the hierarchy.
type ModuleKind int

// The kinds of modules.
const (
	ModuleKindCache ModuleKind = iota
	ModuleKindMainMemory
)

func (k ModuleKind) String() string {
	if k == ModuleKindMainMemory {
		return "main_memory"
	}

	return "cache"
}

// Direction is the direction that a request travels in the hierarchy.
type Direction int

// Up-down requests go from a requester toward the memory. Down-up requests
// go from a lower module to the modules above it.
const (
	DirectionNone Direction = iota
	DirectionUpDown
	DirectionDownUp
)

func (d Direction) String() string {
	switch d {
	case DirectionUpDown:
		return "up_down"
	case DirectionDownUp:
		return "down_up"
	default:
		return "none"
	}
}

// ReplyKind is the kind of the reply a request sends back. The kinds are
// ordered: when several sub-requests set a reply, the largest kind wins.
type ReplyKind int

// The reply kinds, in increasing priority.
const (
	ReplyNone ReplyKind = iota
	ReplyAck
	ReplyAckData
	ReplyAckDataSentToPeer
	ReplyAckError
)

var replyKindNames = [...]string{
	ReplyNone:              "none",
	ReplyAck:               "ack",
	ReplyAckData:           "ack_data",
	ReplyAckDataSentToPeer: "ack_data_sent_to_peer",
	ReplyAckError:          "ack_error",
}

func (k ReplyKind) String() string {
	if k < 0 || int(k) >= len(replyKindNames) {
		return "unknown"
	}

	return replyKindNames[k]
}

// AccessKind is the kind of a client access.
type AccessKind int

// The client access kinds. The zero value marks internal operations.
const (
	AccessNone AccessKind = iota
	AccessLoad
	AccessStore
	AccessNCStore
	AccessMessage
)

func (k AccessKind) String() string {
	switch k {
	case AccessLoad:
		return "load"
	case AccessStore:
		return "store"
	case AccessNCStore:
		return "nc_store"
	case AccessMessage:
		return "message"
	default:
		return "none"
	}
}

// IsWrite tells if the access modifies data.
func (k AccessKind) IsWrite() bool {
	return k == AccessStore || k == AccessNCStore
}

// MessageKind is the kind of a control message.
type MessageKind int

// The control message kinds.
const (
	MessageNone MessageKind = iota
	MessageClearOwner
)

func (k MessageKind) String() string {
	switch k {
	case MessageNone:
		return "none"
	case MessageClearOwner:
		return "clear_owner"
	default:
		return "unknown"
	}
}

// Sizes of the messages that carry no data.
const (
	ctrlMsgSize = 8
)
