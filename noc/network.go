// Package noc models the interconnects that carry coherence messages between
// the memory modules. A network moves sized messages between its nodes with a
// fixed latency and a per-node output bandwidth.
package noc

import (
	"fmt"
	"log"

	"github.com/sarchlab/nmoesi/sim/hooking"
	"github.com/sarchlab/nmoesi/sim/id"
	"github.com/sarchlab/nmoesi/sim/timing"
)

// HookPosMsgSend marks a message entering the network.
var HookPosMsgSend = &hooking.HookPos{Name: "MsgSend"}

// HookPosMsgDeliver marks a message arriving at its destination node.
var HookPosMsgDeliver = &hooking.HookPos{Name: "MsgDeliver"}

// A Msg is a message in flight between two nodes of the same network.
type Msg struct {
	ID          string
	Src, Dst    *Node
	Size        int
	SendTime    timing.VTimeInSec
	DeliverTime timing.VTimeInSec

	delivered   bool
	received    bool
	onDelivered func(msg *Msg)
}

// Delivered tells if the message has arrived at the destination.
func (m *Msg) Delivered() bool {
	return m.delivered
}

// Received tells if the destination has consumed the message.
func (m *Msg) Received() bool {
	return m.received
}

// A Node is an attachment point of a network. Every memory module owns one
// node on the network above it and one node on the network below it.
type Node struct {
	Name  string
	Index int

	net           *Network
	outputFreeAt  uint64
	msgsSent      uint64
	bytesSent     uint64
	msgsReceived  uint64
	bytesReceived uint64
}

// Network returns the network that the node is attached to.
func (n *Node) Network() *Network {
	return n.net
}

// NumMsgsSent returns the number of messages sent from the node.
func (n *Node) NumMsgsSent() uint64 {
	return n.msgsSent
}

// NumBytesSent returns the number of bytes sent from the node.
func (n *Node) NumBytesSent() uint64 {
	return n.bytesSent
}

// NumMsgsReceived returns the number of messages the node has received.
func (n *Node) NumMsgsReceived() uint64 {
	return n.msgsReceived
}

// NumBytesReceived returns the number of bytes the node has received.
func (n *Node) NumBytesReceived() uint64 {
	return n.bytesReceived
}

// Network delivers messages between its nodes.
type Network struct {
	hooking.HookableBase

	name      string
	engine    timing.Engine
	freq      timing.Freq
	latency   int
	bandwidth int

	nodes       []*Node
	nodeByName  map[string]*Node
	numInflight int
	msgsSent    uint64
	bytesSent   uint64
}

// Name returns the name of the network.
func (n *Network) Name() string {
	return n.name
}

// AddNode attaches a new node to the network. Node indices follow the order
// of attachment.
func (n *Network) AddNode(name string) *Node {
	if _, found := n.nodeByName[name]; found {
		log.Panicf("node %s already exists in network %s", name, n.name)
	}

	node := &Node{
		Name:  name,
		Index: len(n.nodes),
		net:   n,
	}

	n.nodes = append(n.nodes, node)
	n.nodeByName[name] = node

	return node
}

// Nodes returns all the nodes attached to the network.
func (n *Network) Nodes() []*Node {
	return n.nodes
}

// NodeByIndex returns the node with the given index.
func (n *Network) NodeByIndex(index int) *Node {
	if index < 0 || index >= len(n.nodes) {
		log.Panicf("network %s has no node %d", n.name, index)
	}

	return n.nodes[index]
}

// Send injects a message of the given size from src to dst. The callback runs
// when the message arrives at dst. Messages leaving the same node are
// serialized on the node's output bandwidth.
func (n *Network) Send(
	src, dst *Node,
	size int,
	onDelivered func(msg *Msg),
) *Msg {
	n.mustOwn(src)
	n.mustOwn(dst)

	if size <= 0 {
		log.Panicf("message size must be positive, got %d", size)
	}

	now := n.engine.Now()
	nowCycle := n.freq.Cycle(n.freq.ThisTick(now))

	departure := nowCycle
	if src.outputFreeAt > departure {
		departure = src.outputFreeAt
	}

	serialization := uint64(1)
	if n.bandwidth > 0 {
		serialization = uint64((size + n.bandwidth - 1) / n.bandwidth)
	}

	src.outputFreeAt = departure + serialization
	arrival := departure + serialization + uint64(n.latency)

	msg := &Msg{
		ID:          id.Generate(),
		Src:         src,
		Dst:         dst,
		Size:        size,
		SendTime:    now,
		DeliverTime: timing.VTimeInSec(float64(arrival) / float64(n.freq)),
		onDelivered: onDelivered,
	}

	src.msgsSent++
	src.bytesSent += uint64(size)
	n.msgsSent++
	n.bytesSent += uint64(size)
	n.numInflight++

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    HookPosMsgSend,
		Item:   msg,
	})

	n.engine.Schedule(&deliverEvent{
		EventBase: timing.NewEventBase(msg.DeliverTime, n),
		msg:       msg,
	})

	return msg
}

// Receive consumes a delivered message at its destination node.
func (n *Network) Receive(node *Node, msg *Msg) {
	if msg.Dst != node {
		panic(fmt.Sprintf("message %s is for node %s, not %s",
			msg.ID, msg.Dst.Name, node.Name))
	}

	if !msg.delivered {
		panic(fmt.Sprintf("message %s has not arrived", msg.ID))
	}

	if msg.received {
		panic(fmt.Sprintf("message %s is received twice", msg.ID))
	}

	msg.received = true
	node.msgsReceived++
	node.bytesReceived += uint64(msg.Size)
}

// Handle delivers messages.
func (n *Network) Handle(e timing.Event) error {
	evt, ok := e.(*deliverEvent)
	if !ok {
		log.Panicf("network %s cannot handle event %T", n.name, e)
	}

	msg := evt.msg
	msg.delivered = true
	n.numInflight--

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    HookPosMsgDeliver,
		Item:   msg,
	})

	if msg.onDelivered != nil {
		msg.onDelivered(msg)
	}

	return nil
}

// NumInflightMsgs returns the number of messages sent but not delivered.
func (n *Network) NumInflightMsgs() int {
	return n.numInflight
}

// NumMsgsSent returns the number of messages ever sent on the network.
func (n *Network) NumMsgsSent() uint64 {
	return n.msgsSent
}

// NumBytesSent returns the number of bytes ever sent on the network.
func (n *Network) NumBytesSent() uint64 {
	return n.bytesSent
}

func (n *Network) mustOwn(node *Node) {
	if node == nil || node.net != n {
		panic(fmt.Sprintf("node does not belong to network %s", n.name))
	}
}

type deliverEvent struct {
	*timing.EventBase
	msg *Msg
}
