// Package model defines the core domain types for the simulator.
//
// A Message is the only thing that crosses peer boundaries. It is a plain
// value: once constructed it is never mutated, and broadcast fan-out works
// by stamping per-receiver copies rather than rewriting the template.
package model

import (
	"fmt"

	"github.com/daviddao/lamportsim/pkg/clock"
)

// Kind enumerates the protocol message types.
type Kind string

const (
	// Request asks every other peer for permission to enter the critical
	// section. Broadcast.
	Request Kind = "REQUEST"

	// Acknowledge grants permission to a requesting peer. Unicast.
	Acknowledge Kind = "ACKNOWLEDGE"

	// Release announces that the sender has left the critical section and
	// its queue entry can be dropped. Broadcast.
	Release Kind = "RELEASE"

	// RunCommand tells the receiver to issue its own request on the next
	// loop turn. It is a harness token, not part of the algorithm. Unicast.
	RunCommand Kind = "RUN_COMMAND"
)

// Broadcast is the receiver sentinel carried by REQUEST and RELEASE
// templates before fan-out stamps a concrete receiver onto each copy.
const Broadcast = -1

// Message is an immutable protocol message. Timestamp is the sender's
// Lamport clock value at send time.
type Message struct {
	Kind      Kind
	Sender    int
	Receiver  int
	Timestamp int64
}

// New validates and constructs a message. Sender must be a valid peer id
// in [0, peerCount). Broadcast kinds (REQUEST, RELEASE) must carry the
// Broadcast sentinel as receiver; unicast kinds (ACKNOWLEDGE, RUN_COMMAND)
// must name a concrete receiver in range.
func New(kind Kind, sender, receiver int, timestamp int64, peerCount int) (Message, error) {
	if sender < 0 || sender >= peerCount {
		return Message{}, fmt.Errorf("message: sender id %d out of range [0,%d)", sender, peerCount)
	}
	switch kind {
	case Request, Release:
		if receiver != Broadcast {
			return Message{}, fmt.Errorf("message: %s is a broadcast, got receiver %d", kind, receiver)
		}
	case Acknowledge, RunCommand:
		if receiver < 0 || receiver >= peerCount {
			return Message{}, fmt.Errorf("message: receiver id %d out of range [0,%d)", receiver, peerCount)
		}
	default:
		return Message{}, fmt.Errorf("message: unknown kind %q", kind)
	}
	return Message{Kind: kind, Sender: sender, Receiver: receiver, Timestamp: timestamp}, nil
}

// IsBroadcast reports whether the message kind fans out to all other peers.
func (m Message) IsBroadcast() bool {
	return m.Kind == Request || m.Kind == Release
}

// ForReceiver returns the per-receiver delivery copy of a broadcast
// template: the same message with a concrete receiver id stamped on.
func (m Message) ForReceiver(receiver int) Message {
	m.Receiver = receiver
	return m
}

// String renders the message in its log form: kind,sender,receiver,timestamp.
func (m Message) String() string {
	return fmt.Sprintf("%s,%d,%d,%d", m.Kind, m.Sender, m.Receiver, m.Timestamp)
}

// Less orders messages by extended Lamport time: timestamp first, sender
// id as tie-break.
func (m Message) Less(other Message) bool {
	return clock.TotalOrderLess(m.Timestamp, m.Sender, other.Timestamp, other.Sender)
}

// Entry is a request-queue entry: the id of a requesting peer and the
// timestamp its REQUEST carried.
type Entry struct {
	Peer      int
	Timestamp int64
}

// Less orders entries by extended Lamport time.
func (e Entry) Less(other Entry) bool {
	return clock.TotalOrderLess(e.Timestamp, e.Peer, other.Timestamp, other.Peer)
}
