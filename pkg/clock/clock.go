// Package clock implements a Lamport logical clock.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (internal event): Before any internal event, increment the clock.
//	IR2 (message receipt): On receiving a message with timestamp t,
//	     set the clock to max(own, t) + 1.
//
// The total order function TotalOrderLess breaks ties deterministically
// using peer ids, giving every peer the same ordering without
// coordination.
//
// Note: Clock is not goroutine-safe. Each peer owns exactly one Clock and
// mutates it only from its own processing loop, so no locking is needed.
package clock

// Clock is a Lamport logical clock. Not goroutine-safe; see package doc.
type Clock struct {
	ts int64
}

// Tick implements IR1: increment the clock before an internal event.
// Returns the new timestamp.
func (c *Clock) Tick() int64 {
	c.ts++
	return c.ts
}

// Observe merges an incoming timestamp without advancing: the clock becomes
// max(own, observed). The merge can never move the clock backwards.
func (c *Clock) Observe(observed int64) int64 {
	if observed > c.ts {
		c.ts = observed
	}
	return c.ts
}

// Receive implements IR2: on receiving a message with timestamp received,
// set the clock to max(own, received) + 1. Equivalent to Observe followed
// by Tick. Returns the new timestamp.
func (c *Clock) Receive(received int64) int64 {
	c.Observe(received)
	return c.Tick()
}

// Value returns the current clock value without advancing it.
func (c *Clock) Value() int64 { return c.ts }

// Set initializes the clock to a specific value. Used by tests that need
// peers to start from preloaded ticks.
func (c *Clock) Set(v int64) { c.ts = v }

// TotalOrderLess defines a deterministic total order over events.
// Given two events with timestamps tsA and tsB from peers peerA and
// peerB, event A is "less" (has priority) if:
//
//	tsA < tsB, or
//	tsA == tsB and peerA < peerB
//
// This is the standard Lamport total order used for mutual exclusion.
func TotalOrderLess(tsA int64, peerA int, tsB int64, peerB int) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	return peerA < peerB
}
