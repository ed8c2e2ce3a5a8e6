// Package transport wires the peers together: it fans out broadcasts,
// delivers unicasts, keeps the audit log of every delivered copy, owns
// the shared critical-section state, and runs the simulation lifecycle.
//
// The transport is deliberately a trivial delivery layer. It never
// schedules peers and never locks the critical section; mutual exclusion
// is supplied by the protocol running in the peers.
package transport

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/daviddao/lamportsim/pkg/clock"
	"github.com/daviddao/lamportsim/pkg/model"
	"github.com/daviddao/lamportsim/pkg/peer"
)

// Config parameterizes a simulation.
type Config struct {
	// Peers is the process count N. Must be at least 2.
	Peers int

	// Duration is the time horizon in logical-clock ticks. Any send whose
	// timestamp reaches it terminates the simulation. Must be positive.
	Duration int64

	// Trace receives the per-action console lines. Defaults to io.Discard.
	// The transport serializes writes, so any writer works.
	Trace io.Writer

	// Critical optionally replaces the default critical-section routine
	// (the shared-integer mutation). The transport guarantees nothing
	// about this hook beyond what the protocol provides: at most one peer
	// inside at a time.
	Critical func(p *peer.Peer)
}

// Transport is the in-process network for one simulation run.
type Transport struct {
	peers    []*peer.Peer
	duration int64
	critical func(p *peer.Peer)

	terminated atomic.Bool

	auditMu sync.Mutex
	audit   []model.Message

	// criticalInt and opCount are intentionally unguarded: the protocol
	// guarantees at most one peer executes the critical section at a
	// time, and the race detector verifies exactly that.
	criticalInt int
	opCount     int

	opsMu sync.Mutex
	ops   []model.Operation

	failMu  sync.Mutex
	failure error
}

// New validates the configuration and creates the transport with its
// peers. Peers are created stopped-free with zeroed clocks; call Run to
// start the simulation.
func New(cfg Config) (*Transport, error) {
	if cfg.Peers < 2 {
		return nil, fmt.Errorf("transport: need at least 2 peers, got %d", cfg.Peers)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("transport: duration must be positive, got %d", cfg.Duration)
	}
	trace := cfg.Trace
	if trace == nil {
		trace = io.Discard
	}

	t := &Transport{
		duration:    cfg.Duration,
		critical:    cfg.Critical,
		criticalInt: 10,
	}
	shared := &syncWriter{w: trace}
	for i := 0; i < cfg.Peers; i++ {
		t.peers = append(t.peers, peer.New(i, t, shared))
	}
	return t, nil
}

// ProcessCount returns the total peer count N.
func (t *Transport) ProcessCount() int { return len(t.peers) }

// Peers returns the transport's peers, indexed by id.
func (t *Transport) Peers() []*peer.Peer { return t.peers }

// Send dispatches a message. The time-horizon gate comes first: a
// timestamp at or past the duration stops every peer and delivers
// nothing. Broadcast kinds fan out one stamped copy per receiver; unicast
// kinds deliver a single copy. Every delivered copy is appended to the
// audit log. A sender or receiver id outside the peer range is a protocol
// bug and returns an error.
func (t *Transport) Send(m model.Message) error {
	if t.terminated.Load() {
		return nil
	}
	if m.Timestamp >= t.duration {
		t.terminate()
		return nil
	}
	if m.Sender < 0 || m.Sender >= len(t.peers) {
		return fmt.Errorf("transport: sender id %d out of range [0,%d)", m.Sender, len(t.peers))
	}

	if m.IsBroadcast() {
		for _, q := range t.peers {
			if q.ID() == m.Sender {
				continue
			}
			cp := m.ForReceiver(q.ID())
			t.appendAudit(cp)
			q.Deliver(cp)
		}
		return nil
	}

	if m.Receiver < 0 || m.Receiver >= len(t.peers) {
		return fmt.Errorf("transport: receiver id %d out of range [0,%d)", m.Receiver, len(t.peers))
	}
	t.appendAudit(m)
	t.peers[m.Receiver].Deliver(m)
	return nil
}

// CriticalSection runs the critical-section hook for the calling peer.
// The default routine mutates the shared integer by the peer's id parity
// and records the operation.
func (t *Transport) CriticalSection(p *peer.Peer) {
	if t.critical != nil {
		t.critical(p)
		return
	}

	before := t.criticalInt
	if p.ID()%2 == 0 {
		t.criticalInt++
	} else {
		t.criticalInt--
	}
	op := model.Operation{Seq: t.opCount, Peer: p.ID(), From: before, To: t.criticalInt}
	t.opCount++

	t.opsMu.Lock()
	t.ops = append(t.ops, op)
	t.opsMu.Unlock()
}

// Run starts every peer loop on its own goroutine and blocks until all of
// them have exited. Returns the first protocol invariant violation, if
// any occurred; a normal time-horizon termination returns nil.
func (t *Transport) Run() error {
	var wg sync.WaitGroup
	for _, p := range t.peers {
		wg.Add(1)
		go func(p *peer.Peer) {
			defer wg.Done()
			if err := p.Run(); err != nil {
				t.fail(err)
			}
		}(p)
	}
	wg.Wait()

	t.failMu.Lock()
	defer t.failMu.Unlock()
	return t.failure
}

// Audit returns the delivered messages sorted by extended Lamport time.
// The sort is stable, so copies sharing (timestamp, sender) keep their
// delivery order.
func (t *Transport) Audit() []model.Message {
	t.auditMu.Lock()
	out := make([]model.Message, len(t.audit))
	copy(out, t.audit)
	t.auditMu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return clock.TotalOrderLess(out[i].Timestamp, out[i].Sender, out[j].Timestamp, out[j].Sender)
	})
	return out
}

// Operations returns the recorded critical-section operations in entry
// order.
func (t *Transport) Operations() []model.Operation {
	t.opsMu.Lock()
	defer t.opsMu.Unlock()
	out := make([]model.Operation, len(t.ops))
	copy(out, t.ops)
	return out
}

// CriticalInt returns the shared integer's current value. Only meaningful
// after Run has returned.
func (t *Transport) CriticalInt() int { return t.criticalInt }

// WriteMessageLog writes the audit log as CSV in extended Lamport order.
func (t *Transport) WriteMessageLog(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "messageType,senderId,receiverId,timestamp"); err != nil {
		return fmt.Errorf("write message log: %w", err)
	}
	for _, m := range t.Audit() {
		if _, err := fmt.Fprintln(w, m.String()); err != nil {
			return fmt.Errorf("write message log: %w", err)
		}
	}
	return nil
}

// WriteCriticalSectionLog writes the critical-section operations log.
func (t *Transport) WriteCriticalSectionLog(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Operations at critical section:"); err != nil {
		return fmt.Errorf("write critical section log: %w", err)
	}
	for _, op := range t.Operations() {
		if _, err := fmt.Fprintln(w, op.String()); err != nil {
			return fmt.Errorf("write critical section log: %w", err)
		}
	}
	return nil
}

// terminate stops all peers exactly once. No message is delivered after
// the horizon gate trips.
func (t *Transport) terminate() {
	if !t.terminated.CompareAndSwap(false, true) {
		return
	}
	for _, p := range t.peers {
		p.Stop()
	}
}

// fail records the first protocol failure and tears the simulation down.
func (t *Transport) fail(err error) {
	t.failMu.Lock()
	if t.failure == nil {
		t.failure = err
	}
	t.failMu.Unlock()
	t.terminate()
}

func (t *Transport) appendAudit(m model.Message) {
	t.auditMu.Lock()
	t.audit = append(t.audit, m)
	t.auditMu.Unlock()
}

// syncWriter serializes trace writes from all peer goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
