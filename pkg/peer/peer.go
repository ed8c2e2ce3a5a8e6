// Package peer implements the per-process state machine of Lamport's
// distributed mutual-exclusion algorithm.
//
// Each peer owns a logical clock, a request queue and an acknowledgement
// counter, and communicates with the other peers only through the
// Network interface. All peer state is mutated from the peer's own
// processing loop; the inbox is the single synchronization point with
// the outside (Deliver may run on any goroutine).
package peer

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/daviddao/lamportsim/pkg/clock"
	"github.com/daviddao/lamportsim/pkg/model"
	"github.com/daviddao/lamportsim/pkg/queue"
)

// ErrNotQueueHead reports a RELEASE whose sender does not match the head
// of the receiver's request queue. It falsifies the algorithm's
// convergence premise, so the simulation aborts on it.
var ErrNotQueueHead = errors.New("peer: RELEASE sender is not the queue head")

// Network is the transport surface a peer needs: message dispatch, the
// critical-section hook, and the peer population size.
type Network interface {
	// Send dispatches a message. Broadcast kinds fan out to every other
	// peer; unicast kinds go to the named receiver.
	Send(m model.Message) error

	// CriticalSection runs the shared critical-section hook. The caller
	// must hold permission under the protocol; the hook itself takes no
	// lock.
	CriticalSection(p *Peer)

	// ProcessCount returns the total number of peers N.
	ProcessCount() int
}

// Peer is one process of the simulation. Create with New, hand messages
// in with Deliver, and drive it with Run on its own goroutine.
type Peer struct {
	id    int
	net   Network
	trace io.Writer

	clock       clock.Clock
	queue       *queue.RequestQueue
	permissions int
	armed       bool

	inboxMu sync.Mutex
	inbox   []model.Message

	stopped atomic.Bool
}

// New constructs a peer with the given id. The trace writer receives the
// per-action console lines; it must be safe for concurrent use across
// peers.
func New(id int, net Network, trace io.Writer) *Peer {
	return &Peer{
		id:    id,
		net:   net,
		trace: trace,
		queue: queue.New(),
	}
}

// ID returns the peer's immutable id.
func (p *Peer) ID() int { return p.id }

// ClockValue returns the current logical-clock reading.
func (p *Peer) ClockValue() int64 { return p.clock.Value() }

// QueueLen returns the number of pending request-queue entries.
func (p *Peer) QueueLen() int { return p.queue.Len() }

// SeedClock preloads the clock before Run starts. Used by scenarios that
// need several peers to issue requests at identical timestamps.
func (p *Peer) SeedClock(v int64) { p.clock.Set(v) }

// Deliver hands an incoming message to the peer. It appends to the inbox
// and returns immediately; the clock is not touched here because delivery
// is not yet an event. Safe to call from any goroutine. Messages arriving
// after Stop are discarded.
func (p *Peer) Deliver(m model.Message) {
	if p.stopped.Load() {
		return
	}
	p.inboxMu.Lock()
	p.inbox = append(p.inbox, m)
	p.inboxMu.Unlock()
}

// Stop tells the processing loop to exit on its next check.
func (p *Peer) Stop() { p.stopped.Store(true) }

// Run is the peer's processing loop. Each turn handles at most one inbox
// message, then issues a pending request if the peer is armed, then checks
// for stop. Peer 0 bootstraps the simulation with the first REQUEST and
// the first RUN_COMMAND. Returns a non-nil error only on a protocol
// invariant violation.
func (p *Peer) Run() error {
	if p.id == 0 {
		if err := p.request(); err != nil {
			return err
		}
		if err := p.sendRunCommand(); err != nil {
			return err
		}
	}

	for {
		m, ok := p.pop()
		if ok {
			if err := p.processMessage(m); err != nil {
				return err
			}
		}

		if p.armed {
			if err := p.maybeRequest(); err != nil {
				return err
			}
		}

		if p.stopped.Load() {
			fmt.Fprintf(p.trace, "Time %d: Process %d stopped! Size of process queue at the end: %d\n",
				p.clock.Value(), p.id, p.queue.Len())
			return nil
		}

		if !ok {
			runtime.Gosched()
		}
	}
}

func (p *Peer) pop() (model.Message, bool) {
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()
	if len(p.inbox) == 0 {
		return model.Message{}, false
	}
	m := p.inbox[0]
	p.inbox = p.inbox[1:]
	return m, true
}

// processMessage dispatches one message. Every receipt first merges the
// message timestamp into the clock and ticks it (IR2), so the clock ends
// strictly above the timestamp.
func (p *Peer) processMessage(m model.Message) error {
	ts := p.clock.Receive(m.Timestamp)

	switch m.Kind {
	case model.RunCommand:
		p.printAction(m.Kind, ts, false)
		p.armed = true

	case model.Request:
		p.printAction(m.Kind, ts, false)
		if err := p.queue.Push(model.Entry{Peer: m.Sender, Timestamp: m.Timestamp}); err != nil {
			return fmt.Errorf("peer %d: REQUEST from %d: %w", p.id, m.Sender, err)
		}
		ack, err := model.New(model.Acknowledge, p.id, m.Sender, p.clock.Value(), p.net.ProcessCount())
		if err != nil {
			return fmt.Errorf("peer %d: %w", p.id, err)
		}
		if err := p.net.Send(ack); err != nil {
			return err
		}
		p.printAction(model.Acknowledge, p.clock.Value(), true)

	case model.Acknowledge:
		p.printAction(m.Kind, ts, false)
		p.permissions++
		return p.checkPermission()

	case model.Release:
		head, ok := p.queue.Head()
		if !ok || head.Peer != m.Sender {
			return fmt.Errorf("peer %d: RELEASE from %d: %w", p.id, m.Sender, ErrNotQueueHead)
		}
		p.queue.Pop()
		if next, ok := p.queue.Head(); ok && next.Peer == p.id {
			return p.checkPermission()
		}

	default:
		return fmt.Errorf("peer %d: unknown message kind %q", p.id, m.Kind)
	}
	return nil
}

// maybeRequest issues the armed request and forwards the RUN_COMMAND
// token. If this peer's previous request is still in the queue, the new
// one is deferred (the peer stays armed) so the queue never holds two
// entries for the same peer.
func (p *Peer) maybeRequest() error {
	if p.queue.Contains(p.id) {
		return nil
	}
	if err := p.request(); err != nil {
		return err
	}
	if err := p.sendRunCommand(); err != nil {
		return err
	}
	p.armed = false
	return nil
}

// request ticks the clock, enqueues the peer's own entry, and broadcasts
// the REQUEST carrying that timestamp.
func (p *Peer) request() error {
	ts := p.clock.Tick()
	if err := p.queue.Push(model.Entry{Peer: p.id, Timestamp: ts}); err != nil {
		return fmt.Errorf("peer %d: own request: %w", p.id, err)
	}
	req, err := model.New(model.Request, p.id, model.Broadcast, ts, p.net.ProcessCount())
	if err != nil {
		return fmt.Errorf("peer %d: %w", p.id, err)
	}
	if err := p.net.Send(req); err != nil {
		return err
	}
	p.printAction(model.Request, ts, true)
	return nil
}

// sendRunCommand forwards the simulation token to the next peer in the
// ring, carrying the current clock value.
func (p *Peer) sendRunCommand() error {
	next := (p.id + 1) % p.net.ProcessCount()
	cmd, err := model.New(model.RunCommand, p.id, next, p.clock.Value(), p.net.ProcessCount())
	if err != nil {
		return fmt.Errorf("peer %d: %w", p.id, err)
	}
	if err := p.net.Send(cmd); err != nil {
		return err
	}
	p.printAction(model.RunCommand, p.clock.Value(), true)
	return nil
}

// checkPermission evaluates the permission predicate: all other peers
// have acknowledged the latest request and this peer's entry is the queue
// head. When both hold, the peer runs the critical-section hook, resets
// the counter, broadcasts RELEASE and drops its own entry.
func (p *Peer) checkPermission() error {
	head, ok := p.queue.Head()
	if !ok || head.Peer != p.id || p.permissions != p.net.ProcessCount()-1 {
		return nil
	}

	p.clock.Tick()
	p.net.CriticalSection(p)

	p.permissions = 0
	rel, err := model.New(model.Release, p.id, model.Broadcast, p.clock.Value(), p.net.ProcessCount())
	if err != nil {
		return fmt.Errorf("peer %d: %w", p.id, err)
	}
	if err := p.net.Send(rel); err != nil {
		return err
	}
	p.queue.Pop()
	p.printAction(model.Release, p.clock.Value(), true)
	return nil
}

func (p *Peer) printAction(kind model.Kind, timestamp int64, send bool) {
	verb := "received"
	if send {
		verb = "send"
	}
	fmt.Fprintf(p.trace, "Time %d: Process %d %s %s\n", timestamp, p.id, verb, kind)
}
