package peer

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/daviddao/lamportsim/pkg/model"
)

// fakeNet records sends and critical-section entries without any
// concurrency, so peer internals can be exercised single-threaded.
type fakeNet struct {
	n    int
	sent []model.Message
	cs   int
}

func (f *fakeNet) Send(m model.Message) error { f.sent = append(f.sent, m); return nil }
func (f *fakeNet) CriticalSection(p *Peer)    { f.cs++ }
func (f *fakeNet) ProcessCount() int          { return f.n }

func newTestPeer(t *testing.T, id, n int) (*Peer, *fakeNet) {
	t.Helper()
	f := &fakeNet{n: n}
	return New(id, f, io.Discard), f
}

func mustMsg(t *testing.T, kind model.Kind, sender, receiver int, ts int64, n int) model.Message {
	t.Helper()
	m, err := model.New(kind, sender, receiver, ts, n)
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	return m
}

func TestRequestEnqueuesAndAcknowledges(t *testing.T) {
	p, f := newTestPeer(t, 0, 3)

	req := mustMsg(t, model.Request, 1, model.Broadcast, 5, 3).ForReceiver(0)
	if err := p.processMessage(req); err != nil {
		t.Fatalf("processMessage(REQUEST): %v", err)
	}

	if p.QueueLen() != 1 {
		t.Fatalf("queue len = %d, want 1", p.QueueLen())
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 ACKNOWLEDGE", len(f.sent))
	}
	ack := f.sent[0]
	if ack.Kind != model.Acknowledge || ack.Receiver != 1 {
		t.Fatalf("sent %v, want ACKNOWLEDGE to 1", ack)
	}
	// Happens-before: the acknowledgement carries a timestamp strictly
	// above the request's.
	if ack.Timestamp <= req.Timestamp {
		t.Fatalf("ack timestamp %d, want > %d", ack.Timestamp, req.Timestamp)
	}
	if p.ClockValue() <= req.Timestamp {
		t.Fatalf("clock %d after REQUEST@%d, want strictly greater", p.ClockValue(), req.Timestamp)
	}
}

func TestAllAcknowledgementsEnterCriticalSection(t *testing.T) {
	p, f := newTestPeer(t, 0, 3)

	if err := p.request(); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := p.processMessage(mustMsg(t, model.Acknowledge, 1, 0, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if f.cs != 0 {
		t.Fatal("entered critical section with only one acknowledgement")
	}
	if err := p.processMessage(mustMsg(t, model.Acknowledge, 2, 0, 2, 3)); err != nil {
		t.Fatal(err)
	}

	if f.cs != 1 {
		t.Fatalf("critical-section entries = %d, want 1", f.cs)
	}
	if p.permissions != 0 {
		t.Fatalf("permissions = %d after CS, want 0", p.permissions)
	}
	if p.QueueLen() != 0 {
		t.Fatalf("queue len = %d after CS, want 0", p.QueueLen())
	}

	// REQUEST then RELEASE, in that order, with RELEASE above the acks.
	if len(f.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(f.sent))
	}
	rel := f.sent[1]
	if rel.Kind != model.Release || rel.Receiver != model.Broadcast {
		t.Fatalf("second send = %v, want broadcast RELEASE", rel)
	}
	if rel.Timestamp <= 2 {
		t.Fatalf("RELEASE timestamp %d, want > 2", rel.Timestamp)
	}
}

func TestReleasePopsMatchingHead(t *testing.T) {
	p, _ := newTestPeer(t, 0, 3)
	if err := p.processMessage(mustMsg(t, model.Request, 1, model.Broadcast, 1, 3).ForReceiver(0)); err != nil {
		t.Fatal(err)
	}
	if err := p.processMessage(mustMsg(t, model.Release, 1, model.Broadcast, 4, 3).ForReceiver(0)); err != nil {
		t.Fatalf("processMessage(RELEASE): %v", err)
	}
	if p.QueueLen() != 0 {
		t.Fatalf("queue len = %d after RELEASE, want 0", p.QueueLen())
	}
}

func TestReleaseFromNonHeadRefusesToPop(t *testing.T) {
	p, _ := newTestPeer(t, 0, 3)
	if err := p.processMessage(mustMsg(t, model.Request, 1, model.Broadcast, 1, 3).ForReceiver(0)); err != nil {
		t.Fatal(err)
	}

	err := p.processMessage(mustMsg(t, model.Release, 2, model.Broadcast, 4, 3).ForReceiver(0))
	if !errors.Is(err, ErrNotQueueHead) {
		t.Fatalf("RELEASE from non-head: got %v, want ErrNotQueueHead", err)
	}
	if p.QueueLen() != 1 {
		t.Fatalf("queue len = %d, want 1 (entry must not be popped)", p.QueueLen())
	}
}

func TestReleaseUnblocksWaitingPeer(t *testing.T) {
	p, f := newTestPeer(t, 0, 3)

	// Peer 1 requested first; our own request queues behind it.
	if err := p.processMessage(mustMsg(t, model.Request, 1, model.Broadcast, 1, 3).ForReceiver(0)); err != nil {
		t.Fatal(err)
	}
	if err := p.request(); err != nil {
		t.Fatal(err)
	}
	if err := p.processMessage(mustMsg(t, model.Acknowledge, 1, 0, 5, 3)); err != nil {
		t.Fatal(err)
	}
	if err := p.processMessage(mustMsg(t, model.Acknowledge, 2, 0, 5, 3)); err != nil {
		t.Fatal(err)
	}
	if f.cs != 0 {
		t.Fatal("entered critical section while another peer heads the queue")
	}

	// Peer 1 releases: our entry becomes head and permission holds.
	if err := p.processMessage(mustMsg(t, model.Release, 1, model.Broadcast, 6, 3).ForReceiver(0)); err != nil {
		t.Fatal(err)
	}
	if f.cs != 1 {
		t.Fatalf("critical-section entries = %d, want 1 after RELEASE", f.cs)
	}
}

func TestRunCommandArmsPeer(t *testing.T) {
	p, f := newTestPeer(t, 1, 3)

	if err := p.processMessage(mustMsg(t, model.RunCommand, 0, 1, 1, 3)); err != nil {
		t.Fatal(err)
	}
	if !p.armed {
		t.Fatal("peer not armed after RUN_COMMAND")
	}

	if err := p.maybeRequest(); err != nil {
		t.Fatal(err)
	}
	if p.armed {
		t.Fatal("peer still armed after issuing its request")
	}
	if len(f.sent) != 2 {
		t.Fatalf("sent %d messages, want REQUEST + RUN_COMMAND", len(f.sent))
	}
	if f.sent[0].Kind != model.Request || f.sent[1].Kind != model.RunCommand {
		t.Fatalf("sent kinds = %v,%v, want REQUEST,RUN_COMMAND", f.sent[0].Kind, f.sent[1].Kind)
	}
	if next := f.sent[1].Receiver; next != 2 {
		t.Fatalf("RUN_COMMAND forwarded to %d, want 2", next)
	}
}

func TestArmedRequestDeferredWhileOutstanding(t *testing.T) {
	p, f := newTestPeer(t, 1, 3)
	if err := p.request(); err != nil {
		t.Fatal(err)
	}
	sent := len(f.sent)

	p.armed = true
	if err := p.maybeRequest(); err != nil {
		t.Fatal(err)
	}
	if !p.armed {
		t.Fatal("armed flag cleared while request still outstanding")
	}
	if len(f.sent) != sent {
		t.Fatalf("sent %d new messages, want 0 (request deferred)", len(f.sent)-sent)
	}
	if p.QueueLen() != 1 {
		t.Fatalf("queue len = %d, want 1 (single entry per peer)", p.QueueLen())
	}
}

func TestClockStrictlyIncreasesAcrossEvents(t *testing.T) {
	p, _ := newTestPeer(t, 0, 4)

	prev := p.ClockValue()
	for _, m := range []model.Message{
		mustMsg(t, model.Request, 1, model.Broadcast, 5, 4).ForReceiver(0),
		mustMsg(t, model.RunCommand, 3, 0, 3, 4),
		mustMsg(t, model.Request, 2, model.Broadcast, 9, 4).ForReceiver(0),
	} {
		if err := p.processMessage(m); err != nil {
			t.Fatal(err)
		}
		now := p.ClockValue()
		if now <= prev {
			t.Fatalf("clock went %d -> %d across events, want strict increase", prev, now)
		}
		if now <= m.Timestamp {
			t.Fatalf("clock %d after message @%d, want strictly greater", now, m.Timestamp)
		}
		prev = now
	}
}

func TestDeliverAfterStopDiscards(t *testing.T) {
	p, _ := newTestPeer(t, 1, 3)
	p.Stop()
	p.Deliver(mustMsg(t, model.RunCommand, 0, 1, 1, 3))
	if _, ok := p.pop(); ok {
		t.Fatal("message delivered after Stop should be discarded")
	}
}

// lockedBuffer makes a bytes.Buffer safe for the peer goroutine plus the
// test goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunExitsOnStopAndReportsQueueSize(t *testing.T) {
	f := &fakeNet{n: 3}
	trace := &lockedBuffer{}
	p := New(1, f, trace)
	p.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run() }()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := trace.String()
	if !strings.Contains(out, "Process 1 stopped! Size of process queue at the end: 0") {
		t.Fatalf("stop line missing from trace: %q", out)
	}
}

func TestTieBreakWithPreloadedClocks(t *testing.T) {
	// Peers 1 and 2 start from identical preloaded ticks, so their
	// requests carry the same timestamp and only the id breaks the tie.
	net1 := &fakeNet{n: 3}
	p1 := New(1, net1, io.Discard)
	p1.SeedClock(4)
	if err := p1.request(); err != nil {
		t.Fatal(err)
	}
	net2 := &fakeNet{n: 3}
	p2 := New(2, net2, io.Discard)
	p2.SeedClock(4)
	if err := p2.request(); err != nil {
		t.Fatal(err)
	}
	req1, req2 := net1.sent[0], net2.sent[0]
	if req1.Timestamp != req2.Timestamp {
		t.Fatalf("request timestamps %d vs %d, want equal", req1.Timestamp, req2.Timestamp)
	}

	// An observer receives both; the lower id must head its queue, so a
	// RELEASE from peer 2 is rejected until peer 1 has released.
	obs, _ := newTestPeer(t, 0, 3)
	if err := obs.processMessage(req1.ForReceiver(0)); err != nil {
		t.Fatal(err)
	}
	if err := obs.processMessage(req2.ForReceiver(0)); err != nil {
		t.Fatal(err)
	}
	rel2 := mustMsg(t, model.Release, 2, model.Broadcast, 9, 3)
	if err := obs.processMessage(rel2.ForReceiver(0)); !errors.Is(err, ErrNotQueueHead) {
		t.Fatalf("RELEASE from peer 2 while peer 1 heads the queue: got %v, want ErrNotQueueHead", err)
	}
	rel1 := mustMsg(t, model.Release, 1, model.Broadcast, 9, 3)
	if err := obs.processMessage(rel1.ForReceiver(0)); err != nil {
		t.Fatalf("RELEASE from peer 1: %v", err)
	}
	if head, ok := obs.queue.Head(); !ok || head.Peer != 2 {
		t.Fatalf("head after peer 1 released = %v,%v, want peer 2", head, ok)
	}
}
