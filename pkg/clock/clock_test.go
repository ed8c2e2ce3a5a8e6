package clock

import "testing"

func TestTickMonotonicallyIncreases(t *testing.T) {
	var c Clock
	prev := c.Value()
	for i := 0; i < 100; i++ {
		ts := c.Tick()
		if ts <= prev {
			t.Fatalf("Tick %d: got %d, want > %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestTickStartsFromZero(t *testing.T) {
	var c Clock
	if v := c.Value(); v != 0 {
		t.Fatalf("new clock: got %d, want 0", v)
	}
	if ts := c.Tick(); ts != 1 {
		t.Fatalf("first Tick: got %d, want 1", ts)
	}
}

func TestObserveTakesMax(t *testing.T) {
	var c Clock
	c.Set(5)
	if v := c.Observe(10); v != 10 {
		t.Fatalf("Observe(10) from 5: got %d, want 10", v)
	}
	// Lower timestamps never move the clock backwards.
	if v := c.Observe(3); v != 10 {
		t.Fatalf("Observe(3) from 10: got %d, want 10", v)
	}
}

func TestReceiveMaxPlusOne(t *testing.T) {
	var c Clock
	c.Set(5)

	// Receive a higher timestamp: should set to max(5, 10)+1 = 11
	ts := c.Receive(10)
	if ts != 11 {
		t.Fatalf("Receive(10) from 5: got %d, want 11", ts)
	}

	// Receive a lower timestamp: should set to max(11, 3)+1 = 12
	ts = c.Receive(3)
	if ts != 12 {
		t.Fatalf("Receive(3) from 11: got %d, want 12", ts)
	}
}

func TestReceiveStrictlyAboveMessage(t *testing.T) {
	// After handling a message with timestamp m, the clock must be
	// strictly greater than m.
	var c Clock
	for _, m := range []int64{0, 1, 7, 100} {
		if ts := c.Receive(m); ts <= m {
			t.Fatalf("Receive(%d): got %d, want > %d", m, ts, m)
		}
	}
}

func TestSetThenTick(t *testing.T) {
	var c Clock
	c.Set(100)
	if ts := c.Tick(); ts != 101 {
		t.Fatalf("Tick after Set(100): got %d, want 101", ts)
	}
}

func TestTotalOrderLess_DifferentTimestamps(t *testing.T) {
	if !TotalOrderLess(1, 2, 2, 1) {
		t.Fatal("expected (1,2) < (2,1)")
	}
	if TotalOrderLess(2, 1, 1, 2) {
		t.Fatal("expected (2,1) NOT < (1,2)")
	}
}

func TestTotalOrderLess_SameTimestamp_TieBreakByID(t *testing.T) {
	if !TotalOrderLess(5, 0, 5, 1) {
		t.Fatal("expected (5,0) < (5,1)")
	}
	if TotalOrderLess(5, 1, 5, 0) {
		t.Fatal("expected (5,1) NOT < (5,0)")
	}
}

func TestTotalOrderLess_Equal(t *testing.T) {
	if TotalOrderLess(5, 3, 5, 3) {
		t.Fatal("expected (5,3) NOT < (5,3) — strict less")
	}
}

func TestTotalOrderLess_Transitivity(t *testing.T) {
	// a < b < c => a < c
	a := TotalOrderLess(1, 2, 2, 1)
	b := TotalOrderLess(2, 1, 2, 2)
	c := TotalOrderLess(1, 2, 2, 2)
	if !a || !b || !c {
		t.Fatal("transitivity violated")
	}
}
