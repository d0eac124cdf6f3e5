package cia

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var cmpTimer = cmp.AllowUnexported(timer{})

// stepTo is the reference implementation of advanceTo: one cycle at a time.
func stepTo(t *timer, clk int64) int {
	n := 0
	for t.clk < clk {
		if t.step() {
			n++
		}
	}
	return n
}

const steadyContinuous = tsStart | tsPhi2 | tsCount2 | tsCount3
const steadyOneShot = steadyContinuous | tsOneShot | tsOneShot0

func TestAdvanceMatchesStepping(t *testing.T) {
	counters := []uint16{0, 1, 2, 5, 200}
	latches := []uint16{0, 1, 3, 7}
	deltas := []int64{0, 1, 2, 3, 7, 50, 300}

	for s := range tsTableSize {
		for _, cnt := range counters {
			for _, latch := range latches {
				for _, d := range deltas {
					init := timer{
						latch:     latch,
						cnt:       cnt,
						state:     timerState(s) | timerState(s&1)*tsOut,
						clk:       1000,
						lastUnder: -1,
					}
					fast, slow := init, init
					nf := fast.advanceTo(init.clk + d)
					ns := stepTo(&slow, init.clk+d)

					if nf != ns {
						t.Fatalf("state=%03x cnt=%d latch=%d delta=%d: %d underflows, want %d", s, cnt, latch, d, nf, ns)
					}
					if diff := cmp.Diff(slow, fast, cmpTimer); diff != "" {
						t.Fatalf("state=%03x cnt=%d latch=%d delta=%d: mismatch (-slow +fast):\n%s", s, cnt, latch, d, diff)
					}
				}
			}
		}
	}
}

func TestTimerTableIsPure(t *testing.T) {
	a, b := buildTimerTable(), buildTimerTable()
	if *a != *b {
		t.Fatal("two table builds differ")
	}
	if *timerTable() != *a {
		t.Fatal("shared table differs from a fresh build")
	}
	for s, next := range a {
		if next&^tsTableMask != 0 {
			t.Fatalf("state %03x: next state %04x has bits outside the table", s, next)
		}
		if next&(tsStep|tsForceLoad|tsUnder) != 0 {
			t.Fatalf("state %03x: strobe bits survive a cycle", s)
		}
	}
}

func TestOneShotUnderflow(t *testing.T) {
	tm := timer{latch: 10, cnt: 10, state: steadyOneShot | tsOut}

	if got := tm.nextUnderflow(); got != 10 {
		t.Fatalf("nextUnderflow() = %d, want 10", got)
	}
	if n := tm.advanceTo(10); n != 1 {
		t.Fatalf("underflows at cycle 10 = %d, want 1", n)
	}
	if tm.cnt != 0 || tm.lastUnder != 10 {
		t.Fatalf("cycle 10: cnt=%d lastUnder=%d, want cnt=0 lastUnder=10", tm.cnt, tm.lastUnder)
	}
	if tm.state&tsOut != 0 {
		t.Errorf("toggle output not flipped by the underflow")
	}

	if n := tm.advanceTo(11); n != 0 {
		t.Fatalf("extra underflow at cycle 11")
	}
	if tm.cnt != 10 {
		t.Errorf("cycle 11: cnt=%d, want reload to 10", tm.cnt)
	}
	if tm.started() {
		t.Errorf("cycle 11: timer still started in one-shot mode")
	}

	if n := tm.advanceTo(5000); n != 0 {
		t.Fatalf("stopped one-shot timer underflowed %d times", n)
	}
	if tm.cnt != 10 || tm.nextUnderflow() != never {
		t.Errorf("stopped timer: cnt=%d next=%d, want cnt=10 next=never", tm.cnt, tm.nextUnderflow())
	}
}

func TestContinuousPeriod(t *testing.T) {
	tm := timer{latch: 4, cnt: 4, state: steadyContinuous}

	var got []int64
	for range 4 {
		u := tm.nextUnderflow()
		if n := tm.advanceTo(u); n != 1 {
			t.Fatalf("advanceTo(%d) = %d underflows, want 1", u, n)
		}
		got = append(got, u)
	}
	want := []int64{4, 9, 14, 19}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("underflow cycles mismatch (-want +got):\n%s", diff)
	}
}

func TestStartLatency(t *testing.T) {
	var tm timer
	tm.reset(0)
	tm.cnt = 3
	tm.setControl(crStart, true)

	if tm.state&tsOut == 0 {
		t.Errorf("starting the timer does not raise the toggle output")
	}
	if got := tm.nextUnderflow(); got != 5 {
		t.Errorf("nextUnderflow() = %d, want 5", got)
	}
	tm.advanceTo(3)
	if tm.cnt != 2 {
		t.Errorf("cycle 3: cnt=%d, want 2", tm.cnt)
	}
}

func TestForceLoad(t *testing.T) {
	var tm timer
	tm.reset(0)
	tm.cnt = 5
	tm.latch = 100
	tm.setControl(crForceLoad, true)

	tm.advanceTo(1)
	if tm.cnt != 5 {
		t.Fatalf("cycle 1: cnt=%d, want 5", tm.cnt)
	}
	tm.advanceTo(2)
	if tm.cnt != 100 {
		t.Fatalf("cycle 2: cnt=%d, want 100", tm.cnt)
	}
}

func TestLatchWrites(t *testing.T) {
	var tm timer
	tm.reset(0)
	tm.cnt = 0x0505

	tm.setLatchLo(0x34)
	if tm.cnt != 0x0505 {
		t.Errorf("low latch write on a stopped timer changed the counter to %04x", tm.cnt)
	}
	tm.setLatchHi(0x12)
	if tm.latch != 0x1234 || tm.cnt != 0x1234 {
		t.Errorf("latch=%04x cnt=%04x, want both 1234", tm.latch, tm.cnt)
	}

	// Running: the counter is left alone.
	tm.state = steadyContinuous
	tm.setLatchHi(0x56)
	if tm.latch != 0x5634 || tm.cnt != 0x1234 {
		t.Errorf("running: latch=%04x cnt=%04x, want 5634/1234", tm.latch, tm.cnt)
	}

	// Reload in progress: only the written byte is transferred.
	tm.state |= tsLoad
	tm.setLatchLo(0x78)
	if tm.cnt != 0x1278 {
		t.Errorf("reloading: cnt=%04x, want 1278", tm.cnt)
	}
}

func TestNextUnderflowIsExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 5000 {
		init := timer{
			latch:     uint16(rng.IntN(40)),
			cnt:       uint16(rng.IntN(40)),
			state:     timerState(rng.IntN(tsTableSize)),
			clk:       int64(rng.IntN(1000)),
			lastUnder: -1,
		}
		pred := init.nextUnderflow()
		if pred <= init.clk {
			t.Fatalf("%+v: prediction %d not in the future", init, pred)
		}

		sim := init
		limit := min(pred, init.clk+200)
		for sim.clk < limit {
			if sim.step() && sim.clk < pred {
				t.Fatalf("%+v: underflow at %d before prediction %d", init, sim.clk, pred)
			}
		}
	}
}
