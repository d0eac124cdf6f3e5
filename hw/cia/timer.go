package cia

import (
	"sync"

	"ciacore/hw/snapshot"
)

// timerState packs the control bits feeding a timer and its internal
// pipeline. The low bits index the transition table, the toggle output lives
// above them since nothing in the table depends on it.
type timerState uint16

const (
	tsStart     timerState = 1 << iota // CR bit 0
	tsStep                             // one count pulse (CNT edge or timer A underflow)
	tsOneShot                          // CR bit 3
	tsForceLoad                        // CR bit 4 strobe
	tsPhi2                             // counts system clock cycles
	tsCount2                           // counting enabled last cycle
	tsCount3                           // decrement this cycle
	tsLoad                             // reload counter from latch this cycle
	tsOneShot0                         // one-shot bit as seen by the underflow logic
	tsUnder                            // counter reached zero last cycle

	tsTableBits = iota
	tsTableSize = 1 << tsTableBits
	tsTableMask = tsTableSize - 1

	tsOut timerState = 0x8000 // toggle output level
)

// never is the prediction for events that cannot happen without an external
// stimulus.
const never = int64(1<<63 - 1)

var timerTable = sync.OnceValue(buildTimerTable)

// buildTimerTable computes the next-cycle state of every combination of
// timer state bits. The table only encodes the pipeline; counter arithmetic
// is done by step.
func buildTimerTable() *[tsTableSize]timerState {
	var tbl [tsTableSize]timerState
	for i := range tbl {
		s := timerState(i)

		next := s & (tsStart | tsOneShot | tsPhi2)
		if s&tsStart != 0 && s&(tsPhi2|tsStep) != 0 {
			next |= tsCount2
		}
		if s&tsCount2 != 0 {
			next |= tsCount3
		}
		if s&tsForceLoad != 0 {
			next |= tsLoad
		}
		if s&tsOneShot != 0 {
			next |= tsOneShot0
		}
		// One-shot underflow: the start bit is cleared while the reload
		// happens, which also drains the count pipeline.
		if s&tsUnder != 0 && s&tsOneShot0 != 0 {
			next &^= tsStart | tsCount2 | tsCount3
		}
		tbl[i] = next
	}
	return &tbl
}

// timer is one of the two 16-bit interval timers.
type timer struct {
	latch uint16
	cnt   uint16
	state timerState

	clk       int64 // cycle the state corresponds to
	lastUnder int64 // cycle of the most recent underflow
}

func (t *timer) reset(clk int64) {
	t.latch = 0xFFFF
	t.cnt = 0xFFFF
	t.state = 0
	t.clk = clk
	t.lastUnder = -1
}

// step runs the timer for one cycle, it reports whether the counter reached
// zero.
func (t *timer) step() bool {
	s := t.state
	under := false
	switch {
	case s&tsLoad != 0:
		t.cnt = t.latch
	case s&tsCount3 != 0:
		if t.cnt != 0 {
			t.cnt--
		}
		under = t.cnt == 0
	}

	next := timerTable()[s&tsTableMask] | s&tsOut
	if under {
		next |= tsLoad | tsUnder
		next ^= tsOut
	}
	t.state = next
	t.clk++
	if under {
		t.lastUnder = t.clk
	}
	return under
}

// advanceTo runs the timer up to clk and returns the number of underflows.
// Two situations are fast-forwarded, both bit-identical to stepping:
//   - warp-stopped: the state is a fixed point that does not count.
//   - warp-counting: the state is a fixed point that counts every cycle,
//     the counter is decremented by the elapsed time, stopping one short of
//     zero so that the underflow itself is stepped.
func (t *timer) advanceTo(clk int64) int {
	tbl := timerTable()
	n := 0
	for t.clk < clk {
		s := t.state & tsTableMask
		if tbl[s] == s {
			if s&tsCount3 == 0 {
				t.clk = clk
				break
			}
			if t.cnt > 1 {
				k := min(clk-t.clk, int64(t.cnt)-1)
				t.cnt -= uint16(k)
				t.clk += k
				continue
			}
		}
		if t.step() {
			n++
		}
	}
	return n
}

// nextUnderflow predicts the cycle of the next underflow, assuming no
// external count pulse nor register write happen in between.
func (t *timer) nextUnderflow() int64 {
	tbl := timerTable()
	sim := *t
	for range 8 {
		s := sim.state & tsTableMask
		if tbl[s] == s {
			if s&tsCount3 == 0 {
				return never
			}
			return sim.clk + max(int64(sim.cnt), 1)
		}
		if sim.step() {
			return sim.clk
		}
	}
	// Still in transition: ask to be serviced there and predict again.
	return sim.clk
}

// pulse feeds one external count pulse at the current cycle.
func (t *timer) pulse() {
	t.state |= tsStep
}

func (t *timer) started() bool { return t.state&tsStart != 0 }

func (t *timer) setControl(cr uint8, phi2 bool) {
	s := t.state &^ (tsStart | tsOneShot | tsForceLoad | tsPhi2)
	if cr&crStart != 0 {
		s |= tsStart
		if t.state&tsStart == 0 {
			// The toggle output goes high whenever the timer is started.
			s |= tsOut
		}
	}
	if cr&crRunMode != 0 {
		s |= tsOneShot
	}
	if cr&crForceLoad != 0 {
		s |= tsForceLoad
	}
	if phi2 {
		s |= tsPhi2
	}
	t.state = s
}

// Latch writes. A reload in progress picks up the written byte. Writing the
// high byte of a stopped timer also transfers the latch to the counter.

func (t *timer) setLatchLo(v uint8) {
	t.latch = t.latch&0xFF00 | uint16(v)
	if t.state&tsLoad != 0 {
		t.cnt = t.cnt&0xFF00 | uint16(v)
	}
}

func (t *timer) setLatchHi(v uint8) {
	t.latch = t.latch&0x00FF | uint16(v)<<8
	switch {
	case t.state&tsLoad != 0:
		t.cnt = t.cnt&0x00FF | uint16(v)<<8
	case t.state&tsStart == 0:
		t.cnt = t.latch
	}
}

// output returns the PB6/PB7 level in toggle or pulse mode.
func (t *timer) output(clk int64, toggle bool) bool {
	if toggle {
		return t.state&tsOut != 0
	}
	return t.lastUnder == clk
}

func (t *timer) saveState(state *snapshot.Timer) {
	state.Latch = t.latch
	state.Counter = t.cnt
	state.State = uint16(t.state)
	state.Clock = t.clk
	state.LastUnderflow = t.lastUnder
	state.Alarm = t.nextUnderflow()
}

func (t *timer) setState(state *snapshot.Timer) {
	t.latch = state.Latch
	t.cnt = state.Counter
	t.state = timerState(state.State)
	t.clk = state.Clock
	t.lastUnder = state.LastUnderflow
}
