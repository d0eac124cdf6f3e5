package cia

import (
	"ciacore/emu/log"
	"ciacore/hw/snapshot"
)

// TOD register indices, relative to TOD10TH.
const (
	todTenths = iota
	todSec
	todMin
	todHr
)

var todMasks = [4]uint8{0x0F, 0x7F, 0x7F, 0x9F}

const todPM = 0x80

// tod is the BCD time-of-day clock. It is driven by the mains frequency on
// the TOD pin, divided by 5 or 6 depending on CRA bit 7.
type tod struct {
	clock   [4]uint8
	latch   [4]uint8
	alarm   [4]uint8
	latched bool
	stopped bool
	ticks   uint8 // line ticks since the last tenth

	// Line tick generation: cpuHz/lineHz cycles per tick, the remainder is
	// spread with an accumulator.
	period  int64
	frac    int64
	lineHz  int64
	fracAcc int64
	jitter  bool
	rng     uint32
	next    int64
}

func (t *tod) configure(cpuHz, lineHz int64, jitter bool) {
	t.lineHz = lineHz
	t.period = cpuHz / lineHz
	t.frac = cpuHz % lineHz
	t.jitter = jitter
}

func (t *tod) reset(clk int64) {
	t.clock = [4]uint8{0, 0, 0, 0x01}
	t.latch = t.clock
	t.alarm = [4]uint8{}
	t.latched = false
	t.stopped = false
	t.ticks = 0
	t.fracAcc = 0
	t.rng = 0x2545F491
	t.next = clk + t.interval()
}

// interval returns the number of cycles until the next line tick.
func (t *tod) interval() int64 {
	p := t.period
	t.fracAcc += t.frac
	if t.fracAcc >= t.lineHz {
		t.fracAcc -= t.lineHz
		p++
	}
	if t.jitter {
		// xorshift32
		t.rng ^= t.rng << 13
		t.rng ^= t.rng >> 17
		t.rng ^= t.rng << 5
		p += int64(t.rng%3) - 1
	}
	return p
}

// tick handles one line tick. It reports whether the clock was incremented.
func (t *tod) tick(div uint8) bool {
	if t.stopped {
		return false
	}
	t.ticks++
	if t.ticks < div {
		return false
	}
	t.ticks = 0
	t.advance()
	return true
}

func bcdInc(v uint8) uint8 {
	if v&0x0F == 0x09 {
		return v&0xF0 + 0x10
	}
	return v + 1
}

func (t *tod) advance() {
	t.clock[todTenths] = bcdInc(t.clock[todTenths]) & todMasks[todTenths]
	if t.clock[todTenths] != 0 {
		return
	}

	for _, i := range [2]int{todSec, todMin} {
		t.clock[i] = bcdInc(t.clock[i]) & todMasks[i]
		if t.clock[i] != 0x60 {
			return
		}
		t.clock[i] = 0
	}

	hr := t.clock[todHr]
	pm := hr & todPM
	switch hr &^ todPM {
	case 0x11:
		hr = 0x12
		pm ^= todPM
	case 0x12:
		hr = 0x01
	default:
		hr = bcdInc(hr&^todPM) & 0x1F
	}
	t.clock[todHr] = hr | pm
	log.ModTOD.DebugZ("hour").Hex8("hr", t.clock[todHr]).End()
}

func (t *tod) matches() bool {
	return t.clock == t.alarm
}

// read returns a TOD register. Reading hours freezes the visible time until
// tenths are read.
func (t *tod) read(i int) uint8 {
	switch i {
	case todHr:
		if !t.latched {
			t.latch = t.clock
			t.latched = true
		}
		return t.latch[todHr]
	case todTenths:
		v := t.peek(i)
		t.latched = false
		return v
	}
	return t.peek(i)
}

func (t *tod) peek(i int) uint8 {
	if t.latched {
		return t.latch[i]
	}
	return t.clock[i]
}

// write sets a clock or alarm register and reports whether clock and alarm
// are equal afterwards. Writing hours stops the clock, writing tenths
// restarts it.
func (t *tod) write(i int, v uint8, alarm bool) bool {
	v &= todMasks[i]
	if alarm {
		t.alarm[i] = v
		return t.matches()
	}

	switch i {
	case todHr:
		t.stopped = true
		if v&^todPM == 0x12 {
			v ^= todPM
		}
	case todTenths:
		if t.stopped {
			t.stopped = false
			t.ticks = 0
		}
	}
	t.clock[i] = v
	return t.matches()
}

func (t *tod) saveState(state *snapshot.TOD) {
	state.Clock = t.clock
	state.Latch = t.latch
	state.Alarm = t.alarm
	state.Latched = t.latched
	state.Stopped = t.stopped
	state.Ticks = t.ticks
	state.FracAcc = t.fracAcc
	state.Rng = t.rng
	state.Next = t.next
}

func (t *tod) setState(state *snapshot.TOD) {
	t.clock = state.Clock
	t.latch = state.Latch
	t.alarm = state.Alarm
	t.latched = state.Latched
	t.stopped = state.Stopped
	t.ticks = state.Ticks
	t.fracAcc = state.FracAcc
	t.rng = state.Rng
	t.next = state.Next
}
