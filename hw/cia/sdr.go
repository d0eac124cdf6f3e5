package cia

import (
	"math/bits"

	"ciacore/emu/log"
	"ciacore/hw/snapshot"
)

// Serial port delay word: bits 0-3 hold CNT toggles requested by timer A
// underflows, bits 4-7 hold the pending serial interrupt.
const (
	sdrToggleDelay = 3

	sdrToggleDue   = 1 << 3
	sdrIrqDue      = 1 << 7
	sdrToggleGroup = 0x0F
	sdrIrqGroup    = 0xF0
	sdrDelayMask   = (sdrToggleGroup | sdrIrqGroup) &^ (sdrToggleDue | sdrIrqDue)

	sdrArmed   = 17 // byte loaded, waiting for the first toggle
	sdrToggles = 16 // CNT toggles per byte in output mode
	sdrBits    = 8

	// Switching direction with fewer toggles buffered discards the byte.
	sdrForceFinishMin = 2
)

// sdr is the serial shift register.
type sdr struct {
	tm *timing

	count       uint8  // remaining toggles (output) or bits (input)
	shift       uint16 // output bits leave from bit 15, input bits enter at bit 0
	data        uint8  // SDR register
	valid       bool   // output byte waiting in data
	forceFinish bool   // direction changed, finishing the byte in progress
	output      bool
	cnt, sp     bool // output levels
	delay       uint32
	clk         int64

	irq   func(clk int64)
	clock func(cnt, sp bool, clk int64)
}

func (s *sdr) reset(clk int64) {
	s.count = 0
	s.shift = 0
	s.data = 0
	s.valid = false
	s.forceFinish = false
	s.output = false
	s.cnt, s.sp = true, true
	s.delay = 0
	s.clk = clk
}

func (s *sdr) shifting() bool { return s.output || s.forceFinish }

// busy reports whether timer A underflows drive the shift register.
func (s *sdr) busy() bool { return s.shifting() && s.count != 0 }

func (s *sdr) catchUp(clk int64) {
	for s.clk < clk {
		if s.delay == 0 {
			s.clk = clk
			return
		}
		s.clk++
		s.delay <<= 1
		if s.delay&sdrToggleDue != 0 {
			s.toggle(s.clk)
		}
		if s.delay&sdrIrqDue != 0 && s.irq != nil {
			s.irq(s.clk)
		}
		s.delay &= sdrDelayMask
	}
}

// nextEvent returns the cycle of the next buffered toggle or interrupt.
func (s *sdr) nextEvent() int64 {
	next := never
	if g := s.delay & sdrToggleGroup; g != 0 {
		pos := 31 - bits.LeadingZeros32(g)
		next = s.clk + int64(3-pos)
	}
	if g := s.delay & sdrIrqGroup; g != 0 {
		pos := 31 - bits.LeadingZeros32(g)
		next = min(next, s.clk+int64(7-pos))
	}
	return next
}

func (s *sdr) notifyClock(clk int64) {
	if s.clock != nil {
		s.clock(s.cnt, s.sp, clk)
	}
}

func (s *sdr) toggle(clk int64) {
	switch s.count {
	case 0:
		return
	case sdrArmed:
		s.count = sdrToggles
		s.sp = s.shift&0x8000 != 0
		s.shift <<= 1
		s.notifyClock(clk)
		return
	}

	s.cnt = !s.cnt
	s.count--
	if !s.cnt && s.count < sdrToggles-1 {
		// Falling edge: present the next bit. The first bit went out
		// when the byte was armed.
		s.sp = s.shift&0x8000 != 0
		s.shift <<= 1
	}
	s.notifyClock(clk)

	if s.count == 0 {
		s.delay |= sdrIrqDue >> s.tm.sdrDelay
		log.ModSerial.DebugZ("byte shifted out").Int64("clk", clk).End()
		switch {
		case s.forceFinish:
			s.forceFinish = false
			s.valid = false
		case s.valid:
			s.load(s.data)
			s.valid = false
		}
	}
}

func (s *sdr) load(v uint8) {
	s.shift = uint16(v) << 8
	s.count = sdrArmed
}

// feed handles an SDR write.
func (s *sdr) feed(clk int64, v uint8) {
	s.catchUp(clk)
	s.data = v
	if !s.output || s.forceFinish {
		return
	}
	if s.count == 0 {
		s.load(v)
	} else {
		s.valid = true
	}
}

// timerUnderflow queues a CNT toggle in output mode.
func (s *sdr) timerUnderflow(clk int64) {
	s.catchUp(clk)
	if s.shifting() && s.count != 0 {
		s.delay |= sdrToggleDue >> sdrToggleDelay
	}
}

// onExternalBit samples SP on a CNT rising edge in input mode.
func (s *sdr) onExternalBit(clk int64, bit bool) {
	s.catchUp(clk)
	if s.shifting() {
		return
	}
	if s.count == 0 {
		s.count = sdrBits
	}
	s.shift = s.shift<<1 | b2u16(bit)
	s.count--
	if s.count == 0 {
		s.data = uint8(s.shift)
		s.delay |= sdrIrqDue >> s.tm.sdrDelay
		log.ModSerial.DebugZ("byte shifted in").Hex8("data", s.data).Int64("clk", clk).End()
	}
}

// setSerialByte delivers a whole byte at once in input mode.
func (s *sdr) setSerialByte(clk int64, v uint8) {
	s.catchUp(clk)
	if s.shifting() {
		return
	}
	s.count = 0
	s.shift = uint16(v)
	s.data = v
	s.delay |= sdrIrqDue >> s.tm.sdrDelay
}

// setMode changes the shift direction. A byte in progress is discarded,
// unless enough toggles are already buffered, in which case it completes in
// the background.
func (s *sdr) setMode(clk int64, output bool) {
	s.catchUp(clk)
	if output == s.output {
		return
	}
	if s.count != 0 && !s.forceFinish {
		buffered := bits.OnesCount32(s.delay & sdrToggleGroup)
		if buffered < sdrForceFinishMin {
			s.count = 0
			s.delay &^= sdrToggleGroup
			s.valid = false
			log.ModSerial.DebugZ("shift discarded").Int64("clk", clk).End()
		} else if s.output {
			s.forceFinish = true
			log.ModSerial.DebugZ("force finish").Int("buffered", buffered).Int64("clk", clk).End()
		}
	}
	s.output = output
	if !output && !s.forceFinish && !(s.cnt && s.sp) {
		s.cnt, s.sp = true, true
		s.notifyClock(clk)
	}
}

func (s *sdr) saveState(state *snapshot.SDR) {
	state.Counter = s.count
	state.Shift = s.shift
	state.Data = s.data
	state.DataValid = s.valid
	state.ForceFinish = s.forceFinish
	state.Output = s.output
	state.CNT = s.cnt
	state.SP = s.sp
	state.Delay = s.delay
	state.Clock = s.clk
}

func (s *sdr) setState(state *snapshot.SDR) {
	s.count = state.Counter
	s.shift = state.Shift
	s.data = state.Data
	s.valid = state.DataValid
	s.forceFinish = state.ForceFinish
	s.output = state.Output
	s.cnt = state.CNT
	s.sp = state.SP
	s.delay = state.Delay & sdrDelayMask
	s.clk = state.Clock
}
