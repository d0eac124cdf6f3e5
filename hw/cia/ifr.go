package cia

import (
	"math/bits"

	"ciacore/emu/log"
	"ciacore/hw/hwdefs"
	"ciacore/hw/snapshot"
)

// The interrupt pipeline keeps its in-flight events in a single word made of
// four 5-bit groups. Each group is a delay line: an event inserted d cycles
// ahead of its due bit moves one position per cycle and is applied when it
// reaches the due bit.
const (
	ifrGroupBits = 5

	ifrAckDue   = 1 << (0*ifrGroupBits + 4) // clear acknowledged flags
	ifrD7Due    = 1 << (1*ifrGroupBits + 4) // set ICR bit 7
	ifrRaiseDue = 1 << (2*ifrGroupBits + 4) // assert the interrupt line

	// Read history: age 0 is set on the ICR read cycle.
	ifrReadAge0 = 1 << (3 * ifrGroupBits)
	ifrReadAge1 = ifrReadAge0 << 1

	ifrAckGroup   = 0x1F << (0 * ifrGroupBits)
	ifrD7Group    = 0x1F << (1 * ifrGroupBits)
	ifrRaiseGroup = 0x1F << (2 * ifrGroupBits)
	ifrReadGroup  = 0x1F << (3 * ifrGroupBits)

	ifrDelayMask = (ifrAckGroup | ifrD7Group | ifrRaiseGroup | ifrReadGroup) &^ (ifrAckDue | ifrD7Due | ifrRaiseDue)

	// A line assertion due that close is reported ahead of time.
	ifrPromoteMax = 2
)

const (
	icrIR      = uint8(hwdefs.IR)
	icrSources = 0x1F
)

// ifr is the interrupt flag register, its mask and the interrupt output.
type ifr struct {
	tm *timing

	flags    uint8 // ICR as read, bit 7 included
	newFlags uint8 // set since the last evaluation
	ackFlags uint8 // cleared when the pending acknowledge is applied
	mask     uint8
	delay    uint32
	clk      int64

	line    bool  // interrupt output, as last reported
	lineClk int64 // cycle the last assertion takes effect

	// notify reports interrupt level changes, the latest call wins. clk is
	// the cycle the level takes effect, possibly a few cycles ahead.
	notify func(asserted bool, clk int64)
}

func (p *ifr) reset(clk int64) {
	if p.line {
		p.setLine(false, clk)
	}
	p.flags = 0
	p.newFlags = 0
	p.ackFlags = 0
	p.mask = 0
	p.delay = 0
	p.clk = clk
	p.lineClk = clk
}

func (p *ifr) setLine(asserted bool, clk int64) {
	p.line = asserted
	if asserted {
		p.lineClk = clk
	}
	if p.notify != nil {
		p.notify(asserted, clk)
	}
}

// catchUp advances the pipeline up to clk. Calling it again with the same
// cycle is a no-op.
func (p *ifr) catchUp(clk int64) {
	for p.clk < clk {
		if p.delay == 0 {
			p.clk = clk
			return
		}
		p.clk++
		p.delay <<= 1
		if p.delay&ifrAckDue != 0 {
			p.flags &^= p.ackFlags
			p.ackFlags = 0
		}
		if p.delay&ifrD7Due != 0 {
			p.flags |= icrIR
		}
		if p.delay&ifrRaiseDue != 0 && !p.line {
			p.setLine(true, p.clk)
		}
		p.delay &= ifrDelayMask
	}
}

// setFlag latches interrupt sources at clk.
func (p *ifr) setFlag(clk int64, src uint8) {
	p.catchUp(clk)
	p.flags |= src
	p.newFlags |= src
	p.ackFlags &^= src

	log.ModIRQ.DebugZ("set flag").
		Stringer("src", hwdefs.IRQSource(src)).
		Int64("clk", clk).
		End()
}

// setTimerBFlag is setFlag for timer B, on the old revision an underflow
// occurring the cycle after an ICR read is lost.
func (p *ifr) setTimerBFlag(clk int64) {
	p.catchUp(clk)
	if p.tm.timerBBug && p.delay&ifrReadAge1 != 0 {
		log.ModIRQ.DebugZ("timer B flag lost").Int64("clk", clk).End()
		return
	}
	p.setFlag(clk, uint8(hwdefs.TimerB))
}

func (p *ifr) pending() uint8 {
	return (p.flags &^ p.ackFlags) & p.mask & icrSources
}

// currentOrNext evaluates the pipeline at clk: it starts the interrupt
// sequence for newly pending sources and reports imminent line assertions.
// It returns the next cycle at which the pipeline must be serviced, or
// never.
func (p *ifr) currentOrNext(clk int64) int64 {
	p.catchUp(clk)

	if p.pending() != 0 && p.flags&icrIR == 0 && p.delay&ifrD7Group == 0 {
		if d := p.tm.d7Delay; d == 0 {
			p.flags |= icrIR
		} else {
			p.delay |= ifrD7Due >> d
		}
		if d := p.tm.irqDelay; d == 0 {
			if !p.line {
				p.setLine(true, clk)
			}
		} else {
			p.delay |= ifrRaiseDue >> d
		}
	}
	p.newFlags = 0

	for k := uint(1); k <= ifrPromoteMax; k++ {
		if p.delay&(ifrRaiseDue>>k) != 0 {
			p.delay &^= ifrRaiseDue >> k
			if !p.line {
				p.setLine(true, clk+int64(k))
			}
		}
	}

	if raise := p.delay & ifrRaiseGroup; raise != 0 {
		// The highest bit is the closest to its due position.
		pos := 31 - bits.LeadingZeros32(raise)
		return clk + int64(2*ifrGroupBits+4-pos)
	}
	return never
}

// read returns the ICR and acknowledges all the flags it returned. In-flight
// bit 7 and line assertions are cancelled, a line already reported as
// asserted (even ahead of time) is released.
func (p *ifr) read(clk int64) uint8 {
	p.catchUp(clk)
	val := p.flags

	p.ackFlags = p.flags
	if p.tm.ackDelay == 0 {
		p.flags = 0
		p.ackFlags = 0
	} else {
		p.delay |= ifrAckDue >> p.tm.ackDelay
	}
	p.delay &^= ifrD7Group | ifrRaiseGroup
	p.delay |= ifrReadAge0

	if p.line {
		p.setLine(false, clk)
	}

	log.ModIRQ.DebugZ("ICR read").
		Hex8("val", val).
		Int64("clk", clk).
		End()
	return val
}

// peek returns the ICR as it would be read at clk, without side effects.
func (p *ifr) peek(clk int64) uint8 {
	cp := *p
	cp.notify = nil
	cp.catchUp(clk)
	return cp.flags
}

// writeMask handles an ICR write: bit 7 selects whether the given sources
// are enabled or disabled.
func (p *ifr) writeMask(clk int64, val uint8) {
	p.catchUp(clk)
	if val&icrSet != 0 {
		p.mask |= val & icrSources
	} else {
		p.mask &^= val & icrSources
	}
	log.ModIRQ.DebugZ("ICR write").
		Hex8("val", val).
		Hex8("mask", p.mask).
		Int64("clk", clk).
		End()
}

func (p *ifr) saveState(state *snapshot.IFR) {
	state.Flags = p.flags
	state.NewFlags = p.newFlags
	state.AckFlags = p.ackFlags
	state.Mask = p.mask
	state.Delay = p.delay
	state.Clock = p.clk
	state.Line = p.line
	state.LineClock = p.lineClk
}

func (p *ifr) setState(state *snapshot.IFR) {
	p.flags = state.Flags
	p.newFlags = state.NewFlags
	p.ackFlags = state.AckFlags
	p.mask = state.Mask
	p.delay = state.Delay & ifrDelayMask
	p.clk = state.Clock
	p.line = state.Line
	p.lineClk = state.LineClock
}
