// Package cia emulates the MOS 6526/8521 Complex Interface Adapter.
//
// The chip is evaluated lazily: its components only move forward when a
// register is accessed, when an input line changes or when one of its alarms
// fires. Alarms are only kept for events whose timing is visible outside of
// the chip (interrupt line, port B outputs, serial clock, TOD ticks), all the
// rest is caught up exactly on the next access.
package cia

import (
	"fmt"

	"ciacore/emu/log"
	"ciacore/hw/hwdefs"
	"ciacore/hw/sched"
)

// Scheduler is the alarm service of the machine the chip is plugged into.
type Scheduler interface {
	// Now returns the current cycle.
	Now() int64
	// RunDue fires all the alarms due at or before clk.
	RunDue(clk int64)
	NewAlarm(name string, cb sched.Callback) *sched.Alarm
}

// Lines connects the chip to the rest of the machine. All fields are
// optional: unconnected inputs read as pulled up, unconnected outputs are
// ignored.
type Lines struct {
	ReadPA  func() uint8
	ReadPB  func() uint8
	WritePA func(val uint8)
	WritePB func(val uint8)

	// PulsePC is the handshake output, pulsed on port B accesses.
	PulsePC func(clk int64)

	// SerialClock reports the CNT and SP outputs in serial output mode.
	SerialClock func(cnt, sp bool, clk int64)

	// Interrupt reports changes of the interrupt output. asserted is the
	// level, clk the cycle at which it takes effect. It can be up to 2 cycles
	// ahead of the current cycle, in which case a following call for an
	// earlier cycle supersedes it.
	Interrupt func(asserted bool, clk int64)
}

type Config struct {
	Name        string
	Revision    Revision
	CPUClock    int64 // Hz
	LineHz      int64 // TOD pin frequency
	StoreOffset int64 // cycles between the start of a write and its effect
	IdleHorizon int64 // max cycles between two catch-ups
	TODJitter   bool
}

const (
	DefaultIdleHorizon = 1 << 16
)

type chipState uint8

const (
	chipDisabled chipState = iota
	chipActive
)

const (
	alarmTA = iota
	alarmTB
	alarmIFR
	alarmSDR
	alarmTOD
	alarmIdle
	numAlarms
)

var alarmNames = [numAlarms]string{"ta", "tb", "ifr", "sdr", "tod", "idle"}

// Chip is a CIA instance.
type Chip struct {
	Lines Lines

	cfg   Config
	tm    timing
	sched Scheduler

	regs  [NumRegs]uint8
	ta    timer
	tb    timer
	ifr   ifr
	sdr   sdr
	tod   tod
	state chipState

	cntIn, spIn bool // input line levels

	// Last values reported on the port outputs.
	paOut, pbOut uint8
	portsValid   bool

	alarms [numAlarms]*sched.Alarm
	mod    log.Module
}

// New creates a chip connected to a scheduler. The chip is disabled until
// Reset is called.
func New(cfg Config, s Scheduler) *Chip {
	if cfg.CPUClock == 0 {
		cfg.CPUClock = hwdefs.PALCPUClock
	}
	if cfg.LineHz == 0 {
		cfg.LineHz = hwdefs.PALLineHz
	}
	if cfg.IdleHorizon <= 0 {
		cfg.IdleHorizon = DefaultIdleHorizon
	}
	if cfg.Name == "" {
		cfg.Name = "cia"
	}
	if int(cfg.Revision) >= len(timings) {
		panic(fmt.Sprintf("cia: unknown revision %d", cfg.Revision))
	}

	c := &Chip{
		cfg:   cfg,
		tm:    timings[cfg.Revision],
		sched: s,
		mod:   log.ModCIA,
	}
	c.tod.configure(cfg.CPUClock, cfg.LineHz, cfg.TODJitter)
	c.wire()

	for i := range c.alarms {
		name := cfg.Name + "." + alarmNames[i]
		switch i {
		case alarmTOD:
			c.alarms[i] = s.NewAlarm(name, c.todTick)
		case alarmIdle:
			c.alarms[i] = s.NewAlarm(name, c.idle)
		default:
			c.alarms[i] = s.NewAlarm(name, c.service)
		}
	}
	return c
}

// wire binds the component callbacks to the chip.
func (c *Chip) wire() {
	c.ifr.tm = &c.tm
	c.sdr.tm = &c.tm
	c.ifr.notify = c.interrupt
	c.sdr.irq = c.serialDone
	c.sdr.clock = c.serialClock
}

func (c *Chip) Name() string       { return c.cfg.Name }
func (c *Chip) Revision() Revision { return c.cfg.Revision }
func (c *Chip) Active() bool       { return c.state == chipActive }

// Reset puts the chip in its power-on state and activates it.
func (c *Chip) Reset() {
	clk := c.sched.Now()

	c.regs = [NumRegs]uint8{}
	c.ta.reset(clk)
	c.tb.reset(clk)
	c.ifr.reset(clk)
	c.sdr.reset(clk)
	c.tod.reset(clk)
	c.cntIn, c.spIn = true, true
	c.portsValid = false
	c.state = chipActive

	for _, a := range c.alarms {
		a.Unset()
	}
	c.alarms[alarmTOD].Set(c.tod.next)
	c.alarms[alarmIdle].Set(clk + c.cfg.IdleHorizon)

	c.settle(clk)
	c.reschedule(clk)

	log.ModCIA.InfoZ("reset").
		String("chip", c.cfg.Name).
		Stringer("rev", c.cfg.Revision).
		Int64("clk", clk).
		End()
}

// Disable stops the chip: alarms are cancelled, reads return 0xFF and writes
// are ignored until the next Reset.
func (c *Chip) Disable() {
	for _, a := range c.alarms {
		a.Unset()
	}
	if c.ifr.line {
		c.ifr.setLine(false, c.sched.Now())
	}
	c.state = chipDisabled
}

// Read reads a register at the current cycle.
func (c *Chip) Read(addr uint8) uint8 {
	clk := c.sched.Now()
	c.sched.RunDue(clk)
	return c.readAt(clk, addr)
}

// Write writes a register. The write takes effect StoreOffset cycles before
// the current cycle, matching when the CPU drives the bus.
func (c *Chip) Write(addr, val uint8) {
	clk := c.sched.Now() - c.cfg.StoreOffset
	c.sched.RunDue(clk)
	c.writeAt(clk, addr, val)
}

// Peek returns the value a read would return, without side effects.
func (c *Chip) Peek(addr uint8) uint8 {
	checkAddr(addr)
	if c.state != chipActive {
		return 0xFF
	}
	clk := c.sched.Now()
	cp := c.clone()
	cp.runTo(clk)
	return cp.peekReg(clk, addr)
}

func checkAddr(addr uint8) {
	if addr >= NumRegs {
		panic(fmt.Sprintf("cia: register out of range: %#02x", addr))
	}
}

// clone returns a detached copy of the chip: no lines, no alarms.
func (c *Chip) clone() *Chip {
	cp := *c
	cp.Lines = Lines{ReadPA: c.Lines.ReadPA, ReadPB: c.Lines.ReadPB}
	cp.alarms = [numAlarms]*sched.Alarm{}
	cp.wire()
	cp.ifr.notify = nil
	return &cp
}

// evaluated returns the cycle the components were last brought to.
func (c *Chip) evaluated() int64 { return c.ifr.clk }

func (c *Chip) readAt(clk int64, addr uint8) uint8 {
	checkAddr(addr)
	if c.state != chipActive {
		return 0xFF
	}
	clk = max(clk, c.evaluated())
	c.runTo(clk)
	val := c.readReg(clk, addr)
	c.settle(clk)
	c.reschedule(clk)

	c.mod.DebugZ("read").
		String("chip", c.cfg.Name).
		String("reg", RegName(addr)).
		Hex8("val", val).
		Int64("clk", clk).
		End()
	return val
}

func (c *Chip) writeAt(clk int64, addr, val uint8) {
	checkAddr(addr)
	if c.state != chipActive {
		return
	}
	clk = max(clk, c.evaluated())
	c.mod.DebugZ("write").
		String("chip", c.cfg.Name).
		String("reg", RegName(addr)).
		Hex8("val", val).
		Int64("clk", clk).
		End()

	c.runTo(clk)
	c.writeReg(clk, addr, val)
	c.settle(clk)
	c.reschedule(clk)
}

func (c *Chip) readReg(clk int64, addr uint8) uint8 {
	switch addr {
	case PRA:
		return c.readPA()
	case PRB:
		val := c.readPB(clk)
		c.pulsePC(clk)
		return val
	case TALO:
		return uint8(c.ta.cnt)
	case TAHI:
		return uint8(c.ta.cnt >> 8)
	case TBLO:
		return uint8(c.tb.cnt)
	case TBHI:
		return uint8(c.tb.cnt >> 8)
	case TOD10TH, TODSEC, TODMIN, TODHR:
		return c.tod.read(int(addr - TOD10TH))
	case SDR:
		return c.sdr.data
	case ICR:
		return c.ifr.read(clk)
	case CRA:
		return c.regs[CRA]&^(crStart|crForceLoad) | b2u8(c.ta.started())
	case CRB:
		return c.regs[CRB]&^(crStart|crForceLoad) | b2u8(c.tb.started())
	}
	return c.regs[addr]
}

// peekReg is readReg without side effects.
func (c *Chip) peekReg(clk int64, addr uint8) uint8 {
	switch addr {
	case PRB:
		return c.readPB(clk)
	case TOD10TH, TODSEC, TODMIN, TODHR:
		return c.tod.peek(int(addr - TOD10TH))
	case ICR:
		return c.ifr.peek(clk)
	}
	return c.readReg(clk, addr)
}

func (c *Chip) writeReg(clk int64, addr, val uint8) {
	switch addr {
	case PRB:
		c.regs[PRB] = val
		c.pulsePC(clk)
	case TALO:
		c.ta.setLatchLo(val)
	case TAHI:
		c.ta.setLatchHi(val)
	case TBLO:
		c.tb.setLatchLo(val)
	case TBHI:
		c.tb.setLatchHi(val)
	case TOD10TH, TODSEC, TODMIN, TODHR:
		if c.tod.write(int(addr-TOD10TH), val, c.regs[CRB]&crbAlarm != 0) {
			c.raise(clk, hwdefs.TODAlarm)
		}
	case SDR:
		c.sdr.feed(clk, val)
	case ICR:
		c.ifr.writeMask(clk, val)
	case CRA:
		c.ta.setControl(val, val&craInCNT == 0)
		c.sdr.setMode(clk, val&craSPOut != 0)
		c.regs[CRA] = val &^ crForceLoad
	case CRB:
		c.tb.setControl(val, val&crbInMask == crbInPhi2)
		c.regs[CRB] = val &^ crForceLoad
	default:
		c.regs[addr] = val
	}
}

// runTo brings every component to clk, servicing in order all the internal
// events (underflows, serial shifts) occurring up to clk.
func (c *Chip) runTo(clk int64) {
	for {
		next := min(c.ta.nextUnderflow(), c.tb.nextUnderflow(), c.sdr.nextEvent())
		if next > clk {
			break
		}
		c.serviceAt(next)
	}
	c.ta.advanceTo(clk)
	c.tb.advanceTo(clk)
	c.ifr.catchUp(clk)
	c.sdr.catchUp(clk)
}

// serviceAt handles the events due at clk: timer A, then timer B, then the
// interrupt pipeline and the serial port.
func (c *Chip) serviceAt(clk int64) {
	na := c.ta.advanceTo(clk)
	nb := c.tb.advanceTo(clk)
	if na > 0 {
		c.timerAUnderflow(clk)
	}
	if nb > 0 {
		c.timerBUnderflow(clk)
	}
	c.ifr.catchUp(clk)
	c.sdr.catchUp(clk)
	c.settle(clk)
}

func (c *Chip) timerAUnderflow(clk int64) {
	log.ModTimer.DebugZ("underflow").String("chip", c.cfg.Name).String("timer", "A").Int64("clk", clk).End()
	c.ifr.setFlag(clk, uint8(hwdefs.TimerA))
	c.sdr.timerUnderflow(clk)

	switch c.regs[CRB] & crbInMask {
	case crbInTA:
		c.tb.pulse()
	case crbInTACNT:
		if c.cntIn {
			c.tb.pulse()
		}
	}
}

func (c *Chip) timerBUnderflow(clk int64) {
	log.ModTimer.DebugZ("underflow").String("chip", c.cfg.Name).String("timer", "B").Int64("clk", clk).End()
	c.ifr.setTimerBFlag(clk)
}

// raise latches an interrupt source and evaluates the interrupt pipeline.
func (c *Chip) raise(clk int64, src hwdefs.IRQSource) {
	clk = max(clk, c.ifr.clk)
	c.ifr.setFlag(clk, uint8(src))
	c.ifr.currentOrNext(clk)
}

// settle evaluates the outputs at clk.
func (c *Chip) settle(clk int64) {
	c.ifr.currentOrNext(clk)
	c.updatePorts(clk)
}

// needTimerAlarm reports whether an underflow of the timer has effects
// visible before the next access.
func (c *Chip) needTimerAlarm(t *timer) bool {
	if t == &c.ta {
		if c.ifr.mask&uint8(hwdefs.TimerA) != 0 || c.regs[CRA]&crPBOn != 0 || c.sdr.busy() {
			return true
		}
		// Timer B counts timer A underflows.
		return c.regs[CRB]&crbInMask >= crbInTA && c.tb.started() && c.needTimerAlarm(&c.tb)
	}
	return c.ifr.mask&uint8(hwdefs.TimerB) != 0 || c.regs[CRB]&crPBOn != 0
}

func (c *Chip) setAlarm(i int, at int64) {
	if at == never {
		c.alarms[i].Unset()
		return
	}
	c.alarms[i].Set(at)
}

// reschedule arms the alarms needed after an evaluation at clk.
func (c *Chip) reschedule(clk int64) {
	if c.state != chipActive {
		return
	}
	ta, tb := never, never
	if c.needTimerAlarm(&c.ta) {
		ta = c.ta.nextUnderflow()
	}
	if c.needTimerAlarm(&c.tb) {
		tb = c.tb.nextUnderflow()
	}
	c.setAlarm(alarmTA, ta)
	c.setAlarm(alarmTB, tb)
	c.setAlarm(alarmSDR, c.sdr.nextEvent())
	c.setAlarm(alarmIFR, c.ifr.currentOrNext(clk))

	if idle := c.alarms[alarmIdle]; !idle.Pending() || idle.At() > clk+c.cfg.IdleHorizon {
		idle.Set(clk + c.cfg.IdleHorizon)
	}
}

// service is the callback of the timer, interrupt and serial alarms.
func (c *Chip) service(at int64) {
	c.runTo(at)
	c.settle(at)
	c.reschedule(at)
}

// idle bounds the amount of catch-up work by running the chip
// periodically.
func (c *Chip) idle(at int64) {
	c.alarms[alarmIdle].Set(at + c.cfg.IdleHorizon)
	c.service(at)
}

func (c *Chip) todTick(at int64) {
	c.runTo(at)

	c.tod.next = at + c.tod.interval()
	c.alarms[alarmTOD].Set(c.tod.next)

	div := uint8(6)
	if c.regs[CRA]&craTOD50 != 0 {
		div = 5
	}
	if c.tod.tick(div) && c.tod.matches() {
		log.ModTOD.DebugZ("alarm").String("chip", c.cfg.Name).Int64("clk", at).End()
		c.raise(at, hwdefs.TODAlarm)
	}
	c.settle(at)
	c.reschedule(at)
}

func (c *Chip) interrupt(asserted bool, clk int64) {
	log.ModIRQ.DebugZ("line").
		String("chip", c.cfg.Name).
		Bool("asserted", asserted).
		Int64("clk", clk).
		End()
	if c.Lines.Interrupt != nil {
		c.Lines.Interrupt(asserted, clk)
	}
}

func (c *Chip) serialDone(clk int64) {
	c.raise(clk, hwdefs.Serial)
}

func (c *Chip) serialClock(cnt, sp bool, clk int64) {
	if c.Lines.SerialClock != nil {
		c.Lines.SerialClock(cnt, sp, clk)
	}
}

// Input lines.

// access runs the chip up to the current cycle before an input line change.
func (c *Chip) access() (int64, bool) {
	if c.state != chipActive {
		return 0, false
	}
	clk := c.sched.Now()
	c.sched.RunDue(clk)
	c.runTo(clk)
	return clk, true
}

func (c *Chip) done(clk int64) {
	c.settle(clk)
	c.reschedule(clk)
}

// SetFlagLine signals a negative edge on the FLAG input.
func (c *Chip) SetFlagLine() {
	clk, ok := c.access()
	if !ok {
		return
	}
	c.raise(clk, hwdefs.Flag)
	c.done(clk)
}

// SetCntLine sets the level of the CNT input. A rising edge counts for the
// timers in CNT mode and shifts a bit in when the serial port is an input.
func (c *Chip) SetCntLine(level bool) {
	clk, ok := c.access()
	if !ok {
		return
	}
	if level && !c.cntIn {
		if c.regs[CRA]&craInCNT != 0 {
			c.ta.pulse()
		}
		if c.regs[CRB]&crbInMask == crbInCNT {
			c.tb.pulse()
		}
		c.sdr.onExternalBit(clk, c.spIn)
	}
	c.cntIn = level
	c.done(clk)
}

// SetSpLine sets the level of the SP input.
func (c *Chip) SetSpLine(level bool) {
	if c.state != chipActive {
		return
	}
	c.spIn = level
}

// SetSerialByte delivers a complete byte on the serial input.
func (c *Chip) SetSerialByte(val uint8) {
	clk, ok := c.access()
	if !ok {
		return
	}
	c.sdr.setSerialByte(clk, val)
	c.done(clk)
}

// Ports.

func (c *Chip) readPA() uint8 {
	in := uint8(0xFF)
	if c.Lines.ReadPA != nil {
		in = c.Lines.ReadPA()
	}
	ddr := c.regs[DDRA]
	return c.regs[PRA]&ddr | in&^ddr
}

func (c *Chip) readPB(clk int64) uint8 {
	in := uint8(0xFF)
	if c.Lines.ReadPB != nil {
		in = c.Lines.ReadPB()
	}
	ddr := c.regs[DDRB]
	return c.timerOutputs(clk, c.regs[PRB]&ddr|in&^ddr)
}

// timerOutputs overrides PB6 and PB7 with the timer outputs, when enabled.
func (c *Chip) timerOutputs(clk int64, pb uint8) uint8 {
	if cr := c.regs[CRA]; cr&crPBOn != 0 {
		pb = setBit8(pb, 6, c.ta.output(clk, cr&crOutToggle != 0))
	}
	if cr := c.regs[CRB]; cr&crPBOn != 0 {
		pb = setBit8(pb, 7, c.tb.output(clk, cr&crOutToggle != 0))
	}
	return pb
}

// updatePorts reports the port outputs if they changed. Input pins float
// high.
func (c *Chip) updatePorts(clk int64) {
	pa := c.regs[PRA] | ^c.regs[DDRA]
	pb := c.timerOutputs(clk, c.regs[PRB]|^c.regs[DDRB])

	if !c.portsValid || pa != c.paOut {
		c.paOut = pa
		if c.Lines.WritePA != nil {
			c.Lines.WritePA(pa)
		}
	}
	if !c.portsValid || pb != c.pbOut {
		c.pbOut = pb
		if c.Lines.WritePB != nil {
			c.Lines.WritePB(pb)
		}
	}
	c.portsValid = true
}

func (c *Chip) pulsePC(clk int64) {
	if c.Lines.PulsePC != nil {
		c.Lines.PulsePC(clk)
	}
}
