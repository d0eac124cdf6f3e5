package emu

import (
	"io"

	"ciacore/emu/log"
	"ciacore/hw/cia"
	"ciacore/hw/hwio"
	"ciacore/hw/sched"
	"ciacore/hw/snapshot"
)

// I/O area of the two CIAs. Each chip decodes 4 address lines, its 16
// registers repeat over the whole page.
const (
	CIA1Base = 0xDC00
	CIA2Base = 0xDD00
	ciaPage  = 0x100
)

// Machine wires two CIAs the way a C64 does: both on the I/O bus, CIA1 on
// the IRQ line and CIA2 on the NMI line, sharing one scheduler.
type Machine struct {
	Sched *sched.Context
	Bus   *hwio.Table
	CIA1  *cia.Chip
	CIA2  *cia.Chip

	// Optional observers of the processor interrupt inputs.
	OnIRQ func(asserted bool, clk int64)
	OnNMI func(asserted bool, clk int64)

	cfg Config

	irq, nmi       bool
	irqClk, nmiClk int64
	nmiEdges       int
	cia2PA         uint8
}

// NewMachine builds a machine and resets it.
func NewMachine(cfg Config) *Machine {
	cfg.Check()
	m := &Machine{cfg: cfg}
	m.build()
	m.Reset()
	return m
}

// build creates the scheduler, the chips and the bus. Chips start disabled.
func (m *Machine) build() {
	m.Sched = sched.NewContext()
	m.CIA1 = cia.New(m.cfg.chipConfig("cia1", m.cfg.Machine.CIA1Model), m.Sched)
	m.CIA2 = cia.New(m.cfg.chipConfig("cia2", m.cfg.Machine.CIA2Model), m.Sched)

	m.CIA1.Lines.Interrupt = m.setIRQ
	m.CIA2.Lines.Interrupt = m.setNMI
	m.CIA2.Lines.WritePA = func(val uint8) { m.cia2PA = val }

	m.Bus = hwio.NewTable("io")
	m.Bus.MapDevice(CIA1Base, chipDevice(m.CIA1))
	m.Bus.MapDevice(CIA2Base, chipDevice(m.CIA2))
}

func chipDevice(c *cia.Chip) *hwio.Device {
	return &hwio.Device{
		Name:    c.Name(),
		Size:    ciaPage,
		Mask:    cia.NumRegs - 1,
		ReadCb:  func(addr uint16) uint8 { return c.Read(uint8(addr)) },
		PeekCb:  func(addr uint16) uint8 { return c.Peek(uint8(addr)) },
		WriteCb: func(addr uint16, val uint8) { c.Write(uint8(addr), val) },
	}
}

func (m *Machine) Config() Config { return m.cfg }

// Reset resets both chips at the current cycle.
func (m *Machine) Reset() {
	m.irq, m.nmi = false, false
	m.irqClk, m.nmiClk = m.Sched.Now(), m.Sched.Now()
	m.nmiEdges = 0
	m.CIA1.Reset()
	m.CIA2.Reset()
}

// Run advances the machine by n cycles, firing the chip alarms on the way.
func (m *Machine) Run(n int64) {
	m.Sched.Advance(n)
}

func (m *Machine) Now() int64 { return m.Sched.Now() }

func (m *Machine) Read8(addr uint16) uint8       { return m.Bus.Read8(addr) }
func (m *Machine) Peek8(addr uint16) uint8       { return m.Bus.Peek8(addr) }
func (m *Machine) Write8(addr uint16, val uint8) { m.Bus.Write8(addr, val) }

// IRQ returns the level of the IRQ line and the cycle its last assertion
// took (or takes) effect.
func (m *Machine) IRQ() (bool, int64) { return m.irq, m.irqClk }

// NMI returns the level of the NMI line and the cycle its last assertion
// took (or takes) effect.
func (m *Machine) NMI() (bool, int64) { return m.nmi, m.nmiClk }

// NMIEdges returns the number of NMI falling edges (line assertions) since
// the last reset.
func (m *Machine) NMIEdges() int { return m.nmiEdges }

// VICBank returns the video bank selected by CIA2 port A bits 0-1.
func (m *Machine) VICBank() uint8 { return ^m.cia2PA & 0x03 }

func (m *Machine) setIRQ(asserted bool, clk int64) {
	m.irq = asserted
	if asserted {
		m.irqClk = clk
	}
	if m.OnIRQ != nil {
		m.OnIRQ(asserted, clk)
	}
}

// setNMI counts edges. An assertion revoked before it took effect is not an
// edge.
func (m *Machine) setNMI(asserted bool, clk int64) {
	switch {
	case asserted && !m.nmi:
		m.nmiEdges++
	case !asserted && m.nmi && clk < m.nmiClk:
		m.nmiEdges--
	}
	m.nmi = asserted
	if asserted {
		m.nmiClk = clk
	}
	if m.OnNMI != nil {
		m.OnNMI(asserted, clk)
	}
}

// AddLogContext stamps log entries with the machine cycle.
//
// Implements log.Context interface.
func (m *Machine) AddLogContext(e *log.EntryZ) {
	e.Int64("clk", m.Sched.Now())
}

// State returns a snapshot of the machine, chips brought to the current
// cycle.
func (m *Machine) State() *snapshot.Machine {
	return &snapshot.Machine{
		Version: snapshot.Version,
		Clock:   m.Sched.Now(),
		CIA1:    m.CIA1.State(),
		CIA2:    m.CIA2.State(),
		NMI:     m.nmi,
	}
}

func (m *Machine) SaveState(w io.Writer) error {
	return snapshot.EncodeMachine(w, m.State())
}

// LoadState restores a machine snapshot. The chips are replaced when the
// snapshot is older than the current cycle, since the clock only moves
// forward. On failure the machine is reset.
func (m *Machine) LoadState(r io.Reader) error {
	state, err := snapshot.DecodeMachine(r)
	if err != nil {
		log.ModSnap.WarnZ("machine load failed, resetting").
			Error("err", err).
			End()
		m.Reset()
		return err
	}

	if state.Clock < m.Sched.Now() {
		m.build()
	}
	m.Sched.SetNow(state.Clock)

	m.irq, m.irqClk = state.CIA1.IFR.Line, state.CIA1.IFR.LineClock
	m.nmi, m.nmiClk = state.NMI, state.CIA2.IFR.LineClock
	m.nmiEdges = 0
	m.cia2PA = state.CIA2.PortA
	m.CIA1.SetState(state.CIA1)
	m.CIA2.SetState(state.CIA2)

	log.ModSnap.InfoZ("machine state loaded").
		Int64("clk", state.Clock).
		Int("version", state.Version).
		End()
	return nil
}
