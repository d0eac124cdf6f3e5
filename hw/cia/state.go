package cia

import (
	"io"

	"ciacore/emu/log"
	"ciacore/hw/snapshot"
)

// State returns the chip state, brought to the current cycle.
func (c *Chip) State() *snapshot.CIA {
	if c.state == chipActive {
		clk := max(c.sched.Now(), c.evaluated())
		c.runTo(clk)
		c.settle(clk)
		c.reschedule(clk)
	}

	var state snapshot.CIA
	state.Version = snapshot.Version
	state.Regs = c.regs
	c.ta.saveState(&state.TimerA)
	c.tb.saveState(&state.TimerB)
	c.ifr.saveState(&state.IFR)
	c.sdr.saveState(&state.SDR)
	c.tod.saveState(&state.TOD)
	state.CNT = c.cntIn
	state.SP = c.spIn
	state.PortA = c.paOut
	state.PortB = c.pbOut
	state.PortsValid = c.portsValid
	return &state
}

// SetState restores a chip state and activates the chip. The scheduler clock
// must not be behind the state.
func (c *Chip) SetState(state *snapshot.CIA) {
	c.regs = state.Regs
	c.ta.setState(&state.TimerA)
	c.tb.setState(&state.TimerB)
	c.ifr.setState(&state.IFR)
	c.sdr.setState(&state.SDR)
	c.tod.setState(&state.TOD)
	c.cntIn = state.CNT
	c.spIn = state.SP
	c.paOut = state.PortA
	c.pbOut = state.PortB
	c.portsValid = state.PortsValid
	c.state = chipActive

	if state.Version < 2 {
		// Older snapshots do not carry the jitter generator.
		c.tod.rng = 0x2545F491
	}

	for _, a := range c.alarms {
		a.Unset()
	}
	clk := max(c.sched.Now(), c.evaluated())
	if c.tod.next < clk {
		c.tod.next = clk
	}
	c.alarms[alarmTOD].Set(c.tod.next)
	c.alarms[alarmIdle].Set(clk + c.cfg.IdleHorizon)
	c.reschedule(c.evaluated())
}

// SaveState writes a snapshot of the chip.
func (c *Chip) SaveState(w io.Writer) error {
	return snapshot.EncodeCIA(w, c.State())
}

// LoadState restores the chip from a snapshot. The snapshot is entirely
// decoded before the chip is touched. On failure the chip is reset, so it is
// never left with a mix of old and new state.
func (c *Chip) LoadState(r io.Reader) error {
	state, err := snapshot.DecodeCIA(r)
	if err != nil {
		log.ModSnap.WarnZ("load failed, resetting").
			String("chip", c.cfg.Name).
			Error("err", err).
			End()
		c.Reset()
		return err
	}
	c.SetState(state)
	return nil
}
