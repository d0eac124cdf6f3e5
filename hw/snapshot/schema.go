package snapshot

import (
	"slices"

	"github.com/go-faster/jx"
)

// Schema history:
//   - v1: initial layout.
//   - v2: SDR force-finish flag, TOD tick accumulator and jitter state.

var timerSchema = []field[Timer]{
	u16("latch", 1, func(s *Timer) *uint16 { return &s.Latch }),
	u16("counter", 1, func(s *Timer) *uint16 { return &s.Counter }),
	u16("state", 1, func(s *Timer) *uint16 { return &s.State }),
	i64("clock", 1, func(s *Timer) *int64 { return &s.Clock }),
	i64("last_underflow", 1, func(s *Timer) *int64 { return &s.LastUnderflow }),
	i64("alarm", 1, func(s *Timer) *int64 { return &s.Alarm }),
}

var ifrSchema = []field[IFR]{
	u8("flags", 1, func(s *IFR) *uint8 { return &s.Flags }),
	u8("new_flags", 1, func(s *IFR) *uint8 { return &s.NewFlags }),
	u8("ack_flags", 1, func(s *IFR) *uint8 { return &s.AckFlags }),
	u8("mask", 1, func(s *IFR) *uint8 { return &s.Mask }),
	u32("delay", 1, func(s *IFR) *uint32 { return &s.Delay }),
	i64("clock", 1, func(s *IFR) *int64 { return &s.Clock }),
	flag("line", 1, func(s *IFR) *bool { return &s.Line }),
	i64("line_clock", 1, func(s *IFR) *int64 { return &s.LineClock }),
}

var sdrSchema = []field[SDR]{
	u8("counter", 1, func(s *SDR) *uint8 { return &s.Counter }),
	u16("shift", 1, func(s *SDR) *uint16 { return &s.Shift }),
	u8("data", 1, func(s *SDR) *uint8 { return &s.Data }),
	flag("data_valid", 1, func(s *SDR) *bool { return &s.DataValid }),
	flag("output", 1, func(s *SDR) *bool { return &s.Output }),
	flag("cnt", 1, func(s *SDR) *bool { return &s.CNT }),
	flag("sp", 1, func(s *SDR) *bool { return &s.SP }),
	u32("delay", 1, func(s *SDR) *uint32 { return &s.Delay }),
	i64("clock", 1, func(s *SDR) *int64 { return &s.Clock }),
	flag("force_finish", 2, func(s *SDR) *bool { return &s.ForceFinish }),
}

var todSchema = []field[TOD]{
	u8s("clock", 1, func(s *TOD) []uint8 { return s.Clock[:] }),
	u8s("latch", 1, func(s *TOD) []uint8 { return s.Latch[:] }),
	u8s("alarm", 1, func(s *TOD) []uint8 { return s.Alarm[:] }),
	flag("latched", 1, func(s *TOD) *bool { return &s.Latched }),
	flag("stopped", 1, func(s *TOD) *bool { return &s.Stopped }),
	u8("ticks", 1, func(s *TOD) *uint8 { return &s.Ticks }),
	i64("next", 1, func(s *TOD) *int64 { return &s.Next }),
	i64("frac_acc", 2, func(s *TOD) *int64 { return &s.FracAcc }),
	u32("rng", 2, func(s *TOD) *uint32 { return &s.Rng }),
}

var ciaSchema = slices.Concat(
	[]field[CIA]{
		u8s("regs", 1, func(s *CIA) []uint8 { return s.Regs[:] }),
	},
	nest("ta", func(s *CIA) *Timer { return &s.TimerA }, timerSchema),
	nest("tb", func(s *CIA) *Timer { return &s.TimerB }, timerSchema),
	nest("ifr", func(s *CIA) *IFR { return &s.IFR }, ifrSchema),
	nest("sdr", func(s *CIA) *SDR { return &s.SDR }, sdrSchema),
	nest("tod", func(s *CIA) *TOD { return &s.TOD }, todSchema),
	[]field[CIA]{
		flag("cnt", 1, func(s *CIA) *bool { return &s.CNT }),
		flag("sp", 1, func(s *CIA) *bool { return &s.SP }),
		u8("port_a", 1, func(s *CIA) *uint8 { return &s.PortA }),
		u8("port_b", 1, func(s *CIA) *uint8 { return &s.PortB }),
		flag("ports_valid", 1, func(s *CIA) *bool { return &s.PortsValid }),
	},
)

func ciaField(name string, p func(*Machine) **CIA) field[Machine] {
	return field[Machine]{
		name:  name,
		since: 1,
		enc:   func(e *jx.Encoder, m *Machine) { encodeCIA(e, *p(m)) },
		dec: func(d *jx.Decoder, m *Machine) (err error) {
			*p(m), err = decodeCIA(d)
			return err
		},
	}
}

var machineSchema = []field[Machine]{
	i64("clock", 1, func(m *Machine) *int64 { return &m.Clock }),
	flag("nmi", 1, func(m *Machine) *bool { return &m.NMI }),
	ciaField("cia1", func(m *Machine) **CIA { return &m.CIA1 }),
	ciaField("cia2", func(m *Machine) **CIA { return &m.CIA2 }),
}
