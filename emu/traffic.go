package emu

import (
	"math/rand/v2"

	"ciacore/hw/cia"
)

type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessCNT    // Val bit 0 is the level
	AccessFlag   // FLAG negative edge
	AccessSP     // Val bit 0 is the level
	AccessSerial // whole byte on the serial input
)

// Access is one step of synthetic traffic: run Delay cycles, then perform the
// access. Line accesses target the chip whose page contains Addr.
type Access struct {
	Delay int64
	Kind  AccessKind
	Addr  uint16
	Val   uint8
}

// RandomTraffic generates accesses spanning at least the given number of
// cycles, hitting both chips through all their mirrors. Timer latches are
// kept below 512 so that underflows, serial transfers and interrupts happen
// often.
func RandomTraffic(rng *rand.Rand, cycles int64) []Access {
	kinds := [...]AccessKind{
		AccessRead, AccessRead, AccessRead, AccessRead, AccessRead,
		AccessWrite, AccessWrite, AccessWrite,
		AccessCNT, AccessFlag, AccessSP, AccessSerial,
	}

	var accs []Access
	for total := int64(0); total < cycles; {
		base := uint16(CIA1Base)
		if rng.IntN(2) == 1 {
			base = CIA2Base
		}
		reg := uint8(rng.IntN(cia.NumRegs))
		a := Access{
			Delay: 1 + rng.Int64N(12),
			Kind:  kinds[rng.IntN(len(kinds))],
			Addr:  base + uint16(rng.IntN(ciaPage/cia.NumRegs))*cia.NumRegs + uint16(reg),
			Val:   uint8(rng.Uint32()),
		}
		if reg == cia.TAHI || reg == cia.TBHI {
			a.Val &= 0x01
		}
		total += a.Delay
		accs = append(accs, a)
	}
	return accs
}

// Apply performs one access. It returns the value read, if any.
func (m *Machine) Apply(a Access) (uint8, bool) {
	m.Run(a.Delay)

	chip := m.CIA1
	if a.Addr&^(ciaPage-1) == CIA2Base {
		chip = m.CIA2
	}
	switch a.Kind {
	case AccessRead:
		return m.Read8(a.Addr), true
	case AccessWrite:
		m.Write8(a.Addr, a.Val)
	case AccessCNT:
		chip.SetCntLine(a.Val&1 != 0)
	case AccessFlag:
		chip.SetFlagLine()
	case AccessSP:
		chip.SetSpLine(a.Val&1 != 0)
	case AccessSerial:
		chip.SetSerialByte(a.Val)
	}
	return 0, false
}
