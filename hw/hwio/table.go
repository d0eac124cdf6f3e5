package hwio

import (
	"cmp"
	"fmt"
	"slices"

	"ciacore/emu/log"
)

// log unmapped accesses (useful for debugging but verbose: a lot of software
// probes the whole I/O area)
const logUnmapped = false

func Write16(b BankIO8, addr uint16, val uint16) {
	lo := uint8(val & 0xff)
	hi := uint8(val >> 8)
	b.Write8(addr, lo)
	b.Write8(addr+1, hi)
}

func Read16(b BankIO8, addr uint16) uint16 {
	lo := b.Read8(addr)
	hi := b.Read8(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

type area struct {
	begin, end uint16 // inclusive
	io         BankIO8
}

// Table routes bus accesses to the devices mapped on it. Areas never overlap
// and are kept sorted by address.
type Table struct {
	Name string

	// Unmapped, if set, serves accesses to addresses with no device (open bus).
	Unmapped BankIO8

	areas []area
}

func NewTable(name string) *Table {
	t := new(Table)
	t.Name = name
	t.Reset()
	return t
}

func (t *Table) Reset() {
	t.areas = nil
}

func (t *Table) insert(begin, end uint16, io BankIO8) error {
	if end < begin {
		return fmt.Errorf("hwio: invalid area %04x-%04x", begin, end)
	}
	i, _ := slices.BinarySearchFunc(t.areas, begin, func(a area, addr uint16) int {
		return cmp.Compare(a.begin, addr)
	})
	if i > 0 && t.areas[i-1].end >= begin {
		prev := t.areas[i-1]
		return fmt.Errorf("hwio: area %04x-%04x overlaps %04x-%04x", begin, end, prev.begin, prev.end)
	}
	if i < len(t.areas) && t.areas[i].begin <= end {
		next := t.areas[i]
		return fmt.Errorf("hwio: area %04x-%04x overlaps %04x-%04x", begin, end, next.begin, next.end)
	}
	t.areas = slices.Insert(t.areas, i, area{begin, end, io})
	return nil
}

// Map maps io on the inclusive [begin, end] range. Overlapping an area already
// mapped is a programming error and panics.
func (t *Table) Map(begin, end uint16, io BankIO8) {
	if err := t.insert(begin, end, io); err != nil {
		panic(err)
	}
	log.ModHwIo.DebugZ("mapping area").
		Hex16("begin", begin).
		Hex16("end", end).
		String("bus", t.Name).
		End()
}

// MapDevice maps dev on Size bytes starting at addr.
func (t *Table) MapDevice(addr uint16, dev *Device) {
	if dev.Size <= 0 || int(addr)+dev.Size > 0x10000 {
		panic(fmt.Errorf("hwio: device %s: invalid size %d at %04x", dev.Name, dev.Size, addr))
	}
	log.ModHwIo.DebugZ("mapping device").
		Hex16("addr", addr).
		Int("size", dev.Size).
		String("dev", dev.Name).
		String("bus", t.Name).
		End()
	t.Map(addr, addr+uint16(dev.Size-1), dev)
}

// Unmap removes every area fully contained in [begin, end].
func (t *Table) Unmap(begin, end uint16) {
	t.areas = slices.DeleteFunc(t.areas, func(a area) bool {
		return a.begin >= begin && a.end <= end
	})
}

func (t *Table) search(addr uint16) BankIO8 {
	i, found := slices.BinarySearchFunc(t.areas, addr, func(a area, addr uint16) int {
		return cmp.Compare(a.begin, addr)
	})
	if found {
		return t.areas[i].io
	}
	if i > 0 && t.areas[i-1].end >= addr {
		return t.areas[i-1].io
	}
	return nil
}

// Read8 searches in the table for the device mapped at the given address and
// forward the read to it.
func (t *Table) Read8(addr uint16) uint8 {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Read8").
				String("name", t.Name).
				Hex16("addr", addr).
				End()
		}
		if t.Unmapped != nil {
			return t.Unmapped.Read8(addr)
		}
		return 0
	}
	return io.Read8(addr)
}

func (t *Table) Peek8(addr uint16) uint8 {
	io := t.search(addr)
	if io == nil {
		if t.Unmapped != nil {
			return t.Unmapped.Peek8(addr)
		}
		return 0
	}
	return io.Peek8(addr)
}

func (t *Table) Write8(addr uint16, val uint8) {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Write8").
				String("name", t.Name).
				Hex16("addr", addr).
				Hex8("val", val).
				End()
		}
		if t.Unmapped != nil {
			t.Unmapped.Write8(addr, val)
		}
		return
	}
	io.Write8(addr, val)
}
