package hwio

import "ciacore/emu/log"

type RWFlags uint8

const (
	ReadWriteFlag RWFlags = 0
	ReadOnlyFlag  RWFlags = (1 << iota)
	WriteOnlyFlag
)

// BankIO8 is implemented by anything that can be mapped on a Table.
type BankIO8 interface {
	Read8(addr uint16) uint8
	// Peek8 reads a byte without side effects (debugging/tracing).
	Peek8(addr uint16) uint8
	Write8(addr uint16, val uint8)
}

// Device is a BankIO8 implementation that allows manual management of an entire
// range of memory. Callbacks receive the address masked with Mask, so a device
// with fewer registers than its mapped size is mirrored over the whole range.
type Device struct {
	Name  string // name of the memory area (for debugging)
	Size  int    // size of the memory area
	Mask  uint16 // address mask applied before the callbacks, 0 means none
	Flags RWFlags

	ReadCb  func(addr uint16) uint8
	PeekCb  func(addr uint16) uint8
	WriteCb func(addr uint16, val uint8)
}

func (d *Device) offset(addr uint16) uint16 {
	if d.Mask == 0 {
		return addr
	}
	return addr & d.Mask
}

func (d *Device) Read8(addr uint16) uint8 {
	switch {
	case d.Flags&WriteOnlyFlag != 0:
		log.ModHwIo.ErrorZ("invalid Read8 from writeonly device").
			String("name", d.Name).
			Hex16("addr", addr).
			End()
		fallthrough
	case d.ReadCb == nil:
		return 0
	}
	return d.ReadCb(d.offset(addr))
}

func (d *Device) Peek8(addr uint16) uint8 {
	if d.PeekCb != nil {
		return d.PeekCb(d.offset(addr))
	}
	return 0
}

func (d *Device) Write8(addr uint16, val uint8) {
	switch {
	case d.Flags&ReadOnlyFlag != 0:
		log.ModHwIo.ErrorZ("invalid Write8 to readonly device").
			String("name", d.Name).
			Hex16("addr", addr).
			End()
		fallthrough
	case d.WriteCb == nil:
		return
	}

	d.WriteCb(d.offset(addr), val)
}
