package cia

import "unsafe"

// Avoid branches. In the SSA compiler, this compiles to
// exactly what you would want it to.

func b2u8(x bool) uint8   { return *(*uint8)(unsafe.Pointer(&x)) }
func b2u16(x bool) uint16 { return uint16(*(*uint8)(unsafe.Pointer(&x))) }

// setBit8 forces bit n of v to the given level.
func setBit8(v uint8, n uint, level bool) uint8 {
	return v&^(1<<n) | b2u8(level)<<n
}
