package cia

// Register offsets, the chip decodes the 4 low address bits.
const (
	PRA     = 0x0 // port A data
	PRB     = 0x1 // port B data
	DDRA    = 0x2 // port A direction
	DDRB    = 0x3 // port B direction
	TALO    = 0x4 // timer A low byte
	TAHI    = 0x5 // timer A high byte
	TBLO    = 0x6 // timer B low byte
	TBHI    = 0x7 // timer B high byte
	TOD10TH = 0x8 // TOD tenths of seconds
	TODSEC  = 0x9 // TOD seconds
	TODMIN  = 0xA // TOD minutes
	TODHR   = 0xB // TOD hours and AM/PM
	SDR     = 0xC // serial data
	ICR     = 0xD // interrupt control
	CRA     = 0xE // control A
	CRB     = 0xF // control B

	NumRegs = 16
)

var regNames = [NumRegs]string{
	"PRA", "PRB", "DDRA", "DDRB",
	"TALO", "TAHI", "TBLO", "TBHI",
	"TOD10TH", "TODSEC", "TODMIN", "TODHR",
	"SDR", "ICR", "CRA", "CRB",
}

// RegName returns the mnemonic of a register offset.
func RegName(addr uint8) string {
	return regNames[addr&0x0F]
}

// Control register bits shared by CRA and CRB.
const (
	crStart     = 0x01
	crPBOn      = 0x02 // timer output on PB6 (A) or PB7 (B)
	crOutToggle = 0x04 // 1: toggle, 0: pulse
	crRunMode   = 0x08 // 1: one-shot, 0: continuous
	crForceLoad = 0x10 // strobe
)

// CRA only.
const (
	craInCNT = 0x20 // timer A counts positive CNT edges
	craSPOut = 0x40 // serial port is output
	craTOD50 = 0x80 // TOD pin is 50Hz
)

// CRB only.
const (
	crbInMask  = 0x60
	crbInPhi2  = 0x00
	crbInCNT   = 0x20
	crbInTA    = 0x40
	crbInTACNT = 0x60
	crbAlarm   = 0x80 // TOD writes set the alarm
)

// ICR write bit 7.
const icrSet = 0x80
