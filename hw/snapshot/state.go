package snapshot

// Version is the schema version written by Encode. Older versions listed in
// the schema can still be loaded.
const Version = 2

type Machine struct {
	Version int
	Clock   int64
	CIA1    *CIA
	CIA2    *CIA
	NMI     bool
}

type CIA struct {
	Version int
	Regs    [16]uint8

	TimerA Timer
	TimerB Timer
	IFR    IFR
	SDR    SDR
	TOD    TOD

	CNT        bool // CNT input level
	SP         bool // SP input level
	PortA      uint8
	PortB      uint8
	PortsValid bool
}

type Timer struct {
	Latch         uint16
	Counter       uint16
	State         uint16
	Clock         int64
	LastUnderflow int64
	Alarm         int64
}

type IFR struct {
	Flags     uint8
	NewFlags  uint8
	AckFlags  uint8
	Mask      uint8
	Delay     uint32
	Clock     int64
	Line      bool
	LineClock int64
}

type SDR struct {
	Counter     uint8
	Shift       uint16
	Data        uint8
	DataValid   bool
	ForceFinish bool // since v2
	Output      bool
	CNT         bool
	SP          bool
	Delay       uint32
	Clock       int64
}

type TOD struct {
	Clock   [4]uint8
	Latch   [4]uint8
	Alarm   [4]uint8
	Latched bool
	Stopped bool
	Ticks   uint8
	FracAcc int64  // since v2
	Rng     uint32 // since v2
	Next    int64
}
