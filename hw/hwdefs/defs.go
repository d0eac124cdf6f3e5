package hwdefs

import "strings"

// IRQSource is a CIA interrupt source, as laid out in the ICR.
type IRQSource uint8

const (
	TimerA IRQSource = 1 << iota
	TimerB
	TODAlarm
	Serial
	Flag

	numSources = 5
)

// IR is ICR bit 7: set when any unmasked source is pending.
const IR IRQSource = 0x80

var irqSrcNames = [numSources]string{
	"ta",
	"tb",
	"tod",
	"sdr",
	"flg",
}

func (irq IRQSource) String() string {
	var names []string
	for i := range numSources {
		if irq&(1<<i) != 0 {
			names = append(names, irqSrcNames[i])
		}
	}
	if irq&IR != 0 {
		names = append(names, "ir")
	}
	return strings.Join(names, "|")
}

const (
	SoftReset = true
	HardReset = false
)

// Video standards, they set the CPU clock and the mains frequency feeding the
// TOD pin.
const (
	PALCPUClock  = 985248
	NTSCCPUClock = 1022727

	PALLineHz  = 50
	NTSCLineHz = 60
)
