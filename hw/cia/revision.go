package cia

import (
	"fmt"
	"strings"
)

//go:generate stringer -type=Revision -trimprefix=Rev

// Revision selects the silicon revision, it drives the interrupt, serial and
// acknowledge latencies.
type Revision uint8

const (
	Rev6526 Revision = iota // original NMOS part
	Rev8521                 // later HMOS-II part, also 6526A
)

// timing holds the latencies (in cycles) of a revision.
type timing struct {
	irqDelay  uint // flag set to IRQ line asserted
	d7Delay   uint // flag set to ICR bit 7 visible
	ackDelay  uint // ICR read to flags cleared
	sdrDelay  uint // last CNT toggle to SDR flag
	timerBBug bool // timer B underflow lost right after an ICR read
}

var timings = [...]timing{
	Rev6526: {irqDelay: 1, d7Delay: 1, ackDelay: 1, sdrDelay: 2, timerBBug: true},
	Rev8521: {irqDelay: 0, d7Delay: 0, ackDelay: 1, sdrDelay: 1},
}

// ParseRevision accepts the part name, "6526" or "8521" ("6526a" is an
// alias of the latter).
func ParseRevision(s string) (Revision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "6526", "":
		return Rev6526, nil
	case "8521", "6526a":
		return Rev8521, nil
	}
	return 0, fmt.Errorf("unknown CIA revision %q", s)
}

func (r Revision) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Revision) UnmarshalText(text []byte) error {
	rev, err := ParseRevision(string(text))
	if err != nil {
		return err
	}
	*r = rev
	return nil
}
