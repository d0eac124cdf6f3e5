package emu

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// Script is a list of timed bus accesses and input line changes, run against
// a machine by the trace command:
//
//	until = 2000
//
//	[[op]]
//	at = 0
//	op = "write"
//	addr = 0xDC04
//	val = 10
//
//	[[op]]
//	at = 100
//	op = "cnt"
//	chip = 1
//	level = false
type Script struct {
	Until int64 `toml:"until"` // keep running until that cycle after the last op
	Ops   []Op  `toml:"op"`
}

type Op struct {
	At    int64  `toml:"at"`
	Op    string `toml:"op"` // read | peek | write | cnt | sp | flag | serial
	Addr  uint16 `toml:"addr"`
	Val   uint8  `toml:"val"`
	Chip  int    `toml:"chip"` // 1 or 2, for line operations
	Level bool   `toml:"level"`
}

var scriptOps = map[string]bool{
	"read": false, "peek": false, "write": false,
	"cnt": true, "sp": true, "flag": true, "serial": true,
}

// LoadScript decodes and validates a script.
func LoadScript(r io.Reader) (*Script, error) {
	var s Script
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	var last int64
	for i, op := range s.Ops {
		line, ok := scriptOps[op.Op]
		switch {
		case !ok:
			return nil, fmt.Errorf("script: op %d: unknown operation %q", i, op.Op)
		case op.At < last:
			return nil, fmt.Errorf("script: op %d: cycle %d before previous op (%d)", i, op.At, last)
		case line && op.Chip != 1 && op.Chip != 2:
			return nil, fmt.Errorf("script: op %d: invalid chip %d", i, op.Chip)
		}
		last = op.At
	}
	return &s, nil
}

// RunScript runs s from the current cycle, s cycles being relative to it.
// Reads and interrupt line changes are printed to w.
func (m *Machine) RunScript(s *Script, w io.Writer) error {
	start := m.Sched.Now()

	prevIRQ, prevNMI := m.OnIRQ, m.OnNMI
	defer func() { m.OnIRQ, m.OnNMI = prevIRQ, prevNMI }()

	var werr error
	printf := func(format string, args ...any) {
		if werr == nil {
			_, werr = fmt.Fprintf(w, format, args...)
		}
	}
	m.OnIRQ = func(asserted bool, clk int64) { printf("%8d irq   %s\n", clk-start, level(asserted)) }
	m.OnNMI = func(asserted bool, clk int64) { printf("%8d nmi   %s\n", clk-start, level(asserted)) }

	for _, op := range s.Ops {
		m.Run(start + op.At - m.Sched.Now())

		chip := m.CIA1
		if op.Chip == 2 {
			chip = m.CIA2
		}
		switch op.Op {
		case "read":
			printf("%8d read  $%04X = $%02X\n", op.At, op.Addr, m.Read8(op.Addr))
		case "peek":
			printf("%8d peek  $%04X = $%02X\n", op.At, op.Addr, m.Peek8(op.Addr))
		case "write":
			m.Write8(op.Addr, op.Val)
		case "cnt":
			chip.SetCntLine(op.Level)
		case "sp":
			chip.SetSpLine(op.Level)
		case "flag":
			chip.SetFlagLine()
		case "serial":
			chip.SetSerialByte(op.Val)
		}
		if werr != nil {
			return werr
		}
	}

	if end := start + s.Until; end > m.Sched.Now() {
		m.Run(end - m.Sched.Now())
	}
	return werr
}

func level(asserted bool) string {
	if asserted {
		return "low" // active low
	}
	return "high"
}
