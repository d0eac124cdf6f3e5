package cia

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestTOD() *tod {
	var t tod
	t.configure(985248, 50, false)
	t.reset(0)
	return &t
}

// tenths runs n tenths of second at the 60Hz divider.
func tenths(t *tod, n int) (matches int) {
	for range n * 6 {
		if t.tick(6) && t.matches() {
			matches++
		}
	}
	return matches
}

func TestTODRollover(t *testing.T) {
	tests := []struct {
		name  string
		start [4]uint8
		want  [4]uint8
	}{
		{"tenths", [4]uint8{0, 0, 0, 0x01}, [4]uint8{1, 0, 0, 0x01}},
		{"seconds", [4]uint8{9, 0x09, 0, 0x01}, [4]uint8{0, 0x10, 0, 0x01}},
		{"minute", [4]uint8{9, 0x59, 0x00, 0x01}, [4]uint8{0, 0, 0x01, 0x01}},
		{"hour", [4]uint8{9, 0x59, 0x59, 0x09}, [4]uint8{0, 0, 0, 0x10}},
		{"11am to 12pm", [4]uint8{9, 0x59, 0x59, 0x11}, [4]uint8{0, 0, 0, 0x92}},
		{"11pm to 12am", [4]uint8{9, 0x59, 0x59, 0x91}, [4]uint8{0, 0, 0, 0x12}},
		{"12pm to 1pm", [4]uint8{9, 0x59, 0x59, 0x92}, [4]uint8{0, 0, 0, 0x81}},
		{"12am to 1am", [4]uint8{9, 0x59, 0x59, 0x12}, [4]uint8{0, 0, 0, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestTOD()
			c.clock = tt.start
			c.advance()
			if diff := cmp.Diff(tt.want, c.clock); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTODDivider(t *testing.T) {
	c := newTestTOD()
	for i := range 5 {
		if c.tick(6) {
			t.Fatalf("tenth incremented after %d ticks", i+1)
		}
	}
	if !c.tick(6) {
		t.Fatal("tenth not incremented after 6 ticks")
	}
	for range 4 {
		c.tick(5)
	}
	if !c.tick(5) {
		t.Fatal("tenth not incremented after 5 ticks at 50Hz")
	}
	if c.clock[todTenths] != 2 {
		t.Errorf("tenths = %d, want 2", c.clock[todTenths])
	}
}

func TestTODLatch(t *testing.T) {
	c := newTestTOD()
	c.clock = [4]uint8{5, 0x30, 0x15, 0x03}

	if got := c.read(todHr); got != 0x03 {
		t.Fatalf("hours = %02x, want 03", got)
	}
	tenths(c, 12)
	if got := c.read(todSec); got != 0x30 {
		t.Errorf("latched seconds = %02x, want 30", got)
	}
	if got := c.read(todTenths); got != 5 {
		t.Errorf("latched tenths = %d, want 5", got)
	}
	// Reading tenths released the latch.
	if got := c.read(todSec); got != 0x31 {
		t.Errorf("seconds after unlatch = %02x, want 31", got)
	}
	if got := c.peek(todTenths); got != 7 {
		t.Errorf("tenths after unlatch = %d, want 7", got)
	}
}

func TestTODStopRestart(t *testing.T) {
	c := newTestTOD()
	c.write(todHr, 0x02, false)
	if !c.stopped {
		t.Fatal("writing hours did not stop the clock")
	}
	tenths(c, 10)
	c.write(todMin, 0x10, false)
	c.write(todSec, 0x20, false)
	if c.clock[todTenths] != 0 {
		t.Errorf("stopped clock moved: %v", c.clock)
	}
	c.write(todTenths, 0x03, false)
	if c.stopped {
		t.Fatal("writing tenths did not restart the clock")
	}
	tenths(c, 1)
	if want := [4]uint8{4, 0x20, 0x10, 0x02}; c.clock != want {
		t.Errorf("clock = %v, want %v", c.clock, want)
	}
}

func TestTODWriteMasksAndPMFlip(t *testing.T) {
	c := newTestTOD()
	c.write(todTenths, 0xFF, false)
	c.write(todSec, 0xFF, false)
	c.write(todMin, 0xFF, false)
	if c.clock[todTenths] != 0x0F || c.clock[todSec] != 0x7F || c.clock[todMin] != 0x7F {
		t.Errorf("masks not applied: %v", c.clock)
	}

	c.write(todHr, 0x12, false)
	if c.clock[todHr] != 0x92 {
		t.Errorf("writing 12am: hours = %02x, want 92", c.clock[todHr])
	}
	c.write(todHr, 0x92, false)
	if c.clock[todHr] != 0x12 {
		t.Errorf("writing 12pm: hours = %02x, want 12", c.clock[todHr])
	}
	c.write(todHr, 0xFF, false)
	if c.clock[todHr] != 0x9F {
		t.Errorf("hours = %02x, want 9f", c.clock[todHr])
	}

	// Alarm writes do not flip PM.
	c.write(todHr, 0x12, true)
	if c.alarm[todHr] != 0x12 {
		t.Errorf("alarm hours = %02x, want 12", c.alarm[todHr])
	}
}

func TestTODAlarmMatchesOnce(t *testing.T) {
	c := newTestTOD()
	c.write(todHr, 0x01, false)
	c.write(todMin, 0x00, false)
	c.write(todSec, 0x00, false)
	c.write(todTenths, 0x00, false)

	if c.write(todTenths, 0x01, true) || c.write(todSec, 0x00, true) ||
		c.write(todMin, 0x00, true) || c.write(todHr, 0x01, true) {
		t.Fatal("alarm matched before the tick")
	}
	if got := tenths(c, 1); got != 1 {
		t.Fatalf("matches after the boundary tick = %d, want 1", got)
	}
	if got := tenths(c, 100); got != 0 {
		t.Errorf("matches on following ticks = %d, want 0", got)
	}
}

func TestTODInterval(t *testing.T) {
	c := newTestTOD()
	// 985248 cycles per second at 50Hz: 19704.96 cycles per tick.
	var total int64
	for range 50 {
		total += c.interval()
	}
	if total != 985248 {
		t.Errorf("50 ticks last %d cycles, want 985248", total)
	}

	c.configure(985248, 50, true)
	for range 1000 {
		if p := c.interval(); p < 19703 || p > 19706 {
			t.Fatalf("jittered interval %d out of range", p)
		}
	}
}
