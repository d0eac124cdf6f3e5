package cia

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type serialEvent struct {
	CNT, SP bool
	Clk     int64
}

type sdrRecorder struct {
	irqs   []int64
	clocks []serialEvent
}

func newTestSDR(rev Revision) (*sdr, *sdrRecorder) {
	tm := timings[rev]
	rec := &sdrRecorder{}
	s := &sdr{
		tm:  &tm,
		irq: func(clk int64) { rec.irqs = append(rec.irqs, clk) },
		clock: func(cnt, sp bool, clk int64) {
			rec.clocks = append(rec.clocks, serialEvent{cnt, sp, clk})
		},
	}
	s.reset(0)
	return s, rec
}

// underflows feeds timer A underflows every 10 cycles starting at from.
func underflows(s *sdr, from int64, n int) int64 {
	clk := from
	for range n {
		s.timerUnderflow(clk)
		clk += 10
	}
	return clk
}

func TestSDROutputByte(t *testing.T) {
	s, rec := newTestSDR(Rev6526)
	s.setMode(0, true)
	s.feed(0, 0xA5)
	if s.count != sdrArmed {
		t.Fatalf("count = %d after feeding, want %d", s.count, sdrArmed)
	}

	// One underflow arms the first bit, 16 more clock the byte out.
	end := underflows(s, 10, 1+sdrToggles)
	if len(rec.irqs) != 0 {
		t.Fatalf("interrupt before the last toggle was applied: %v", rec.irqs)
	}
	s.catchUp(end + 20)

	// Last underflow at 170, toggle 3 cycles later, interrupt 2 cycles after.
	if diff := cmp.Diff([]int64{175}, rec.irqs); diff != "" {
		t.Errorf("interrupts mismatch (-want +got):\n%s", diff)
	}

	var sampled []bool
	for i, ev := range rec.clocks {
		if i > 0 && ev.CNT && !rec.clocks[i-1].CNT {
			sampled = append(sampled, ev.SP)
		}
	}
	want := []bool{true, false, true, false, false, true, false, true}
	if diff := cmp.Diff(want, sampled); diff != "" {
		t.Errorf("bits sampled on CNT rising edges (-want +got):\n%s", diff)
	}
	if last := rec.clocks[len(rec.clocks)-1]; !last.CNT || last.Clk != 173 {
		t.Errorf("last clock event = %+v, want CNT high at 173", last)
	}
	if s.count != 0 {
		t.Errorf("count = %d after the byte, want 0", s.count)
	}
}

func TestSDRInterruptLatency(t *testing.T) {
	for _, tt := range []struct {
		rev  Revision
		want int64
	}{
		{Rev6526, 175},
		{Rev8521, 174},
	} {
		s, rec := newTestSDR(tt.rev)
		s.setMode(0, true)
		s.feed(0, 0xFF)
		s.catchUp(underflows(s, 10, 1+sdrToggles) + 20)
		if diff := cmp.Diff([]int64{tt.want}, rec.irqs); diff != "" {
			t.Errorf("rev %s: interrupts mismatch (-want +got):\n%s", tt.rev, diff)
		}
	}
}

func TestSDRBufferedByteReloads(t *testing.T) {
	s, rec := newTestSDR(Rev8521)
	s.setMode(0, true)
	s.feed(0, 0x01)
	underflows(s, 10, 3)
	s.feed(40, 0x02)
	if !s.valid {
		t.Fatal("second byte not buffered")
	}
	s.catchUp(underflows(s, 40, sdrToggles-2) + 20)

	if len(rec.irqs) != 1 {
		t.Fatalf("interrupts = %v, want one", rec.irqs)
	}
	if s.count != sdrArmed || s.valid || s.shift != 0x0200 {
		t.Errorf("count=%d valid=%t shift=%04x, want second byte armed", s.count, s.valid, s.shift)
	}
}

func TestSDRDirectionFlipDiscards(t *testing.T) {
	for buffered := range sdrForceFinishMin {
		s, rec := newTestSDR(Rev6526)
		s.setMode(0, true)
		s.feed(0, 0xA5)
		clk := underflows(s, 10, 2) // armed at 13, first toggle at 23
		for i := range buffered {
			s.timerUnderflow(clk + int64(i))
		}
		s.setMode(clk+int64(buffered), false)

		underflows(s, clk+10, 20)
		s.catchUp(1000)

		if len(rec.irqs) != 0 {
			t.Errorf("%d buffered: discarded byte raised interrupts %v", buffered, rec.irqs)
		}
		if s.count != 0 || s.forceFinish {
			t.Errorf("%d buffered: count=%d forceFinish=%t, want idle", buffered, s.count, s.forceFinish)
		}
	}
}

func TestSDRDirectionFlipForceFinish(t *testing.T) {
	s, rec := newTestSDR(Rev6526)
	s.setMode(0, true)
	s.feed(0, 0xA5)
	clk := underflows(s, 10, 2)
	s.timerUnderflow(clk)
	s.timerUnderflow(clk + 1)
	s.setMode(clk+1, false)
	if !s.forceFinish {
		t.Fatal("byte with 2 buffered toggles not finishing")
	}

	// Writes during the force-finish are stored but not shifted.
	s.feed(clk+2, 0x11)
	if s.valid {
		t.Error("byte written during force-finish was buffered")
	}

	s.catchUp(underflows(s, clk+10, 20) + 20)
	if len(rec.irqs) != 1 {
		t.Fatalf("interrupts = %v, want exactly one", rec.irqs)
	}
	if s.forceFinish || s.count != 0 || s.output {
		t.Errorf("forceFinish=%t count=%d output=%t after completion", s.forceFinish, s.count, s.output)
	}
}

func TestSDRInput(t *testing.T) {
	s, rec := newTestSDR(Rev6526)

	const val = 0x3C
	for i := range sdrBits {
		bit := uint8(val)<<i&0x80 != 0
		s.onExternalBit(int64(10+i), bit)
	}
	s.catchUp(100)
	if s.data != val {
		t.Errorf("data = %02x, want %02x", s.data, val)
	}
	if diff := cmp.Diff([]int64{19}, rec.irqs); diff != "" {
		t.Errorf("interrupts mismatch (-want +got):\n%s", diff)
	}

	s.setSerialByte(200, 0x42)
	s.catchUp(300)
	if s.data != 0x42 {
		t.Errorf("data = %02x, want 42", s.data)
	}
	if diff := cmp.Diff([]int64{19, 202}, rec.irqs); diff != "" {
		t.Errorf("interrupts mismatch (-want +got):\n%s", diff)
	}
}

func TestSDRNextEvent(t *testing.T) {
	s, _ := newTestSDR(Rev6526)
	if got := s.nextEvent(); got != never {
		t.Fatalf("idle nextEvent() = %d, want never", got)
	}
	s.setMode(0, true)
	s.feed(0, 0xFF)
	s.timerUnderflow(10)
	if got := s.nextEvent(); got != 13 {
		t.Errorf("nextEvent() = %d, want 13", got)
	}
	s.catchUp(12)
	if got := s.nextEvent(); got != 13 {
		t.Errorf("nextEvent() at 12 = %d, want 13", got)
	}
}
