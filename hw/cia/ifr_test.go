package cia

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ciacore/hw/hwdefs"
)

type lineEvent struct {
	Asserted bool
	Clk      int64
}

type lineRecorder struct {
	events []lineEvent
}

func (r *lineRecorder) notify(asserted bool, clk int64) {
	r.events = append(r.events, lineEvent{asserted, clk})
}

func newTestIFR(rev Revision) (*ifr, *lineRecorder) {
	tm := timings[rev]
	rec := &lineRecorder{}
	p := &ifr{tm: &tm, notify: rec.notify}
	p.reset(0)
	return p, rec
}

const (
	srcTA = uint8(hwdefs.TimerA)
	srcTB = uint8(hwdefs.TimerB)
)

func TestIFRLatency(t *testing.T) {
	tests := []struct {
		rev     Revision
		lineClk int64
		d7Clk   int64
	}{
		{Rev6526, 11, 11},
		{Rev8521, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.rev.String(), func(t *testing.T) {
			p, rec := newTestIFR(tt.rev)
			p.writeMask(0, icrSet|srcTA)

			p.setFlag(10, srcTA)
			if next := p.currentOrNext(10); next != never {
				t.Errorf("currentOrNext() = %d, want never", next)
			}

			want := []lineEvent{{true, tt.lineClk}}
			if diff := cmp.Diff(want, rec.events); diff != "" {
				t.Errorf("line events mismatch (-want +got):\n%s", diff)
			}
			if got := p.peek(tt.d7Clk - 1); got&icrIR != 0 && tt.d7Clk > 10 {
				t.Errorf("ICR bit 7 visible at %d, before %d", tt.d7Clk-1, tt.d7Clk)
			}
			if got := p.peek(tt.d7Clk); got != icrIR|srcTA {
				t.Errorf("ICR at %d = %02x, want %02x", tt.d7Clk, got, icrIR|srcTA)
			}
		})
	}
}

func TestIFRCatchUpIdempotent(t *testing.T) {
	p, _ := newTestIFR(Rev6526)
	p.writeMask(0, icrSet|srcTA)
	p.setFlag(3, srcTA)
	p.currentOrNext(3)
	p.read(4)

	once := *p
	once.notify = nil
	once.catchUp(20)

	twice := *p
	twice.notify = nil
	twice.catchUp(20)
	twice.catchUp(20)
	twice.catchUp(15)

	if diff := cmp.Diff(once, twice, cmp.AllowUnexported(ifr{}, timing{})); diff != "" {
		t.Errorf("catchUp not idempotent (-once +twice):\n%s", diff)
	}
}

func TestIFRReadAcknowledges(t *testing.T) {
	p, rec := newTestIFR(Rev6526)
	p.writeMask(0, icrSet|srcTA)
	p.setFlag(10, srcTA)
	p.currentOrNext(10)

	if got := p.read(20); got != icrIR|srcTA {
		t.Fatalf("read() = %02x, want %02x", got, icrIR|srcTA)
	}
	if got := p.peek(20); got != icrIR|srcTA {
		t.Errorf("flags cleared on the read cycle: %02x", got)
	}
	if got := p.peek(21); got != 0 {
		t.Errorf("flags after acknowledge = %02x, want 0", got)
	}

	want := []lineEvent{{true, 11}, {false, 20}}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("line events mismatch (-want +got):\n%s", diff)
	}
}

func TestIFRReadRevokesPromotedAssertion(t *testing.T) {
	p, rec := newTestIFR(Rev6526)
	p.writeMask(0, icrSet|srcTA)
	p.setFlag(10, srcTA)
	p.currentOrNext(10)

	// The assertion was reported for cycle 11, a read at 10 cancels it.
	if got := p.read(10); got != srcTA {
		t.Fatalf("read() = %02x, want %02x", got, srcTA)
	}
	p.currentOrNext(10)
	p.catchUp(30)
	p.currentOrNext(30)

	want := []lineEvent{{true, 11}, {false, 10}}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("line events mismatch (-want +got):\n%s", diff)
	}
	if p.line {
		t.Errorf("line still asserted")
	}
	if got := p.peek(30); got != 0 {
		t.Errorf("ICR = %02x, want 0", got)
	}
}

func TestIFRTimerBBug(t *testing.T) {
	tests := []struct {
		rev  Revision
		clk  int64
		want uint8
	}{
		{Rev6526, 11, 0},
		{Rev6526, 12, srcTB},
		{Rev6526, 10, srcTB},
		{Rev8521, 11, srcTB},
	}
	for _, tt := range tests {
		p, _ := newTestIFR(tt.rev)
		p.read(10)
		p.setTimerBFlag(tt.clk)
		if got := p.peek(20) & srcTB; got != tt.want {
			t.Errorf("rev %s, underflow at %d: TB flag = %02x, want %02x", tt.rev, tt.clk, got, tt.want)
		}
	}
}

func TestIFRMaskEnablesPendingFlag(t *testing.T) {
	p, rec := newTestIFR(Rev6526)
	p.setFlag(5, srcTA)
	p.currentOrNext(5)
	if len(rec.events) != 0 {
		t.Fatalf("masked flag asserted the line: %v", rec.events)
	}
	if got := p.peek(10); got != srcTA {
		t.Fatalf("ICR = %02x, want %02x", got, srcTA)
	}

	p.writeMask(8, icrSet|srcTA)
	p.currentOrNext(8)
	want := []lineEvent{{true, 9}}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("line events mismatch (-want +got):\n%s", diff)
	}
}

func TestIFRWriteMask(t *testing.T) {
	p, _ := newTestIFR(Rev8521)
	p.writeMask(0, icrSet|0x7F)
	if p.mask != icrSources {
		t.Errorf("mask = %02x, want %02x", p.mask, icrSources)
	}
	p.writeMask(1, srcTA|srcTB)
	if want := icrSources &^ (srcTA | srcTB); p.mask != want {
		t.Errorf("mask = %02x, want %02x", p.mask, want)
	}
}
