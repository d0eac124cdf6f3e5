package sched

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type firing struct {
	Name string
	At   int64
	Now  int64
}

type recorder struct {
	ctx   *Context
	fired []firing
}

func (r *recorder) alarm(name string) *Alarm {
	var a *Alarm
	a = r.ctx.NewAlarm(name, func(at int64) {
		r.fired = append(r.fired, firing{Name: a.Name, At: at, Now: r.ctx.Now()})
	})
	return a
}

func TestAdvanceOrder(t *testing.T) {
	r := &recorder{ctx: NewContext()}

	a := r.alarm("a")
	b := r.alarm("b")
	c := r.alarm("c")
	d := r.alarm("d")

	c.Set(30)
	a.Set(10)
	b.Set(20)
	d.Set(20) // same deadline as b, set later: fires after b

	r.ctx.Advance(25)

	want := []firing{
		{Name: "a", At: 10, Now: 10},
		{Name: "b", At: 20, Now: 20},
		{Name: "d", At: 20, Now: 20},
	}
	if diff := cmp.Diff(want, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if r.ctx.Now() != 25 {
		t.Errorf("Now() = %d, want 25", r.ctx.Now())
	}
	if !c.Pending() || c.At() != 30 {
		t.Errorf("c pending=%t at=%d, want pending at 30", c.Pending(), c.At())
	}
}

func TestSetReplacesDeadline(t *testing.T) {
	r := &recorder{ctx: NewContext()}
	a := r.alarm("a")

	a.Set(100)
	a.Set(5)
	a.Set(7)
	r.ctx.Advance(200)

	want := []firing{{Name: "a", At: 7, Now: 7}}
	if diff := cmp.Diff(want, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsetAndNever(t *testing.T) {
	r := &recorder{ctx: NewContext()}
	a := r.alarm("a")
	b := r.alarm("b")

	a.Set(10)
	a.Unset()
	b.Set(10)
	b.Set(Never)

	if a.Pending() || b.Pending() {
		t.Fatalf("pending a=%t b=%t, want none", a.Pending(), b.Pending())
	}
	if got := r.ctx.Next(); got != Never {
		t.Fatalf("Next() = %d, want Never", got)
	}
	r.ctx.Advance(50)
	if len(r.fired) != 0 {
		t.Fatalf("fired = %v, want none", r.fired)
	}
}

func TestRearmFromCallback(t *testing.T) {
	ctx := NewContext()

	var ticks []int64
	var tick *Alarm
	tick = ctx.NewAlarm("tick", func(at int64) {
		ticks = append(ticks, at)
		tick.Set(at + 3)
	})
	tick.Set(1)

	ctx.Advance(10)

	want := []int64{1, 4, 7, 10}
	if diff := cmp.Diff(want, ticks); diff != "" {
		t.Fatalf("ticks mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDueAtCurrentClock(t *testing.T) {
	r := &recorder{ctx: NewContext()}
	a := r.alarm("a")

	r.ctx.SetNow(40)
	a.Set(35)
	r.ctx.RunDue(34)
	if len(r.fired) != 0 {
		t.Fatalf("alarm fired before its deadline")
	}
	r.ctx.RunDue(40)
	want := []firing{{Name: "a", At: 35, Now: 40}}
	if diff := cmp.Diff(want, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}
