// Package sched implements the cycle-keyed alarm service shared by all the
// chips of a machine.
//
// Alarms are kept in a doubly linked list sorted by deadline. A machine has a
// handful of them (a few per chip) so insertion is a short linear scan.
package sched

import (
	"ciacore/emu/log"
)

// Never is the deadline of an alarm that must not fire.
const Never = int64(1<<63 - 1)

// Callback is invoked with the cycle the alarm was set for, which is never
// later than the current cycle of the context.
type Callback func(at int64)

type Alarm struct {
	Name string

	ctx     *Context
	cb      Callback
	at      int64
	pending bool

	prev, next *Alarm
}

// Set (re)arms the alarm at the given cycle. An alarm has at most one pending
// deadline, setting it again replaces the previous one. Setting it to Never
// is the same as Unset.
func (a *Alarm) Set(at int64) {
	if a.pending {
		if a.at == at {
			return
		}
		a.ctx.remove(a)
	}
	if at == Never {
		return
	}
	a.at = at
	a.ctx.insert(a)
}

// Unset cancels the alarm, if pending.
func (a *Alarm) Unset() {
	if a.pending {
		a.ctx.remove(a)
	}
}

func (a *Alarm) Pending() bool { return a.pending }

// At returns the deadline of a pending alarm, or Never.
func (a *Alarm) At() int64 {
	if !a.pending {
		return Never
	}
	return a.at
}

// Context owns the cycle counter and the alarm list.
type Context struct {
	clk  int64
	head *Alarm
	tail *Alarm

	dispatching bool
}

func NewContext() *Context {
	return &Context{}
}

func (ctx *Context) NewAlarm(name string, cb Callback) *Alarm {
	return &Alarm{Name: name, ctx: ctx, cb: cb}
}

// Now returns the current cycle.
func (ctx *Context) Now() int64 { return ctx.clk }

// SetNow moves the clock without dispatching (snapshot restore). Moving it
// backwards is a programming error.
func (ctx *Context) SetNow(clk int64) {
	if clk < ctx.clk {
		panic("sched: clock moved backwards")
	}
	ctx.clk = clk
}

// Next returns the deadline of the earliest pending alarm, or Never.
func (ctx *Context) Next() int64 {
	if ctx.head == nil {
		return Never
	}
	return ctx.head.at
}

// RunDue fires, in deadline order, every alarm due at or before clk.
// Alarms with the same deadline fire in the order they were set. Callbacks
// may set or unset any alarm, including the one being serviced.
func (ctx *Context) RunDue(clk int64) {
	if ctx.dispatching {
		// A callback accessing a chip triggers a nested dispatch: the outer
		// loop already services everything in order.
		return
	}
	ctx.dispatching = true
	for ctx.head != nil && ctx.head.at <= clk {
		a := ctx.head
		ctx.remove(a)
		log.ModSched.DebugZ("fire").String("alarm", a.Name).Int64("at", a.at).End()
		a.cb(a.at)
	}
	ctx.dispatching = false
}

// Advance moves the clock n cycles forward and fires the alarms that became
// due, each one seeing the clock at its own deadline.
func (ctx *Context) Advance(n int64) {
	target := ctx.clk + n
	for ctx.head != nil && ctx.head.at <= target {
		if ctx.head.at > ctx.clk {
			ctx.clk = ctx.head.at
		}
		ctx.RunDue(ctx.clk)
	}
	ctx.clk = target
}

func (ctx *Context) insert(a *Alarm) {
	a.pending = true

	// Scan from the tail: most alarms are set in the near future relative to
	// others, but rescheduling tends to push them to the back.
	p := ctx.tail
	for p != nil && p.at > a.at {
		p = p.prev
	}

	a.prev = p
	if p == nil {
		a.next = ctx.head
		ctx.head = a
	} else {
		a.next = p.next
		p.next = a
	}
	if a.next != nil {
		a.next.prev = a
	} else {
		ctx.tail = a
	}
}

func (ctx *Context) remove(a *Alarm) {
	if a.prev != nil {
		a.prev.next = a.next
	} else {
		ctx.head = a.next
	}
	if a.next != nil {
		a.next.prev = a.prev
	} else {
		ctx.tail = a.prev
	}
	a.prev, a.next = nil, nil
	a.pending = false
}
