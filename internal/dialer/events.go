package dialer

import (
	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/models"
)

// Events are the notifications a Dialer emits to the presentation layer.
// Every field is optional. Notifications are delivered after the state
// change that produced them, outside the dialer's lock, so a handler may
// call GetState.
type Events struct {
	OnStatusChange  func(Status)
	OnError         func(message string)
	OnCallStart     func(profile models.CallerProfile)
	OnCallEnd       func()
	OnCallLogUpdate func(log []calllog.Entry)
	// OnSnapshot receives a copy of the state taken together with the
	// notifications of the same change. It fires after them.
	OnSnapshot func(State)
}

// Multi fans every notification out to each of evs in order.
func Multi(evs ...Events) Events {
	return Events{
		OnStatusChange: func(s Status) {
			for _, e := range evs {
				if e.OnStatusChange != nil {
					e.OnStatusChange(s)
				}
			}
		},
		OnError: func(msg string) {
			for _, e := range evs {
				if e.OnError != nil {
					e.OnError(msg)
				}
			}
		},
		OnCallStart: func(p models.CallerProfile) {
			for _, e := range evs {
				if e.OnCallStart != nil {
					e.OnCallStart(p)
				}
			}
		},
		OnCallEnd: func() {
			for _, e := range evs {
				if e.OnCallEnd != nil {
					e.OnCallEnd()
				}
			}
		},
		OnCallLogUpdate: func(log []calllog.Entry) {
			for _, e := range evs {
				if e.OnCallLogUpdate != nil {
					e.OnCallLogUpdate(calllog.Clone(log))
				}
			}
		},
		OnSnapshot: func(st State) {
			for _, e := range evs {
				if e.OnSnapshot != nil {
					e.OnSnapshot(st.Clone())
				}
			}
		},
	}
}

// batch collects notifications while the state lock is held.
type batch struct {
	ev      Events
	fns     []func()
	changed bool
}

func (b *batch) status(s Status) {
	b.changed = true
	if fn := b.ev.OnStatusChange; fn != nil {
		b.fns = append(b.fns, func() { fn(s) })
	}
}

func (b *batch) error(msg string) {
	b.changed = true
	if fn := b.ev.OnError; fn != nil {
		b.fns = append(b.fns, func() { fn(msg) })
	}
}

func (b *batch) callStart(p models.CallerProfile) {
	b.changed = true
	if fn := b.ev.OnCallStart; fn != nil {
		b.fns = append(b.fns, func() { fn(p) })
	}
}

func (b *batch) callEnd() {
	b.changed = true
	if fn := b.ev.OnCallEnd; fn != nil {
		b.fns = append(b.fns, fn)
	}
}

func (b *batch) logUpdate(log []calllog.Entry) {
	b.changed = true
	if fn := b.ev.OnCallLogUpdate; fn != nil {
		b.fns = append(b.fns, func() { fn(log) })
	}
}

func (b *batch) snapshot(st State) {
	if fn := b.ev.OnSnapshot; fn != nil {
		b.fns = append(b.fns, func() { fn(st) })
	}
}

func (b *batch) fire() {
	for _, fn := range b.fns {
		fn()
	}
}
