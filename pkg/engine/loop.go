package engine

import (
	"context"
	"strconv"
	"time"

	"go.station.network/s2e/pkg/timesync"
	"go.station.network/s2e/pkg/xq"
)

// actionKind distinguishes the handful of recurring deadlines the loop
// multiplexes over. Real firmware arms one kernel timerfd per deadline
// (spec.md §5); here a single Go timer is re-armed to the nearest pending
// deadline on every iteration, which gives the same "callbacks fire in
// non-decreasing deadline order" guarantee without a timer-per-source.
type actionKind int

const (
	actionTxUnit actionKind = iota
	actionRXPoll
	actionTimesync
	actionBeacon
)

type pending struct {
	kind     actionKind
	unit     int
	deadline int64
}

// loop is the single core-state-mutating goroutine (spec.md §5).
func (e *Engine) loop(ctx context.Context) error {
	now := timesync.RealNow()
	actions := map[string]*pending{
		"rxpoll": {kind: actionRXPoll, deadline: now},
	}
	for u := range e.Sched.Units {
		actions[txKey(u)] = &pending{kind: actionTxUnit, unit: u, deadline: now}
		actions[tsKey(u)] = &pending{kind: actionTimesync, unit: u, deadline: now}
	}
	if e.Beac != nil {
		actions["beacon"] = &pending{kind: actionBeacon, deadline: now}
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	e.rearm(timer, actions)

	for {
		if e.terminating() {
			e.teardown()
			return context.Canceled
		}
		select {
		case <-ctx.Done():
			e.teardown()
			return ctx.Err()
		case raw := <-e.downstream:
			e.handleDownstream(raw, actions)
			// A dnmsg/dnsched/beacon admission may have just become (or
			// displaced) a unit's queue head; re-check every unit now
			// rather than waiting for its previously-armed deadline
			// (spec.md §4.5 add_txjob "if now head, yield the unit's
			// timer to the scheduler tick"). NextTxAction is a no-op if
			// there is nothing new to do, so this is safe to force.
			now := timesync.RealNow()
			for u := range e.Sched.Units {
				if a, ok := actions[txKey(u)]; ok {
					a.deadline = now
				} else {
					actions[txKey(u)] = &pending{kind: actionTxUnit, unit: u, deadline: now}
				}
			}
			e.fireExpired(actions)
			e.rearm(timer, actions)
		case <-timer.C:
			e.fireExpired(actions)
			e.rearm(timer, actions)
		}
	}
}

func txKey(unit int) string { return "tx:" + strconv.Itoa(unit) }
func tsKey(unit int) string { return "ts:" + strconv.Itoa(unit) }

// rearm resets timer to fire at the earliest deadline across every
// pending action, draining a stale fire if one is already queued.
func (e *Engine) rearm(timer *time.Timer, actions map[string]*pending) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	now := timesync.RealNow()
	earliest := int64(0)
	has := false
	for _, a := range actions {
		if !has || a.deadline < earliest {
			earliest = a.deadline
			has = true
		}
	}
	if !has {
		timer.Reset(time.Hour)
		return
	}
	d := time.Duration(earliest-now) * time.Microsecond
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

// fireExpired runs every action whose deadline has passed, rescheduling
// or removing each one.
func (e *Engine) fireExpired(actions map[string]*pending) {
	now := timesync.RealNow()
	for key, a := range actions {
		if a.deadline > now {
			continue
		}
		switch a.kind {
		case actionRXPoll:
			e.pollRX()
			a.deadline = now + RXPollInterval.Microseconds()
		case actionTimesync:
			a.deadline = now + e.pollTimesync(a.unit)
		case actionTxUnit:
			next, hasNext := e.Sched.NextTxAction(a.unit)
			if hasNext {
				a.deadline = next
			} else {
				delete(actions, key)
			}
		case actionBeacon:
			a.deadline = now + e.tickBeacon(now)
		}
	}
}

// teardown runs the spec.md §5 "s2e.free" equivalent: every TX unit's
// queue is drained and its jobs freed, matching a WebSocket reconnect or
// a shutdown tearing down all in-flight downlinks.
func (e *Engine) teardown() {
	for _, unit := range e.Sched.Units {
		for unit.Head != xq.NilIndex {
			idx := xq.UnqueueJob(&unit.Head, e.Pool)
			e.Pool.FreeJob(idx)
		}
	}
	if e.Radio != nil {
		e.Radio.Stop()
	}
}
