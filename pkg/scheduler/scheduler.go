// Package scheduler implements the TX scheduler (spec.md §4.5): admitting
// downlinks into a TX unit's priority-ordered queue, picking an alternate
// time or antenna when a slot conflicts, and driving each unit's queue head
// through the radio's arm/emit/check state machine on every engine tick.
package scheduler

import (
	"go.station.network/s2e/pkg/airtime"
	"go.station.network/s2e/pkg/dutycycle"
	"go.station.network/s2e/pkg/errors"
	"go.station.network/s2e/pkg/log"
	"go.station.network/s2e/pkg/metrics"
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/xq"
)

// Constants governing admission and retiming. spec.md §4.5 names these
// knobs (TX_MAX_AHEAD, TX_AIM_GAP, TX_MIN_GAP, the Class-C backoff pair)
// without giving every one a number; where a number is given it is used
// verbatim, otherwise a value consistent with the described behaviour is
// chosen and recorded in DESIGN.md.
const (
	// TXMaxAheadUS is the farthest in the future a job may be scheduled
	// before add_txjob rejects it outright.
	TXMaxAheadUS = 2 * 3600 * 1000000 // 2h

	// TXAimGapUS is how far ahead of a job's fire time next_tx_action
	// starts actively resolving xtime/DC/conflicts, rather than just
	// waiting.
	TXAimGapUS = 50000 // 50ms

	// TXMinGapUS is the minimum spacing next_tx_action enforces between
	// two emissions on the same TX unit (radio turnaround time).
	TXMinGapUS = 10000 // 10ms

	// TXCheckFudgeUS is the margin after a job's estimated on-air end
	// before next_tx_action polls txstatus for confirmation.
	TXCheckFudgeUS = 5000 // 5ms

	// ClassCBackoffMax is the number of retries alt_tx_time attempts for a
	// Class C job stuck behind a conflict, at ClassCBackoffByUS spacing
	// (spec.md §4.5, both values given).
	ClassCBackoffMax  = 10
	ClassCBackoffByUS = 100000 // 100ms

	// AltTxTimePenalty and AltAntennaPenalty subtract from a job's
	// nominal priority when computing effective_prio for conflict
	// resolution (spec.md §4.5 "penalise jobs that still have an
	// alternate available, so a displaceable job loses ties to one that
	// has none left"). Priorities step by 1, so a penalty reorders two
	// jobs whose nominal priorities differ by less than its value (20 or
	// 10); with both penalties applied the job loses 30.
	AltTxTimePenalty  = 20
	AltAntennaPenalty = 10
)

var (
	errUnknownUnit  = errors.Define("unknown_tx_unit", "TX unit `{unit}` is not configured")
	errTooFarAhead  = errors.Define("tx_too_far_ahead", "TX job `{diid}` scheduled too far ahead")
	errTooLate      = errors.Define("tx_too_late", "TX job `{diid}` has no time left to arm")
	errNoSlot       = errors.Define("tx_no_slot", "TX job `{diid}` could not be placed in the TX unit's queue")
	errXTimeUnknown = errors.Define("xtime_unresolved", "TX job `{diid}` has no resolvable xtime")
)

// DRResolver maps a data rate index to its Radio Parameter Set, the
// station's channel plan (owned by pkg/engine's DR table, not scheduler).
type DRResolver func(dr int) airtime.RPS

// XTimeResolver converts a TX unit's planned host-µs fire time into the
// radio-xtime value next_tx_action must pass to ral.Tx, using the unit's
// current timesync state. It reports false when the unit is not yet
// synced (spec.md §4.2 "until synced, no radio-xtime downlink may be
// scheduled").
type XTimeResolver func(txunit int, hostUS int64) (xtime int64, ok bool)

// Unit is one TX unit's scheduler-owned state: its queue head, its
// duty-cycle/CCA governance, and the radio's reported alternate-antenna
// mask (refreshed on Attach).
type Unit struct {
	Head       xq.JobIndex
	Governance *dutycycle.Governance
	AltAntMask uint16
}

// Scheduler owns the shared TX job pool and per-unit queues/governance for
// one station process.
type Scheduler struct {
	Pool  *xq.TXPool
	Units map[int]*Unit
	Radio ral.Radio
	Now   func() int64
	DR    DRResolver
	XTime XTimeResolver
	Log   log.Interface

	// OnDntxed is invoked once a job's emission has been confirmed by the
	// radio, so the caller can emit the dntxed LNS message (spec.md
	// §4.8). Optional.
	OnDntxed func(job *xq.TXJob)
}

// New returns a Scheduler backed by pool and radio, with now supplying the
// host-µs clock (pass timesync-independent monotonic µs; use
// timesync.RealNow in production).
func New(pool *xq.TXPool, radio ral.Radio, now func() int64, dr DRResolver, xtime XTimeResolver, logger log.Interface) *Scheduler {
	if logger == nil {
		logger = log.Noop()
	}
	return &Scheduler{
		Pool:  pool,
		Units: map[int]*Unit{},
		Radio: radio,
		Now:   now,
		DR:    dr,
		XTime: xtime,
		Log:   logger,
	}
}

// AttachUnit registers a TX unit, fetching its alternate-antenna mask from
// the radio.
func (s *Scheduler) AttachUnit(txunit int, gov *dutycycle.Governance) {
	mask := uint16(0)
	if s.Radio != nil {
		mask = s.Radio.AltAntennas(txunit)
	}
	s.Units[txunit] = &Unit{Head: xq.NilIndex, Governance: gov, AltAntMask: mask}
}

func (s *Scheduler) recomputeAirtimeAndPow(job *xq.TXJob) {
	rps := airtime.RPS(job.DR)
	if s.DR != nil {
		rps = s.DR(job.DR)
	}
	job.AirtimeUS = airtime.AirtimeUS(rps, job.Len, job.AddCRC, job.Preamble)
	if u, ok := s.Units[job.TxUnit]; ok {
		job.TXPowDeci = dutycycle.TXPowerDeci(u.Governance.Region, job.Freq)
	}
}

func (s *Scheduler) dropJob(idx xq.JobIndex, job *xq.TXJob, reason string) {
	metrics.TxDroppedTotal.WithLabelValues(reason).Inc()
	s.Log.WithField("diid", job.Diid).WithField("reason", reason).Warn("tx job dropped")
	s.Pool.FreeJob(idx)
}

// emitDntxed sends the dntxed confirmation, but only for jobs that carry a
// DevEUI: beacons and dnsched entries without one are silent by design
// (spec.md §4.5 "dntxed confirmation", §8 property 8 "dntxed exactness").
func (s *Scheduler) emitDntxed(job *xq.TXJob) {
	if !job.HasEUI {
		return
	}
	metrics.DntxedTotal.Inc()
	if s.OnDntxed != nil {
		s.OnDntxed(job)
	}
}
