package engine

import (
	"go.station.network/s2e/pkg/beacon"
	"go.station.network/s2e/pkg/lns"
	"go.station.network/s2e/pkg/timesync"
	"go.station.network/s2e/pkg/xq"
)

// pollRX drains whatever uplinks the radio has fetched since the last
// poll, admits each through the forwarder's dedup/filter, and flushes as
// many as the transport's send buffer accepts (spec.md §6.2 fetch() on a
// RX_POLL_INTV timer; §4.6 add_rxjob/flush_rxjobs).
func (e *Engine) pollRX() {
	if e.Radio == nil {
		return
	}
	pkts, err := e.Radio.Fetch()
	if err != nil {
		e.Log.WithError(err).Warn("radio fetch failed")
		return
	}
	for _, pkt := range pkts {
		e.FWD.AddRXJob(pkt)
	}
	if _, err := e.FWD.FlushRXJobs(e.out); err != nil {
		e.Log.WithError(err).Warn("failed to flush rx jobs")
	}
}

// pollTimesync brackets a fresh radio-clock sample for unit, blends it
// into the time-sync engine, and returns the µs delay until the next
// poll (acquire cadence until first sync, then the steady-state cadence;
// spec.md §4.2, §6.2 TIMESYNC_RADIO_INTV).
func (e *Engine) pollTimesync(unit int) int64 {
	if e.Radio == nil {
		return timesync.RadioPollInterval
	}
	clock := e.Radio.TimesyncClock(unit)
	sample, quality, err := timesync.GetTimesync(clock, timesync.RealNow, e.TS.LastXTime(unit), true)
	if err != nil {
		e.Log.WithError(err).WithField("txunit", unit).Warn("timesync read failed")
		return timesync.AcquirePollInterval
	}
	interval := e.TS.UpdateTimesync(unit, quality, sample)

	if unit == 0 {
		gps := e.TS.XtimeToGpstime(sample.XTime, sample.HostUS)
		if _, err := lns.SendTimesyncRequest(e.out, sample.HostUS, gps, &e.router.Mux); err != nil {
			e.Log.WithError(err).Warn("failed to send timesync request")
		}
	}
	return interval
}

// tickBeacon re-evaluates beacon staleness and, once active, admits the
// next beacon frame as a TX job ahead of its GPS boundary (spec.md §4.7).
// It returns the µs delay until the next beacon-related check.
func (e *Engine) tickBeacon(now int64) int64 {
	e.Beac.Tick(now)
	if e.Beac.Status != beacon.StatusActive {
		return timesync.RadioPollInterval
	}

	const leadUS = 2 * 1000000 // admit the frame 2s ahead of its boundary
	const txunit = 0

	gpsNow := now
	if xt := e.TS.UstimeToXtime(txunit, now); xt != 0 {
		if g := e.TS.XtimeToGpstime(xt, now); g != 0 {
			gpsNow = g
		}
	}
	nextGPS := beacon.NextBeaconGPS(gpsNow)

	xt := e.TS.GpstimeToXtime(txunit, nextGPS, now)
	if xt == 0 {
		return timesync.RadioPollInterval
	}
	hostUS := e.TS.XtimeToUstime(xt)
	if hostUS == 0 || hostUS-now > leadUS {
		return timesync.RadioPollInterval
	}

	payload, freq, err := e.Beac.Frame(nextGPS)
	if err != nil {
		return timesync.RadioPollInterval
	}
	job := xq.TXJob{
		HostUS: hostUS, GPSTime: nextGPS, Freq: freq, DR: e.Beac.DR,
		Flags: xq.TXFlagBeacon, Priority: 255, Preamble: 10, AddCRC: false,
	}
	if _, _, err := e.Sched.AddTXJob(txunit, job, payload); err != nil {
		e.Log.WithError(err).Warn("failed to admit beacon frame")
	}
	return beacon.IntervalUS
}
