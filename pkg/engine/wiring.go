package engine

import (
	"bytes"
	"strconv"
	"strings"

	"go.station.network/s2e/pkg/dutycycle"
	"go.station.network/s2e/pkg/lns"
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/rxforward"
	"go.station.network/s2e/pkg/timesync"
	"go.station.network/s2e/pkg/xq"
)

// handleDownstream runs on the loop goroutine: it either processes the
// reconnect sentinel (tear down in-flight jobs, resend the handshake) or
// dispatches an ordinary LNS message through the router.
func (e *Engine) handleDownstream(raw []byte, actions map[string]*pending) {
	if bytes.Equal(raw, reconnectSentinel) {
		e.teardown()
		e.reconnectGen.Inc()
		if _, err := lns.SendVersion(e.out, e.opts.Station, e.opts.Firmware, e.opts.Package, e.opts.Model); err != nil {
			e.Log.WithError(err).Warn("failed to send version handshake")
		}
		return
	}
	if err := e.router.Dispatcher.Dispatch(raw); err != nil {
		e.Log.WithError(err).Warn("failed to dispatch downstream message")
	}
}

// regionOf maps a router_config region string to the internal dutycycle
// Region (spec.md §4.8 router_config "region").
func regionOf(name string) dutycycle.Region {
	switch name {
	case "EU868":
		return dutycycle.RegionEU868
	case "IL915":
		return dutycycle.RegionIL915
	case "KR920":
		return dutycycle.RegionKR920
	case "AS923-1", "AS923":
		return dutycycle.RegionAS923_1
	case "US915":
		return dutycycle.RegionUS915
	case "AU915":
		return dutycycle.RegionAU915
	default:
		return dutycycle.RegionUnknown
	}
}

func (e *Engine) onRouterConfig(cfg lns.RouterConfig) error {
	e.drTable.Load(cfg.DRs)

	region := regionOf(cfg.Region)
	for _, unit := range e.Sched.Units {
		unit.Governance.Region = region
		unit.Governance.NoCCA = cfg.NoCCA
		unit.Governance.NoDC = cfg.NoDutyCycle
		unit.Governance.NoDwell = cfg.NoDwellTime
	}

	var filter rxforward.Filter
	for _, id := range cfg.NetID {
		if id >= 0 && id < len(filter.NetIDs) {
			filter.NetIDs[id] = true
		}
	}
	for _, pair := range cfg.JoinEui {
		lo, errLo := strconv.ParseUint(strings.ReplaceAll(pair[0], "-", ""), 16, 64)
		hi, errHi := strconv.ParseUint(strings.ReplaceAll(pair[1], "-", ""), 16, 64)
		if errLo == nil && errHi == nil {
			filter.JoinEUIRanges = append(filter.JoinEUIRanges, rxforward.JoinEUIRange{Lo: lo, Hi: hi})
		}
	}
	e.FWD.Filter = filter

	e.Beac.Configure(cfg.Bcning.Layout, cfg.Bcning.Freqs, cfg.Bcning.DR)

	if e.Radio != nil {
		chans := make([]ral.ChannelDescriptor, 0, len(cfg.DRs))
		for range cfg.DRs {
			chans = append(chans, ral.ChannelDescriptor{FreqHz: cfg.FreqRange[0], BWHz: 125000})
		}
		if err := e.Radio.Config(cfg.HwSpec, uint32(region), chans); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) onDownlink(job xq.TXJob, payload []byte, scheduled bool) error {
	txunit := e.txUnitForRCtx(job.RCtx)
	_, _, err := e.Sched.AddTXJob(txunit, job, payload)
	return err
}

// txUnitForRCtx resolves a job's wire rctx to a TX unit (spec.md §4.5 step
// 1 "resolve txunit from the job's radio context").
func (e *Engine) txUnitForRCtx(rctx int64) int {
	if e.Radio == nil {
		return 0
	}
	return e.Radio.RCtxToTxUnit(rctx)
}

// resolveDnSched is the Router's DnSchedResolver: it converts a dnsched
// entry's gpstime (Class B) or raw xtime (Class A) into txunit's host-µs
// fire time via the same gpstime_to_xtime/xtime_to_ustime path pkg/engine's
// beacon tick already uses (spec.md §4.8 dnsched).
func (e *Engine) resolveDnSched(txunit int, gpstimeUS, xtimeUS int64, nowUS int64) (int64, bool) {
	xtime := xtimeUS
	if gpstimeUS != 0 {
		xtime = e.TS.GpstimeToXtime(txunit, gpstimeUS, nowUS)
	}
	if xtime == 0 {
		return 0, false
	}
	hostUS := e.TS.XtimeToUstime(xtime)
	return hostUS, hostUS != 0
}

func (e *Engine) onRunCmd(m lns.RunCmd) error {
	switch m.Command {
	case "reboot":
		e.Shutdown()
	default:
		e.Log.WithField("command", m.Command).Warn("unhandled runcmd")
	}
	return nil
}

func (e *Engine) onTimesyncDown(m lns.TimesyncDown) error {
	now := timesync.RealNow()
	for u := range e.Sched.Units {
		e.TS.ProcessTimesyncLNS(u, now, m.TxTime, m.GPSTime)
	}
	return nil
}

func (e *Engine) onGetXTime() error {
	_, err := lns.SendGetXTimeReply(e.out, e.TS, e.opts.NumTxUnits, &e.router.Mux)
	return err
}

func (e *Engine) onDntxed(job *xq.TXJob) {
	gps := e.TS.XtimeToGpstime(job.XTime, timesync.RealNow())
	if _, err := lns.SendDnTxed(e.out, job.Diid, job.HostUS, gps); err != nil {
		e.Log.WithError(err).Warn("failed to send dntxed")
	}
}

// xtimeFor is the scheduler's XTimeResolver: it resolves a planned
// host-µs fire time to txunit's current xtime session, once synced.
func (e *Engine) xtimeFor(txunit int, hostUS int64) (int64, bool) {
	if !e.TS.Synced(txunit) {
		return 0, false
	}
	return e.TS.UstimeToXtime(txunit, hostUS), true
}
