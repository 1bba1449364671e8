package lns

import (
	"strconv"
	"strings"

	"go.station.network/s2e/pkg/errors"
	"go.station.network/s2e/pkg/timesync"
	"go.station.network/s2e/pkg/xq"
)

var errBadPdu = errors.Define("bad_pdu", "dnmsg `{diid}` has an odd-length or invalid hex pdu")
var errBadDevEui = errors.Define("bad_dev_eui", "dnmsg `{diid}` has an unparseable DevEui `{dev_eui}`")
var errMissingRXParams = errors.Define("missing_rx_params", "dnmsg `{diid}` has neither RX1 nor RX2 parameters")

// DnSchedResolver converts one dnsched entry's gpstime or raw xtime into
// txunit's absolute host-µs fire time, the same gpstime_to_xtime/
// xtime_to_ustime conversion pkg/engine's beacon tick already performs
// against *timesync.Engine (spec.md §4.8 dnsched). ok=false when txunit's
// clock is not yet synced enough to resolve the entry.
type DnSchedResolver func(txunit int, gpstimeUS, xtimeUS int64, nowUS int64) (hostUS int64, ok bool)

// Router wires a Dispatcher's msgtypes to the engine's concrete actions,
// translating wire messages into the TXJob/config shapes the rest of the
// core understands. Every On* field is optional; a nil one leaves that
// msgtype unhandled.
type Router struct {
	Dispatcher *Dispatcher

	// Mux tracks the LNS's MuxTime clock-sync datum, refreshed only by the
	// handlers below (spec.md §9 "MuxTime semantics").
	Mux MuxTimeState

	OnRouterConfig func(RouterConfig) error
	OnDownlink     func(job xq.TXJob, payload []byte, scheduled bool) error
	OnRunCmd       func(RunCmd) error
	OnTimesyncDown func(TimesyncDown) error
	OnGetXTime     func() error

	// TxUnitForRCtx resolves a wire rctx value to a TX unit (spec.md §4.5
	// step 1), needed before a dnsched entry's gpstime can be converted
	// through that unit's clock. Nil resolves everything to unit 0.
	TxUnitForRCtx func(rctx int64) int
	// ResolveDnSched performs the gpstime/xtime-to-host-µs conversion
	// dnsched entries require. Nil leaves every dnsched entry unresolved
	// (dropped with a logged warning).
	ResolveDnSched DnSchedResolver
}

// NewRouter returns a Router with its Dispatcher pre-wired to call back
// into whichever On* fields are set at dispatch time.
func NewRouter() *Router {
	r := &Router{Dispatcher: NewDispatcher(nil)}
	r.Dispatcher.On("router_config", r.handleRouterConfig)
	r.Dispatcher.On("dnmsg", r.handleDnMsg)
	r.Dispatcher.On("dnsched", r.handleDnSched)
	r.Dispatcher.On("timesync", r.handleTimesyncDown)
	r.Dispatcher.On("runcmd", r.handleRunCmd)
	r.Dispatcher.On("getxtime", r.handleGetXTime)
	return r
}

func (r *Router) handleRouterConfig(raw []byte) error {
	if r.OnRouterConfig == nil {
		return nil
	}
	m, err := DecodeRouterConfig(raw)
	if err != nil {
		return err
	}
	r.Mux.Update(m.MuxTime, timesync.RealNow())
	return r.OnRouterConfig(m)
}

func (r *Router) handleDnMsg(raw []byte) error {
	if r.OnDownlink == nil {
		return nil
	}
	m, err := DecodeDnMsg(raw)
	if err != nil {
		return err
	}
	r.Mux.Update(m.MuxTime, timesync.RealNow())

	// spec.md §4.8 dnmsg required fields: DevEUI, dC, diid, pdu, and at
	// least one of (RX1DR+RX1Freq) or (RX2DR+RX2Freq). A malformed dnmsg
	// is rejected outright rather than turned into a job that would later
	// emit a bogus dntxed (spec.md §4.8/§7 "protocol errors").
	devEUI, ok := parseEUI(m.DevEui)
	if !ok {
		return errBadDevEui.WithAttributes("diid", m.Diid, "dev_eui", m.DevEui)
	}
	if m.RX1Freq == 0 && m.RX2Freq == 0 {
		return errMissingRXParams.WithAttributes("diid", m.Diid)
	}
	payload, err := hexDecode(m.Pdu)
	if err != nil {
		return errBadPdu.WithAttributes("diid", m.Diid)
	}

	// spec.md §4.8 dnmsg, §9 Open Question: RxDelay=0 is coerced to 1 and
	// added to the base xtime to get the actual fire time; preserved from
	// the original behaviour without a firm ruling on whether it is a
	// spec requirement or a bug workaround.
	rxDelay := m.RxDelay
	if rxDelay == 0 {
		rxDelay = 1
		r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnmsg RxDelay=0 coerced to 1")
	}

	job := xq.TXJob{
		Diid: m.Diid, DevEUI: devEUI, HasEUI: true, RCtx: m.RCtx,
		HostUS: m.XTime + int64(rxDelay)*1000000, GPSTime: m.GPSTime,
		Freq: m.RX1Freq, DR: m.RX1DR, RX2Freq: m.RX2Freq, RX2DR: m.RX2DR,
		Priority: m.Priority, Flags: classFlag(m.DC), Preamble: 8, AddCRC: true,
	}
	if m.RX1Freq == 0 && m.RX2Freq != 0 {
		// Only RX2 was given: pre-switch now rather than waiting for the
		// scheduler to discover RX1 is unusable (spec.md §4.8 dnmsg).
		job.Freq, job.DR = m.RX2Freq, m.RX2DR
		job.SwitchedRX2 = true
	}
	return r.OnDownlink(job, payload, false)
}

// classFlag maps the wire "dC" device-class indicator to the job's class
// flag (spec.md §4.8 dnmsg "dC"; 0=A, 1=B, 2=C as the original encodes
// it).
func classFlag(dc int) xq.TXFlag {
	switch dc {
	case 1:
		return xq.TXFlagClassB
	case 2:
		return xq.TXFlagClassC
	default:
		return xq.TXFlagClassA
	}
}

// parseEUI parses a hex-encoded EUI (optionally hyphenated, e.g.
// "00-11-22-33-44-55-66-77") into its 64-bit value.
func parseEUI(s string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "-", ""), 16, 64)
	return v, err == nil
}

func (r *Router) handleDnSched(raw []byte) error {
	if r.OnDownlink == nil {
		return nil
	}
	m, err := DecodeDnSched(raw)
	if err != nil {
		return err
	}
	r.Mux.Update(m.MuxTime, timesync.RealNow())

	for _, entry := range m.Schedule {
		job, payload, ok := r.buildDnSchedJob(entry)
		if !ok {
			continue
		}
		if err := r.OnDownlink(job, payload, true); err != nil {
			r.Dispatcher.Log.WithError(err).WithField("diid", entry.Diid).Warn("dnsched entry rejected")
		}
	}
	return nil
}

// buildDnSchedJob validates and converts one dnsched entry into a TX job
// (spec.md §4.8 dnsched: "each entry requires DR, Freq, PDU, and one of
// ontime|gpstime|xtime"). ok=false means the entry was malformed, or its
// fire time could not yet be resolved; the caller logs and drops it rather
// than admitting a bogus job.
func (r *Router) buildDnSchedJob(m DnSchedEntry) (xq.TXJob, []byte, bool) {
	if m.RX1Freq == 0 && m.RX2Freq == 0 {
		r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnsched entry missing RX1/RX2 frequency")
		return xq.TXJob{}, nil, false
	}
	payload, err := hexDecode(m.Pdu)
	if err != nil {
		r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnsched entry has a bad pdu")
		return xq.TXJob{}, nil, false
	}

	devEUI, hasEUI := uint64(0), false
	if m.DevEui != "" {
		var ok bool
		devEUI, ok = parseEUI(m.DevEui)
		if !ok {
			r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnsched entry has an unparseable DevEui")
			return xq.TXJob{}, nil, false
		}
		hasEUI = true
	}

	txunit := 0
	if r.TxUnitForRCtx != nil {
		txunit = r.TxUnitForRCtx(m.RCtx)
	}

	var hostUS int64
	switch {
	case m.OnTime != 0:
		hostUS = int64(m.OnTime * 1e6)
	case m.GPSTime != 0 || m.XTime != 0:
		if r.ResolveDnSched == nil {
			r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnsched entry needs clock conversion but none is wired")
			return xq.TXJob{}, nil, false
		}
		var ok bool
		hostUS, ok = r.ResolveDnSched(txunit, m.GPSTime, m.XTime, timesync.RealNow())
		if !ok {
			r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnsched entry fire time not yet resolvable")
			return xq.TXJob{}, nil, false
		}
	default:
		r.Dispatcher.Log.WithField("diid", m.Diid).Warn("dnsched entry has none of ontime/gpstime/xtime")
		return xq.TXJob{}, nil, false
	}

	job := xq.TXJob{
		Diid: m.Diid, DevEUI: devEUI, HasEUI: hasEUI, RCtx: m.RCtx,
		HostUS: hostUS, GPSTime: m.GPSTime, XTime: m.XTime,
		Freq: m.RX1Freq, DR: m.RX1DR, RX2Freq: m.RX2Freq, RX2DR: m.RX2DR,
		Priority: m.Priority, Flags: classFlag(m.DC), Preamble: 8, AddCRC: true,
	}
	if m.RX1Freq == 0 && m.RX2Freq != 0 {
		job.Freq, job.DR = m.RX2Freq, m.RX2DR
		job.SwitchedRX2 = true
	}
	return job, payload, true
}

func (r *Router) handleTimesyncDown(raw []byte) error {
	if r.OnTimesyncDown == nil {
		return nil
	}
	m, err := DecodeTimesyncDown(raw)
	if err != nil {
		return err
	}
	r.Mux.Update(m.MuxTime, timesync.RealNow())
	return r.OnTimesyncDown(m)
}

func (r *Router) handleRunCmd(raw []byte) error {
	if r.OnRunCmd == nil {
		return nil
	}
	m, err := DecodeRunCmd(raw)
	if err != nil {
		return err
	}
	return r.OnRunCmd(m)
}

func (r *Router) handleGetXTime(raw []byte) error {
	var m GetXTime
	if err := decodeVia(raw, &m); err == nil {
		r.Mux.Update(m.MuxTime, timesync.RealNow())
	}
	if r.OnGetXTime == nil {
		return nil
	}
	return r.OnGetXTime()
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errBadPdu.New()
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, ok1 := hexVal(s[2*i])
		lo, ok2 := hexVal(s[2*i+1])
		if !ok1 || !ok2 {
			return nil, errBadPdu.New()
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
