package timesync

import "go.station.network/s2e/pkg/errors"

// RadioPollInterval is the nominal cadence of radio time-sync polling
// (spec.md §4.2, §6.2 TIMESYNC_RADIO_INTV).
const RadioPollInterval = 2100 * 1000 // µs

// AcquirePollInterval is used instead of RadioPollInterval while a TX unit
// has not yet achieved its first sync, to acquire lock quickly.
const AcquirePollInterval = 250 * 1000 // µs

// PPSValidInterval bounds how stale a PPS-derived GPS correlation may be
// before it is treated as lost (spec.md glossary "PPS"; the exact bound is
// not given numerically in spec.md, so a conservative two minutes is used,
// recorded as an Open Question resolution in DESIGN.md).
const PPSValidInterval = 120 * 1000 * 1000 // µs

var errNoSync = errors.Define("no_timesync", "TX unit `{txunit}` has no time-sync state yet")

// unitState is the per-TX-unit blended clock mapping.
type unitState struct {
	session   uint8
	synced    bool
	offsetUS  int64 // xtime - hostUS, in the unit's session
	quality   int64 // confidence of offsetUS: smaller is better
	lastXTime int64

	gpsValid    bool
	gpsOffsetUS int64 // gpstime - hostUS
	gpsUpdated  int64 // hostUS of last GPS offset update
}

// Engine owns the blended per-TX-unit clock state plus the LNS round-trip
// offset, replacing the reference's global mutable clock-sync variables
// (spec.md §9 "Global mutable state").
type Engine struct {
	units       map[int]*unitState
	sessionToTx map[uint8]int
	nextSession uint8

	lnsOffsetUS int64
	lnsSynced   bool
}

// NewEngine returns an Engine with no units registered yet.
func NewEngine() *Engine {
	return &Engine{
		units:       make(map[int]*unitState),
		sessionToTx: make(map[uint8]int),
	}
}

// StartSession (re)starts the xtime session for txunit, as happens when the
// TX unit's radio (re)starts (spec.md §4.2 "xtime session").
func (e *Engine) StartSession(txunit int) {
	session := e.nextSession
	e.nextSession++
	e.sessionToTx[session] = txunit
	e.units[txunit] = &unitState{session: session, lastXTime: MakeXtime(session, 0)}
}

func (e *Engine) unit(txunit int) *unitState {
	u, ok := e.units[txunit]
	if !ok {
		u = &unitState{}
		e.units[txunit] = u
	}
	return u
}

// LastXTime returns the most recent extended xtime for txunit, for feeding
// back into the next GetTimesync call.
func (e *Engine) LastXTime(txunit int) int64 { return e.unit(txunit).lastXTime }

// UpdateTimesync blends a fresh radio sample into txunit's state, weighting
// it against the existing estimate by relative quality (smaller quality
// value wins more weight). It returns the delay until the next poll
// (spec.md §4.2 update_timesync).
func (e *Engine) UpdateTimesync(txunit int, quality int64, sample Sample) int64 {
	u := e.unit(txunit)
	if sample.XTime != 0 {
		u.lastXTime = sample.XTime
	}
	// offsetUS lives in the 56-bit extended-tick domain, so the session tag
	// in xtime's top 8 bits must not leak into the arithmetic.
	sampleExt := int64(uint64(sample.XTime) & extMask)
	sampleOffset := sampleExt - sample.HostUS

	switch {
	case !u.synced:
		u.offsetUS = sampleOffset
		u.quality = quality
		u.synced = true
	default:
		alpha := float64(u.quality) / float64(u.quality+quality)
		u.offsetUS += int64(alpha * float64(sampleOffset-u.offsetUS))
		u.quality = (u.quality * quality) / (u.quality + quality)
	}

	if sample.PPSXTime != 0 {
		// A PPS edge advanced; record it so XtimeToGpstime/GpstimeToXtime can
		// check staleness, once a GPS correlation exists (see
		// ProcessTimesyncLNS).
		u.gpsUpdated = sample.HostUS
	}

	if !u.synced {
		return AcquirePollInterval
	}
	return RadioPollInterval
}

// ProcessTimesyncLNS updates the LNS round-trip offset and the GPS
// correlation from a timesync reply: the engine sent an xtime, the LNS
// echoed it back with its own txtime and a gpstime, and rxtime is when the
// reply was locally recorded (spec.md §4.2 "LNS round-trip sync").
func (e *Engine) ProcessTimesyncLNS(txunit int, rxtimeUS int64, lnsTxtimeUS int64, gpstimeUS int64) {
	e.lnsOffsetUS = lnsTxtimeUS - rxtimeUS
	e.lnsSynced = true

	if gpstimeUS == 0 {
		return
	}
	u := e.unit(txunit)
	u.gpsOffsetUS = gpstimeUS - rxtimeUS
	u.gpsUpdated = rxtimeUS
	u.gpsValid = true
}

// LNSOffset returns the current host-to-LNS-server time offset and whether
// it has ever been established.
func (e *Engine) LNSOffset() (int64, bool) { return e.lnsOffsetUS, e.lnsSynced }

// UstimeToXtime converts a host-µs timestamp to txunit's xtime, returning 0
// if txunit has no sync yet (spec.md §4.2 "Failure semantics").
func (e *Engine) UstimeToXtime(txunit int, ustime int64) int64 {
	u := e.unit(txunit)
	if !u.synced {
		return 0
	}
	return MakeXtime(u.session, uint64(ustime+u.offsetUS))
}

// XtimeToUstime converts an xtime back to host-µs via the TX unit its
// session tag identifies, returning 0 on failure.
func (e *Engine) XtimeToUstime(xtime int64) int64 {
	session := Session(xtime)
	txunit, ok := e.sessionToTx[session]
	if !ok {
		return 0
	}
	u := e.unit(txunit)
	if !u.synced || u.session != session {
		return 0
	}
	ext := int64(uint64(xtime) & extMask)
	return ext - u.offsetUS
}

// XtimeToXtime retargets xtime to another TX unit via the common host-µs
// axis, returning 0 if either side lacks sync.
func (e *Engine) XtimeToXtime(xtime int64, otherTxunit int) int64 {
	ustime := e.XtimeToUstime(xtime)
	if ustime == 0 {
		return 0
	}
	return e.UstimeToXtime(otherTxunit, ustime)
}

func (e *Engine) gpsStale(u *unitState, nowUS int64) bool {
	if !u.gpsValid {
		return true
	}
	return nowUS-u.gpsUpdated > PPSValidInterval
}

// XtimeToGpstime converts xtime to GPS time, returning 0 if unavailable or
// if the PPS/GPS correlation is stale beyond PPSValidInterval.
func (e *Engine) XtimeToGpstime(xtime int64, nowUS int64) int64 {
	session := Session(xtime)
	txunit, ok := e.sessionToTx[session]
	if !ok {
		return 0
	}
	u := e.unit(txunit)
	if e.gpsStale(u, nowUS) {
		return 0
	}
	ustime := e.XtimeToUstime(xtime)
	if ustime == 0 {
		return 0
	}
	return ustime + u.gpsOffsetUS
}

// GpstimeToXtime converts a GPS timestamp to txunit's xtime, returning 0 if
// the GPS correlation is stale or txunit has no sync.
func (e *Engine) GpstimeToXtime(txunit int, gpstimeUS int64, nowUS int64) int64 {
	u := e.unit(txunit)
	if e.gpsStale(u, nowUS) {
		return 0
	}
	ustime := gpstimeUS - u.gpsOffsetUS
	return e.UstimeToXtime(txunit, ustime)
}

// Synced reports whether txunit has an established radio clock mapping.
func (e *Engine) Synced(txunit int) bool {
	u, ok := e.units[txunit]
	return ok && u.synced
}

// RequireSynced returns errNoSync if txunit has no mapping yet, for callers
// that want a typed error rather than a silent 0.
func (e *Engine) RequireSynced(txunit int) error {
	if !e.Synced(txunit) {
		return errNoSync.WithAttributes("txunit", txunit)
	}
	return nil
}
