package lns

// MuxTimeState tracks the LNS's MuxTime clock-sync datum. spec.md §9's Open
// Question ("MuxTime semantics: used as both a clock-sync datum and an
// opaque token echoed in replies... document which handlers do so and
// preserve the set") is resolved here by restricting refreshes to the
// Router handlers for router_config, dnmsg, dnsched, timesync, and
// getxtime. runcmd and unrecognised msgtypes never call Update. Router
// registers no dnframe handler, so a dnframe message is rejected as an
// unknown msgtype and refreshes nothing.
type MuxTimeState struct {
	offsetUS int64 // hostUS - wireMuxTimeUS as of the last refresh
	valid    bool
}

// Update refreshes the offset from a freshly received MuxTime value (wire
// units: fractional seconds) against the host clock at hostUS. A zero
// MuxTime means the field was omitted, and is ignored rather than treated
// as a legitimate reading.
func (m *MuxTimeState) Update(muxTimeSec float64, hostUS int64) {
	if muxTimeSec == 0 {
		return
	}
	m.offsetUS = hostUS - int64(muxTimeSec*1e6)
	m.valid = true
}

// Now returns the current MuxTime-domain estimate, in wire units, for
// echoing back in a reply. Returns 0 (the wire's "absent" value) until the
// first Update.
func (m *MuxTimeState) Now(hostUS int64) float64 {
	if !m.valid {
		return 0
	}
	return float64(hostUS-m.offsetUS) / 1e6
}
