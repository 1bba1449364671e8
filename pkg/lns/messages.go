// Package lns implements the JSON-over-WebSocket LNS message protocol
// (spec.md §4.8): decoding router_config/dnmsg/dnsched/timesync/runcmd
// from the network server, and encoding version/jreq/updf/dntxed/timesync
// upstream. Two-phase decode (msgtype peek, then typed decode) uses
// json-iterator/go; loosely-typed payload fields are normalised with
// mitchellh/mapstructure.
package lns

// Envelope is the minimal shape every message shares, decoded first to
// pick the typed struct to decode the rest into.
type Envelope struct {
	MsgType string `json:"msgtype"`
}

// RouterConfig is the downstream channel-plan message (spec.md §4.8,
// §6.3): region, hardware spec, frequency plan, and the three duty-cycle
// debug overrides.
type RouterConfig struct {
	MsgType     string       `json:"msgtype"`
	MuxTime     float64      `json:"MuxTime,omitempty"`
	Region      string       `json:"region"`
	HwSpec      string       `json:"hwspec"`
	FreqRange   [2]uint32    `json:"freq_range"`
	DRs         [][3]int     `json:"DRs"`
	SX1301Conf  []RawConfig  `json:"sx1301_conf"`
	NetID       []int        `json:"NetID"`
	JoinEui     [][2]string  `json:"JoinEui"`
	NoCCA       bool         `json:"nocca"`
	NoDutyCycle bool         `json:"nodc"`
	NoDwellTime bool         `json:"nodwell"`
	Bcning      BeaconConfig `json:"bcning"`
}

// BeaconConfig is router_config's Class-B beacon sub-object (spec.md §4.7,
// glossary "Beacon config"): the frame layout offsets, the rotation table,
// and a ctrl nibble pair carrying the beacon DR in its low nibble (the high
// nibble, the frequency count, is implicit in len(Freqs) here).
type BeaconConfig struct {
	Layout [3]int   `json:"layout"`
	Freqs  []uint32 `json:"freqs"`
	DR     int      `json:"DR"`
}

// RawConfig is an opaque per-radio concentrator config block; the station
// core passes it to the RAL's Config call without interpreting it.
type RawConfig map[string]interface{}

// DnMsg is an immediate-class downlink (spec.md §4.8): DevEui, diid,
// absolute dC/rx1/rx2 parameters, priority, and hex payload.
type DnMsg struct {
	MsgType  string  `json:"msgtype"`
	MuxTime  float64 `json:"MuxTime,omitempty"`
	DevEui   string  `json:"DevEui"`
	Diid     uint64  `json:"diid"`
	Pdu      string  `json:"pdu"`
	DC       int     `json:"dC"`
	Priority uint8   `json:"priority"`
	RxDelay  int     `json:"RxDelay"`
	RX1DR    int     `json:"RX1DR"`
	RX1Freq  uint32  `json:"RX1Freq"`
	RX2DR    int     `json:"RX2DR"`
	RX2Freq  uint32  `json:"RX2Freq"`
	XTime    int64   `json:"xtime"`
	GPSTime  int64   `json:"gpstime"`
	RCtx     int64   `json:"rctx"`
}

// DnSchedEntry is one precisely timed downlink within a dnsched message's
// schedule array (spec.md §4.8 dnsched): the same payload/channel shape as
// DnMsg, fired at an absolute time given as exactly one of ontime,
// gpstime, or xtime rather than a RxDelay-relative offset.
type DnSchedEntry struct {
	DevEui   string  `json:"DevEui"`
	Diid     uint64  `json:"diid"`
	Pdu      string  `json:"pdu"`
	DC       int     `json:"dC"`
	Priority uint8   `json:"priority"`
	RX1DR    int     `json:"RX1DR"`
	RX1Freq  uint32  `json:"RX1Freq"`
	RX2DR    int     `json:"RX2DR"`
	RX2Freq  uint32  `json:"RX2Freq"`
	RCtx     int64   `json:"rctx"`
	OnTime   float64 `json:"ontime,omitempty"`
	GPSTime  int64   `json:"gpstime,omitempty"`
	XTime    int64   `json:"xtime,omitempty"`
}

// DnSched is a Class-B/C pre-scheduled downlink batch (spec.md §4.8
// dnsched): an array of entries, each converted to its own TX job via
// gpstime_to_xtime (Class B) or xtime_to_ustime (Class A).
type DnSched struct {
	MsgType  string         `json:"msgtype"`
	MuxTime  float64        `json:"MuxTime,omitempty"`
	Schedule []DnSchedEntry `json:"schedule"`
}

// TimesyncUp is the upstream time-sync exchange (spec.md §4.2, §4.8
// timesync): the station's host-µs send time as txtime, which the LNS
// echoes in its TimesyncDown reply together with a GPS time.
type TimesyncUp struct {
	MsgType  string  `json:"msgtype"`
	MuxTime  float64 `json:"MuxTime,omitempty"`
	TxTime   int64  `json:"txtime"`
	GPSTime  int64  `json:"gpstime,omitempty"`
}

// TimesyncDown is the LNS's reply to a TimesyncUp request.
type TimesyncDown struct {
	MsgType string  `json:"msgtype"`
	MuxTime float64 `json:"MuxTime,omitempty"`
	TxTime  int64  `json:"txtime"`
	GPSTime int64  `json:"gpstime"`
}

// RunCmd is an operator-issued remote command (spec.md §4.8 runcmd).
type RunCmd struct {
	MsgType string   `json:"msgtype"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Version is the upstream handshake message sent immediately after the
// WebSocket dial completes.
type Version struct {
	MsgType  string `json:"msgtype"`
	Station  string `json:"station"`
	Firmware string `json:"firmware"`
	Package  string `json:"package"`
	Model    string `json:"model"`
	Protocol int    `json:"protocol"`
}

// JoinRequest is the upstream jreq message.
type JoinRequest struct {
	MsgType string `json:"msgtype"`
	MHdr    uint8  `json:"MHdr"`
	JoinEui string `json:"JoinEui"`
	DevEui  string `json:"DevEui"`
	DevNonce uint16 `json:"DevNonce"`
	MIC     int32  `json:"MIC"`
	UpInfo  interface{} `json:"upinfo"`
}

// GetXTime is the downstream request for the station's current per-unit
// xtime readings (a feature the distilled spec.md dropped but
// original_source/ retains; spec.md's timesync section covers the same
// ground per-TX-unit, so this reuses it rather than inventing a format).
type GetXTime struct {
	MsgType string  `json:"msgtype"`
	MuxTime float64 `json:"MuxTime,omitempty"`
}

// GetXTimeReply is the upstream reply: one xtime per configured TX unit,
// indexed by unit number, 0 for a unit that is not yet synced.
type GetXTimeReply struct {
	MsgType string  `json:"msgtype"`
	MuxTime float64 `json:"MuxTime,omitempty"`
	XTime   []int64 `json:"xtime"`
}

// DnTxed is the upstream confirmation that a scheduled downlink was
// actually emitted (spec.md §4.5 emitDntxed).
type DnTxed struct {
	MsgType string `json:"msgtype"`
	Diid    uint64 `json:"diid"`
	TxTime  int64  `json:"txtime"`
	GPSTime int64  `json:"gpstime,omitempty"`
}
