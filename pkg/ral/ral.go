// Package ral defines the radio abstraction layer the scheduler and
// rx-forwarder drive: the boundary spec.md §6.2 calls config/stop/tx/
// txstatus/txabort/rctx2txunit/xtime2txunit/xtime2rctx/altAntennas, plus the
// fetch() uplink callback and the timesync radio clock. A concrete station
// wires a vendor driver behind this interface; tests wire pkg/ral/ralsim.
package ral

import "go.station.network/s2e/pkg/timesync"

// TxResult is the outcome the radio reports for a submitted TX request
// (spec.md §6.2 "tx(...) returns RAL_TX_OK | RAL_TX_NOCA | RAL_TX_FAIL").
type TxResult int

const (
	TxOK TxResult = iota
	TxNoCA
	TxFail
)

// String implements fmt.Stringer for log output.
func (r TxResult) String() string {
	switch r {
	case TxOK:
		return "RAL_TX_OK"
	case TxNoCA:
		return "RAL_TX_NOCA"
	default:
		return "RAL_TX_FAIL"
	}
}

// Status is the outcome of a txstatus(txunit) poll.
type Status int

const (
	StatusIdle Status = iota
	StatusScheduled
	StatusEmitting
	StatusDone
)

// ChannelDescriptor is one entry of the upstream channel plan passed to
// Config (spec.md §6.2 "config(hwspec, region, upchannels, ...)").
type ChannelDescriptor struct {
	FreqHz uint32
	BWHz   uint32
	MinSF  int
	MaxSF  int
}

// TxRequest is everything the radio needs to arm and fire one downlink; it
// mirrors the relevant fields of xq.TXJob without importing that package,
// keeping ral a leaf dependency.
type TxRequest struct {
	TxUnit    int
	XTime     int64
	Freq      uint32
	RPS       uint8 // airtime.RPS, passed opaque to avoid a second import
	TXPowDeci int32
	Payload   []byte
	RCtx      int64
}

// UpPacket is one decoded uplink frame returned by Fetch (spec.md §4.6
// add_rxjob's radio-side input).
type UpPacket struct {
	TxUnit  int
	RCtx    int64
	XTime   int64
	FineTS  int64
	GPSTime int64
	Freq    uint32
	RPS     uint8
	RSSI    int32 // dBm, as reported by the radio (not yet negated/scaled)
	SNR     float32
	Payload []byte
}

// Radio is the full RAL boundary.
type Radio interface {
	Config(hwspec string, ccaRegion uint32, upChannels []ChannelDescriptor) error
	Stop()

	Tx(req TxRequest, ccaDisabled bool) (TxResult, error)
	TxStatus(txunit int) (Status, error)
	TxAbort(txunit int) error

	RCtxToTxUnit(rctx int64) int
	XTimeToTxUnit(xtime int64) int
	XTimeToRCtx(xtime int64) int64
	AltAntennas(txunit int) uint16

	// Fetch drains whatever uplinks have arrived since the last call; it
	// does not block (spec.md §5 event loop polls it each tick).
	Fetch() ([]UpPacket, error)

	// TimesyncClock returns the bracketed-tick-read source for a TX unit,
	// consumed by pkg/timesync.GetTimesync.
	TimesyncClock(txunit int) timesync.RadioClock
}
