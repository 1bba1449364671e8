// Package ralsim is an in-memory RAL fake for scheduler, rx-forwarder, and
// engine tests: it accepts every Tx as immediately OK unless a test sets
// TxOutcome or TxErr, replays a test-scripted per-unit TxStatus sequence,
// and lets a test inject uplinks for Fetch to return.
package ralsim

import (
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/timesync"
)

// Clock is a manually-advanced fake timesync.RadioClock.
type Clock struct {
	Ticks    uint32
	PPS      uint32
	PPSFresh bool
}

func (c *Clock) ReadTicks() (uint32, error) { return c.Ticks, nil }
func (c *Clock) ReadPPSTicks() (uint32, bool, error) {
	fresh := c.PPSFresh
	c.PPSFresh = false
	return c.PPS, fresh, nil
}

// Radio is the fake. Construct it with New: the zero value has nil maps
// (TxAbort and Inject panic on it) and no Clocks.
type Radio struct {
	NumUnits int

	// TxOutcome, if set, is returned verbatim by the next Tx call instead
	// of the default TxOK; a test sets it to force NOCA/FAIL paths.
	TxOutcome *ral.TxResult
	TxErr     error

	// StatusSeq, indexed by txunit, is consumed front-to-back by
	// successive TxStatus calls; once exhausted TxStatus returns
	// StatusDone.
	StatusSeq map[int][]ral.Status

	Pending   map[int][]ral.UpPacket
	Clocks    map[int]*Clock
	Aborted   map[int]int
	Submitted []ral.TxRequest

	altAnts uint16
}

// New returns a Radio with n TX units, each given its own Clock.
func New(n int) *Radio {
	r := &Radio{
		NumUnits:  n,
		StatusSeq: map[int][]ral.Status{},
		Pending:   map[int][]ral.UpPacket{},
		Clocks:    map[int]*Clock{},
		Aborted:   map[int]int{},
		altAnts:   0,
	}
	for i := 0; i < n; i++ {
		r.Clocks[i] = &Clock{}
	}
	return r
}

func (r *Radio) Config(string, uint32, []ral.ChannelDescriptor) error { return nil }
func (r *Radio) Stop()                                                {}

func (r *Radio) Tx(req ral.TxRequest, ccaDisabled bool) (ral.TxResult, error) {
	r.Submitted = append(r.Submitted, req)
	if r.TxErr != nil {
		return ral.TxFail, r.TxErr
	}
	if r.TxOutcome != nil {
		out := *r.TxOutcome
		r.TxOutcome = nil
		return out, nil
	}
	return ral.TxOK, nil
}

func (r *Radio) TxStatus(txunit int) (ral.Status, error) {
	seq := r.StatusSeq[txunit]
	if len(seq) == 0 {
		return ral.StatusDone, nil
	}
	next := seq[0]
	r.StatusSeq[txunit] = seq[1:]
	return next, nil
}

func (r *Radio) TxAbort(txunit int) error {
	r.Aborted[txunit]++
	return nil
}

func (r *Radio) RCtxToTxUnit(rctx int64) int   { return int(rctx) }
func (r *Radio) XTimeToTxUnit(xtime int64) int { return int(timesync.Session(xtime)) }
func (r *Radio) XTimeToRCtx(xtime int64) int64 { return int64(timesync.Session(xtime)) }
func (r *Radio) AltAntennas(txunit int) uint16 { return r.altAnts }

// SetAltAntennas configures the alternate-antenna bitmask every unit reports.
func (r *Radio) SetAltAntennas(mask uint16) { r.altAnts = mask }

func (r *Radio) Fetch() ([]ral.UpPacket, error) {
	var out []ral.UpPacket
	for unit, pkts := range r.Pending {
		out = append(out, pkts...)
		r.Pending[unit] = nil
	}
	return out, nil
}

func (r *Radio) TimesyncClock(txunit int) timesync.RadioClock { return r.Clocks[txunit] }

// Inject queues an uplink for the next Fetch to return.
func (r *Radio) Inject(txunit int, pkt ral.UpPacket) {
	r.Pending[txunit] = append(r.Pending[txunit], pkt)
}
