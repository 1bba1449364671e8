package rxforward

import (
	"go.station.network/s2e/pkg/log"
	"go.station.network/s2e/pkg/metrics"
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/xq"
)

// mirrorWindowUS bounds how far apart in host time two captures of the
// same over-the-air frame may be to count as mirrors of each other,
// rather than two genuinely distinct uplinks (spec.md §4.6).
const mirrorWindowUS = 2000

// Sender delivers one already-encoded upstream message. It reports
// blocked=true when the transport's outbound buffer is full, in which
// case the message was NOT sent and the caller must retry later without
// losing the job (spec.md §4.6 flush_rxjobs backpressure).
type Sender interface {
	SendJSON(v interface{}) (blocked bool, err error)
}

// UpFrame is the updf/jreq message flush_rxjobs emits upstream (spec.md
// §4.8, §4.6 wire format, restricted to the RX-forwarding fields).
type UpFrame struct {
	MsgType string  `json:"msgtype"`
	RefTime float64 `json:"RefTime,omitempty"`
	DevAddr uint32  `json:"DevAddr,omitempty"`
	FCnt    uint16  `json:"FCnt,omitempty"`
	FreqHz  uint32  `json:"Freq"`
	DR      int     `json:"DR"`
	UpInfo  UpInfo  `json:"upinfo"`
	RawHex  string  `json:"FRMPayload"`
}

// UpInfo is the radio metadata block of an updf/jreq message (spec.md §4.6
// upinfo).
type UpInfo struct {
	RCtx   int64   `json:"rctx"`
	XTime  int64   `json:"xtime"`
	GPSUS  int64   `json:"gpstime,omitempty"`
	FineTS int32   `json:"fts"`
	RSSI   float64 `json:"rssi"`
	SNR    float64 `json:"snr"`
	RxTime float64 `json:"rxtime"`
}

// Forwarder owns one TX-unit-agnostic RX FIFO: every uplink the radio
// fetches, regardless of which front-end antenna captured it, is admitted
// through the same Filter and deduplicated against the same FIFO.
type Forwarder struct {
	fifo   *xq.RXFifo
	Filter Filter
	Log    log.Interface

	// RPSToDR maps a radio parameter set back to the LoRaWAN data rate
	// index the LNS expects in an updf message. The channel plan that
	// owns this mapping is pkg/engine's DR table, not here.
	RPSToDR func(rps uint8) int

	// XtimeToUstime converts a captured uplink's radio xtime to host-µs,
	// stamping rxtime/RefTime on the forwarded frame (spec.md §4.6 upinfo
	// "rxtime", "RefTime"). Nil leaves those fields zero.
	XtimeToUstime func(xtime int64) int64
	// MuxTime reports the LNS muxtime-domain estimate for a host-µs
	// instant (spec.md §9 "MuxTime"), used to stamp RefTime.
	MuxTime func(hostUS int64) float64
}

// New returns a Forwarder backed by fifo.
func New(fifo *xq.RXFifo, logger log.Interface) *Forwarder {
	if logger == nil {
		logger = log.Noop()
	}
	return &Forwarder{fifo: fifo, Log: logger}
}

// AddRXJob admits one radio-reported uplink (spec.md §4.6 add_rxjob): it
// runs the admission Filter, then checks whether a mirror of the same
// frame is already queued; if so it keeps whichever capture scores
// higher (8·snr − rssi) and drops the other. Reports whether the frame
// ended up queued (for test/metrics visibility).
func (fw *Forwarder) AddRXJob(pkt ral.UpPacket) bool {
	if !fw.Filter.Allows(pkt.Payload) {
		return false
	}

	rssi := -int32(pkt.RSSI) // stored negated, spec.md §3 "RX job"
	snr := int32(pkt.SNR * 4)
	newScore := scoreOf(snr, rssi)

	if idx, found := fw.findMirror(pkt); found {
		existing := fw.fifo.Job(idx)
		if newScore <= existing.Score() {
			metrics.MirrorDroppedTotal.Inc()
			return false
		}
		fw.fifo.DropJob(idx)
		metrics.MirrorDroppedTotal.Inc()
	}

	slot, err := fw.fifo.NextJob(len(pkt.Payload))
	if err != nil {
		fw.Log.WithError(err).Warn("rx fifo exhausted, dropping uplink")
		return false
	}
	dr := 0
	if fw.RPSToDR != nil {
		dr = fw.RPSToDR(pkt.RPS)
	}
	copy(fw.fifo.DataSlice(fw.fifo.Job(slot).Off, len(pkt.Payload)), pkt.Payload)
	*fw.fifo.Job(slot) = xq.RXJob{
		RCtx:   pkt.RCtx,
		XTime:  pkt.XTime,
		FineTS: pkt.FineTS,
		Freq:   pkt.Freq,
		DR:     dr,
		RSSI:   rssi,
		SNR:    snr,
		Off:    fw.fifo.Job(slot).Off,
	}
	if err := fw.fifo.CommitJob(slot, len(pkt.Payload)); err != nil {
		fw.Log.WithError(err).Warn("failed to commit rx job")
		return false
	}
	return true
}

func scoreOf(snrQ4, negRSSI int32) int32 {
	snr := float64(snrQ4) / 4
	rssi := float64(-negRSSI)
	return int32((8*snr - rssi) * 4)
}

// findMirror scans the currently-queued jobs for one captured within
// mirrorWindowUS of pkt with an identical payload, the signature of the
// same over-the-air frame heard on two channels at once.
func (fw *Forwarder) findMirror(pkt ral.UpPacket) (int, bool) {
	for i := fw.fifo.First(); i < fw.fifo.NextIndex(); i++ {
		job := fw.fifo.Job(i)
		if job.Len != len(pkt.Payload) {
			continue
		}
		delta := job.XTime - pkt.XTime
		if delta < -mirrorWindowUS || delta > mirrorWindowUS {
			continue
		}
		if string(fw.fifo.DataSlice(job.Off, job.Len)) == string(pkt.Payload) {
			return i, true
		}
	}
	return 0, false
}

// FlushRXJobs forwards queued jobs oldest-first until the Sender reports
// backpressure or the queue drains (spec.md §4.6 flush_rxjobs). A job is
// only popped once its send has actually succeeded, so a blocked send
// leaves it at the front for the next flush.
func (fw *Forwarder) FlushRXJobs(sender Sender) (sent int, err error) {
	for fw.fifo.Len() > 0 {
		idx := fw.fifo.First()
		job := fw.fifo.Job(idx)
		frame := fw.toUpFrame(job)

		blocked, sendErr := sender.SendJSON(frame)
		if sendErr != nil {
			return sent, sendErr
		}
		if blocked {
			metrics.RXForwardStalledTotal.Inc()
			return sent, nil
		}
		fw.fifo.PopFront()
		sent++
	}
	return sent, nil
}

func (fw *Forwarder) toUpFrame(job *xq.RXJob) UpFrame {
	payload := fw.fifo.DataSlice(job.Off, job.Len)
	h := parseHeader(payload)

	msgtype := "updf"
	if h.MType == MTypeJoinRequest {
		msgtype = "jreq"
	}

	hostUS := job.XTime
	if fw.XtimeToUstime != nil {
		if us := fw.XtimeToUstime(job.XTime); us != 0 {
			hostUS = us
		}
	}
	var refTime float64
	if fw.MuxTime != nil {
		refTime = fw.MuxTime(hostUS)
	}

	frame := UpFrame{
		MsgType: msgtype,
		RefTime: refTime,
		FreqHz:  job.Freq,
		DR:      job.DR,
		UpInfo: UpInfo{
			RCtx:   job.RCtx,
			XTime:  job.XTime,
			FineTS: int32(job.FineTS),
			RSSI:   float64(-job.RSSI),
			SNR:    float64(job.SNR) / 4,
			RxTime: float64(hostUS) / 1e6,
		},
		RawHex: hexEncode(payload),
	}
	if h.MType == MTypeUnconfirmedUp || h.MType == MTypeConfirmedUp {
		frame.DevAddr = h.DevAddr
		frame.FCnt = h.FCnt
	}
	return frame
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xF]
	}
	return string(out)
}
