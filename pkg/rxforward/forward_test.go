package rxforward

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"

	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/xq"
)

func unconfirmedUp(devAddr uint32, fcnt uint16) []byte {
	p := make([]byte, 12)
	p[0] = byte(MTypeUnconfirmedUp) << 5
	p[1], p[2], p[3], p[4] = byte(devAddr), byte(devAddr>>8), byte(devAddr>>16), byte(devAddr>>24)
	p[6], p[7] = byte(fcnt), byte(fcnt>>8)
	return p
}

func joinRequest(joinEUI, devEUI uint64) []byte {
	p := make([]byte, 23)
	p[0] = byte(MTypeJoinRequest) << 5
	for i := 0; i < 8; i++ {
		p[1+i] = byte(joinEUI >> (8 * i))
		p[9+i] = byte(devEUI >> (8 * i))
	}
	return p
}

func TestNetIDFilterBlocksUnlistedAddress(t *testing.T) {
	a := assertions.New(t)
	fw := New(xq.NewRXFifo(), nil)
	fw.Filter.NetIDs[3] = true

	allowedAddr := uint32(3) << 25
	blockedAddr := uint32(5) << 25

	a.So(fw.AddRXJob(ral.UpPacket{Payload: unconfirmedUp(allowedAddr, 1)}), should.BeTrue)
	a.So(fw.AddRXJob(ral.UpPacket{Payload: unconfirmedUp(blockedAddr, 1)}), should.BeFalse)
}

func TestJoinEUIRangeFilter(t *testing.T) {
	a := assertions.New(t)
	fw := New(xq.NewRXFifo(), nil)
	fw.Filter.JoinEUIRanges = []JoinEUIRange{{Lo: 0x1000, Hi: 0x1FFF}}

	a.So(fw.AddRXJob(ral.UpPacket{Payload: joinRequest(0x1500, 1)}), should.BeTrue)
	a.So(fw.AddRXJob(ral.UpPacket{Payload: joinRequest(0x9999, 1)}), should.BeFalse)
}

func TestMirrorDedupKeepsHigherScore(t *testing.T) {
	a := assertions.New(t)
	fw := New(xq.NewRXFifo(), nil)
	payload := unconfirmedUp(1, 7)

	a.So(fw.AddRXJob(ral.UpPacket{Payload: payload, XTime: 1000, RSSI: -100, SNR: -5}), should.BeTrue)
	// A mirror captured 500us later, with a much better SNR/RSSI: replaces
	// the first.
	a.So(fw.AddRXJob(ral.UpPacket{Payload: payload, XTime: 1500, RSSI: -60, SNR: 9}), should.BeTrue)

	idx := fw.fifo.First()
	a.So(fw.fifo.NextIndex()-idx, should.Equal, 1)
	job := fw.fifo.Job(idx)
	a.So(job.RSSI, should.Equal, int32(60))

	// A third, worse mirror is dropped, leaving the better one in place.
	a.So(fw.AddRXJob(ral.UpPacket{Payload: payload, XTime: 1600, RSSI: -110, SNR: -1}), should.BeFalse)
	a.So(fw.fifo.NextIndex()-fw.fifo.First(), should.Equal, 1)
}

func TestFlushRXJobsStopsOnBackpressure(t *testing.T) {
	a := assertions.New(t)
	fw := New(xq.NewRXFifo(), nil)
	fw.AddRXJob(ral.UpPacket{Payload: unconfirmedUp(1, 1), XTime: 1000})
	fw.AddRXJob(ral.UpPacket{Payload: unconfirmedUp(2, 1), XTime: 5000})

	sender := &blockAfterN{allow: 0}
	sent, err := fw.FlushRXJobs(sender)
	a.So(err, should.BeNil)
	a.So(sent, should.Equal, 0)
	a.So(fw.fifo.NextIndex()-fw.fifo.First(), should.Equal, 2)

	sender.allow = 2
	sent, err = fw.FlushRXJobs(sender)
	a.So(err, should.BeNil)
	a.So(sent, should.Equal, 2)
	a.So(fw.fifo.Len(), should.Equal, 0)
}

func TestToUpFrameMsgTypeByMType(t *testing.T) {
	a := assertions.New(t)
	fw := New(xq.NewRXFifo(), nil)

	a.So(fw.AddRXJob(ral.UpPacket{Payload: joinRequest(0x1500, 1), XTime: 1000}), should.BeTrue)
	a.So(fw.AddRXJob(ral.UpPacket{Payload: unconfirmedUp(1, 7), XTime: 5000}), should.BeTrue)

	idx := fw.fifo.First()
	joinFrame := fw.toUpFrame(fw.fifo.Job(idx))
	a.So(joinFrame.MsgType, should.Equal, "jreq")

	dataFrame := fw.toUpFrame(fw.fifo.Job(idx + 1))
	a.So(dataFrame.MsgType, should.Equal, "updf")
	a.So(dataFrame.DevAddr, should.Equal, uint32(1))
}

func TestToUpFrameStampsRxTimeAndRefTime(t *testing.T) {
	a := assertions.New(t)
	fw := New(xq.NewRXFifo(), nil)
	fw.XtimeToUstime = func(xtime int64) int64 { return xtime + 10 }
	fw.MuxTime = func(hostUS int64) float64 { return float64(hostUS) / 1e6 }

	a.So(fw.AddRXJob(ral.UpPacket{Payload: unconfirmedUp(1, 1), XTime: 2_000_000, FineTS: 42}), should.BeTrue)

	idx := fw.fifo.First()
	frame := fw.toUpFrame(fw.fifo.Job(idx))
	a.So(frame.UpInfo.FineTS, should.Equal, int32(42))
	a.So(frame.UpInfo.RxTime, should.Equal, float64(2_000_010)/1e6)
	a.So(frame.RefTime, should.Equal, float64(2_000_010)/1e6)
}

type blockAfterN struct {
	allow int
	sent  int
}

func (b *blockAfterN) SendJSON(v interface{}) (bool, error) {
	if b.sent >= b.allow {
		return true, nil
	}
	b.sent++
	return false, nil
}
