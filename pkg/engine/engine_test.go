package engine

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"

	"go.station.network/s2e/pkg/lns"
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/ral/ralsim"
	"go.station.network/s2e/pkg/timesync"
	"go.station.network/s2e/pkg/xq"
)

type fakeSender struct {
	sent    []interface{}
	blocked bool
}

func (f *fakeSender) SendJSON(v interface{}) (bool, error) {
	if f.blocked {
		return true, nil
	}
	f.sent = append(f.sent, v)
	return false, nil
}

func newTestEngine(radio *ralsim.Radio) (*Engine, *fakeSender) {
	e := New(Options{Radio: radio, TransportURL: "ws://example.invalid", NumTxUnits: 1})
	fake := &fakeSender{}
	e.out = fake
	return e, fake
}

func TestOnRouterConfigWiresGovernanceAndFilter(t *testing.T) {
	a := assertions.New(t)
	e, _ := newTestEngine(ralsim.New(1))

	err := e.onRouterConfig(lns.RouterConfig{
		Region: "EU868",
		DRs:    [][3]int{{12, 125000, 0}, {7, 125000, 0}},
		NetID:  []int{5, 9},
		NoCCA:  true,
	})
	a.So(err, should.BeNil)

	unit := e.Sched.Units[0]
	a.So(unit.Governance.NoCCA, should.BeTrue)
	a.So(e.FWD.Filter.NetIDs[5], should.BeTrue)
	a.So(e.FWD.Filter.NetIDs[6], should.BeFalse)

	a.So(e.drTable.DRToRPS(1).SF(), should.Equal, 7)
}

func TestOnDownlinkAdmitsTXJob(t *testing.T) {
	a := assertions.New(t)
	e, _ := newTestEngine(ralsim.New(1))
	a.So(e.onRouterConfig(lns.RouterConfig{Region: "EU868", DRs: [][3]int{{7, 125000, 0}}}), should.BeNil)

	job := xq.TXJob{
		Diid: 42, HostUS: timeNowPlus(1000000), Freq: 868100000, DR: 0,
		Flags: xq.TXFlagClassA, Priority: 10, Preamble: 8,
	}
	err := e.onDownlink(job, []byte{0x01, 0x02}, false)
	a.So(err, should.BeNil)
	a.So(e.Sched.Units[0].Head, should.NotEqual, xq.NilIndex)
}

func TestPollRXForwardsUplinkUpstream(t *testing.T) {
	a := assertions.New(t)
	radio := ralsim.New(1)
	e, fake := newTestEngine(radio)
	a.So(e.onRouterConfig(lns.RouterConfig{Region: "EU868", DRs: [][3]int{{7, 125000, 0}}}), should.BeNil)

	radio.Inject(0, ral.UpPacket{
		TxUnit: 0, Freq: 868100000, RSSI: -42, SNR: 7,
		Payload: []byte{0x40, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	})

	e.pollRX()
	a.So(len(fake.sent), should.Equal, 1)
}

func TestHandleDownstreamReconnectSentinelSendsVersionAndTearsDown(t *testing.T) {
	a := assertions.New(t)
	e, fake := newTestEngine(ralsim.New(1))
	a.So(e.onRouterConfig(lns.RouterConfig{Region: "EU868", DRs: [][3]int{{7, 125000, 0}}}), should.BeNil)

	job := xq.TXJob{Diid: 1, HostUS: timeNowPlus(1000000), Freq: 868100000, Flags: xq.TXFlagClassA, Priority: 1}
	a.So(e.onDownlink(job, []byte{0xAA}, false), should.BeNil)
	a.So(e.Sched.Units[0].Head, should.NotEqual, xq.NilIndex)

	e.handleDownstream(reconnectSentinel, map[string]*pending{})

	a.So(e.Sched.Units[0].Head, should.Equal, xq.NilIndex)
	a.So(len(fake.sent), should.Equal, 1)
	v, ok := fake.sent[0].(lns.Version)
	a.So(ok, should.BeTrue)
	a.So(v.MsgType, should.Equal, "version")
}

func TestOnDntxedSendsDnTxedUpstream(t *testing.T) {
	a := assertions.New(t)
	e, fake := newTestEngine(ralsim.New(1))
	job := &xq.TXJob{Diid: 7, HostUS: 1000, XTime: 0}
	e.onDntxed(job)
	a.So(len(fake.sent), should.Equal, 1)
	v, ok := fake.sent[0].(lns.DnTxed)
	a.So(ok, should.BeTrue)
	a.So(v.Diid, should.Equal, uint64(7))
}

func timeNowPlus(deltaUS int64) int64 {
	return nowForTests() + deltaUS
}

func nowForTests() int64 {
	return timesync.RealNow()
}
