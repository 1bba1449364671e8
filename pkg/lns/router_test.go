package lns

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"

	"go.station.network/s2e/pkg/xq"
)

func TestHexDecodeRoundTrips(t *testing.T) {
	a := assertions.New(t)
	b, err := hexDecode("0a1bff")
	a.So(err, should.BeNil)
	a.So(b, should.Resemble, []byte{0x0a, 0x1b, 0xff})

	_, err = hexDecode("abc")
	a.So(err, should.NotBeNil)

	_, err = hexDecode("zz")
	a.So(err, should.NotBeNil)
}

func TestDispatchRoutesByMsgType(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	var called string
	r.OnRunCmd = func(m RunCmd) error { called = m.Command; return nil }

	err := r.Dispatcher.Dispatch([]byte(`{"msgtype":"runcmd","command":"reboot"}`))
	a.So(err, should.BeNil)
	a.So(called, should.Equal, "reboot")
}

func TestDnMsgDecodesPduAndBuildsClassAJob(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	var payload []byte
	var job xq.TXJob
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error {
		job, payload = j, pdu
		return nil
	}

	raw := []byte(`{"msgtype":"dnmsg","DevEui":"00-00-00-00-00-00-00-01","diid":5,"pdu":"0a0b0c","priority":1,"RX1Freq":868100000,"RX2Freq":869525000}`)
	err := r.Dispatcher.Dispatch(raw)
	a.So(err, should.BeNil)
	a.So(payload, should.Resemble, []byte{0x0a, 0x0b, 0x0c})
	a.So(job.Diid, should.Equal, uint64(5))
	a.So(job.Freq, should.Equal, uint32(868100000))
	a.So(job.Flags&xq.TXFlagClassA, should.NotEqual, xq.TXFlag(0))
}

func TestDispatchUnknownMsgTypeErrors(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	err := r.Dispatcher.Dispatch([]byte(`{"msgtype":"unheard_of"}`))
	a.So(err, should.NotBeNil)
}

func TestDnMsgRxDelayZeroCoercedToOne(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	var job xq.TXJob
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error { job = j; return nil }

	raw := []byte(`{"msgtype":"dnmsg","DevEui":"00-00-00-00-00-00-00-01","diid":1,"pdu":"0a","RX1Freq":868100000,"xtime":1000000}`)
	a.So(r.Dispatcher.Dispatch(raw), should.BeNil)
	a.So(job.HostUS, should.Equal, int64(1000000+1000000))
}

func TestDnMsgRX2OnlyPreSwitches(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	var job xq.TXJob
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error { job = j; return nil }

	raw := []byte(`{"msgtype":"dnmsg","DevEui":"00-00-00-00-00-00-00-01","diid":1,"pdu":"0a","RX2Freq":869525000,"RX2DR":3}`)
	a.So(r.Dispatcher.Dispatch(raw), should.BeNil)
	a.So(job.SwitchedRX2, should.BeTrue)
	a.So(job.Freq, should.Equal, uint32(869525000))
	a.So(job.DR, should.Equal, 3)
}

func TestDnSchedConvertsEachEntryThroughGpstime(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	var jobs []xq.TXJob
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error {
		a.So(scheduled, should.BeTrue)
		jobs = append(jobs, j)
		return nil
	}
	r.TxUnitForRCtx = func(rctx int64) int { return int(rctx) }
	r.ResolveDnSched = func(txunit int, gpstimeUS, xtimeUS int64, nowUS int64) (int64, bool) {
		a.So(txunit, should.Equal, 1)
		a.So(gpstimeUS, should.Equal, int64(500_000_000))
		a.So(xtimeUS, should.Equal, int64(0))
		return gpstimeUS + 42, true
	}

	raw := []byte(`{"msgtype":"dnsched","schedule":[
		{"DevEui":"00-00-00-00-00-00-00-01","diid":7,"pdu":"0a0b","RX1Freq":868100000,"RX1DR":3,"rctx":1,"gpstime":500000000}
	]}`)
	a.So(r.Dispatcher.Dispatch(raw), should.BeNil)

	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	a.So(jobs[0].Diid, should.Equal, uint64(7))
	a.So(jobs[0].HostUS, should.Equal, int64(500_000_042))
	a.So(jobs[0].RCtx, should.Equal, int64(1))
}

func TestDnSchedBuildsOneJobPerEntry(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	var diids []uint64
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error {
		diids = append(diids, j.Diid)
		return nil
	}
	r.ResolveDnSched = func(txunit int, gpstimeUS, xtimeUS int64, nowUS int64) (int64, bool) {
		return xtimeUS, true
	}

	raw := []byte(`{"msgtype":"dnsched","schedule":[
		{"diid":1,"pdu":"0a","RX1Freq":868100000,"xtime":1000},
		{"diid":2,"pdu":"0b","RX1Freq":868300000,"xtime":2000}
	]}`)
	a.So(r.Dispatcher.Dispatch(raw), should.BeNil)
	a.So(diids, should.Resemble, []uint64{1, 2})
}

func TestDnSchedEntryWithoutResolverIsDropped(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	called := false
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error { called = true; return nil }

	raw := []byte(`{"msgtype":"dnsched","schedule":[{"diid":1,"pdu":"0a","RX1Freq":868100000,"gpstime":1000}]}`)
	a.So(r.Dispatcher.Dispatch(raw), should.BeNil)
	a.So(called, should.BeFalse)
}

func TestDnMsgMissingRXParamsRejected(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error { return nil }

	raw := []byte(`{"msgtype":"dnmsg","DevEui":"00-00-00-00-00-00-00-01","diid":1,"pdu":"0a"}`)
	a.So(r.Dispatcher.Dispatch(raw), should.NotBeNil)
}

func TestDnMsgBadDevEuiRejected(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	r.OnDownlink = func(j xq.TXJob, pdu []byte, scheduled bool) error { return nil }

	raw := []byte(`{"msgtype":"dnmsg","DevEui":"not-hex","diid":1,"pdu":"0a","RX1Freq":868100000}`)
	a.So(r.Dispatcher.Dispatch(raw), should.NotBeNil)
}

func TestMuxTimeUpdatedOnlyByNamedHandlers(t *testing.T) {
	a := assertions.New(t)
	r := NewRouter()
	r.OnRouterConfig = func(RouterConfig) error { return nil }
	r.OnRunCmd = func(RunCmd) error { return nil }

	// Before any handler with a MuxTime field has run, Now reports the
	// wire's "absent" value.
	a.So(r.Mux.Now(0), should.Equal, float64(0))

	a.So(r.Dispatcher.Dispatch([]byte(`{"msgtype":"router_config","MuxTime":1.5}`)), should.BeNil)
	a.So(r.Mux.Now(0), should.NotEqual, float64(0))

	// runcmd never refreshes MuxTime, even when it carries the field;
	// resetting Mux to its zero value first isolates that check.
	r.Mux = MuxTimeState{}
	a.So(r.Dispatcher.Dispatch([]byte(`{"msgtype":"runcmd","command":"reboot","MuxTime":99}`)), should.BeNil)
	a.So(r.Mux.Now(0), should.Equal, float64(0))
}
